package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/auth"
	"lv-goldex/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Inbox persists notifications so users can read them later.
type Inbox struct {
	pool *pgxpool.Pool
}

func NewInbox(pool *pgxpool.Pool) *Inbox {
	return &Inbox{pool: pool}
}

func (i *Inbox) Name() string { return "inbox" }

func (i *Inbox) Send(ctx context.Context, n model.Notification) error {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return err
	}
	_, err = i.pool.Exec(ctx, "insert into notifications (id, user_id, title, message, metadata, created_at) values ($1, $2, $3, $4, $5, $6)",
		n.ID, n.UserID, n.Title, n.Message, meta, n.CreatedAt)
	return err
}

func (i *Inbox) List(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error) {
	rows, err := i.pool.Query(ctx, "select id, user_id, title, message, metadata, created_at, read_at from notifications where user_id = $1 order by created_at desc limit $2 offset $3", userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()
	out := make([]model.Notification, 0, limit)
	for rows.Next() {
		var n model.Notification
		var meta []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &meta, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &n.Metadata)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (i *Inbox) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := i.pool.Exec(ctx, "update notifications set read_at = coalesce(read_at, $3) where id = $1 and user_id = $2", id, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification")
	}
	return nil
}

// UserDirectory keeps the users table in step with verified tokens and
// resolves admin accounts from it.
type UserDirectory struct {
	pool *pgxpool.Pool
	seen sync.Map // user id -> role last written
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// Record upserts the caller's id and role. Repeated calls with an unchanged
// role skip the database.
func (d *UserDirectory) Record(ctx context.Context, id auth.Identity) error {
	role := id.Role()
	if prev, ok := d.seen.Load(id.UserID); ok && prev.(string) == role {
		return nil
	}
	if _, err := uuid.Parse(id.UserID); err != nil {
		return apperr.Validation("subject is not a user id")
	}
	_, err := d.pool.Exec(ctx, `
		insert into users (id, role) values ($1, $2)
		on conflict (id) do update set role = excluded.role
		where users.role is distinct from excluded.role
	`, id.UserID, role)
	if err != nil {
		return fmt.Errorf("record user: %w", err)
	}
	d.seen.Store(id.UserID, role)
	return nil
}

func (d *UserDirectory) AdminIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, "select id::text from users where role = $1 order by created_at", auth.RoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
