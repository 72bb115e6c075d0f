package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/db"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists orders. Writes take the caller's transaction; Get and
// HasOpenOrder accept a nil tx to read from the pool.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, o model.Order) (model.Order, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (model.Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, o model.Order, from types.OrderStatus) error
	HasOpenOrder(ctx context.Context, tx pgx.Tx, userID string) (bool, error)
	List(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Order, error)
}

const openOrderIndex = "orders_one_open_per_user"

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) q(tx pgx.Tx) db.Querier {
	if tx != nil {
		return tx
	}
	return s.pool
}

const orderColumns = `id, user_id, side, product, amount, unit_price, total_price, commission_rate, commission_amount,
	status, status_reason, price_locked_at, expires_at, processed_at, completed_at, created_at, updated_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, product, status string
	err := row.Scan(&o.ID, &o.UserID, &side, &product, &o.Amount, &o.UnitPrice, &o.TotalPrice, &o.CommissionRate, &o.CommissionAmount,
		&status, &o.StatusReason, &o.PriceLockedAt, &o.ExpiresAt, &o.ProcessedAt, &o.CompletedAt, &o.CreatedAt, &o.UpdatedAt)
	o.Side = types.OrderSide(side)
	o.Product = types.ProductType(product)
	o.Status = types.OrderStatus(status)
	return o, err
}

// Insert relies on the partial unique index to refuse a second open order
// for the same user, which holds even for concurrent submissions.
func (s *PGStore) Insert(ctx context.Context, tx pgx.Tx, o model.Order) (model.Order, error) {
	_, err := tx.Exec(ctx, `
		insert into orders (id, user_id, side, product, amount, unit_price, total_price, commission_rate, commission_amount,
			status, status_reason, price_locked_at, expires_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, o.ID, o.UserID, string(o.Side), string(o.Product), o.Amount, o.UnitPrice, o.TotalPrice, o.CommissionRate, o.CommissionAmount,
		string(o.Status), o.StatusReason, o.PriceLockedAt, o.ExpiresAt, o.CreatedAt, o.UpdatedAt)
	if db.IsUniqueViolationOf(err, openOrderIndex) {
		return o, apperr.Wrap(apperr.CodeConflict, "an open order already exists", err)
	}
	if err != nil {
		return o, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (s *PGStore) Get(ctx context.Context, tx pgx.Tx, id string) (model.Order, error) {
	o, err := scanOrder(s.q(tx).QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return o, apperr.NotFound("order")
	}
	return o, err
}

func (s *PGStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return o, apperr.NotFound("order")
	}
	return o, err
}

// UpdateStatus writes the lifecycle fields only while the row is still in
// from. Price and commission columns are never touched.
func (s *PGStore) UpdateStatus(ctx context.Context, tx pgx.Tx, o model.Order, from types.OrderStatus) error {
	tag, err := tx.Exec(ctx, `
		update orders set status = $3, status_reason = $4, processed_at = $5, completed_at = $6, updated_at = $7
		where id = $1 and status = $2
	`, o.ID, string(from), string(o.Status), o.StatusReason, o.ProcessedAt, o.CompletedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.CodeAlreadyProcessed, "order is no longer "+string(from))
	}
	return nil
}

func (s *PGStore) HasOpenOrder(ctx context.Context, tx pgx.Tx, userID string) (bool, error) {
	var exists bool
	err := s.q(tx).QueryRow(ctx,
		"select exists(select 1 from orders where user_id = $1 and status in ('pending', 'confirmed', 'processing'))",
		userID).Scan(&exists)
	return exists, err
}

func (s *PGStore) List(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+` from orders
		where ($1 = '' or user_id::text = $1) and ($2 = '' or status = $2)
		order by created_at desc, id
		limit $3 offset $4
	`, f.UserID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// ListExpiredPending returns a batch of sweep candidates, oldest expiry first.
func (s *PGStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+` from orders
		where status = 'pending' and expires_at is not null and expires_at < $1
		order by expires_at
		limit $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
