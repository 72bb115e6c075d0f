package delivery

import (
	"context"
	"errors"
	"fmt"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const deliveryColumns = `id, user_id, product, amount, status, commission_fee, address, note, cancel_reason,
	charged_at, delivered_at, created_at, updated_at`

func scanDelivery(row pgx.Row) (model.DeliveryRequest, error) {
	var d model.DeliveryRequest
	var product, status string
	err := row.Scan(&d.ID, &d.UserID, &product, &d.Amount, &status, &d.CommissionFee, &d.Address, &d.Note, &d.CancelReason,
		&d.ChargedAt, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt)
	d.Product = types.ProductType(product)
	d.Status = types.DeliveryStatus(status)
	return d, err
}

func (s *PGStore) Insert(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest) (model.DeliveryRequest, error) {
	_, err := tx.Exec(ctx, `
		insert into delivery_requests (id, user_id, product, amount, status, commission_fee, address, note, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.UserID, string(d.Product), d.Amount, string(d.Status), d.CommissionFee, d.Address, d.Note, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return d, fmt.Errorf("insert delivery request: %w", err)
	}
	return d, nil
}

func (s *PGStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.DeliveryRequest, error) {
	d, err := scanDelivery(tx.QueryRow(ctx, "select "+deliveryColumns+" from delivery_requests where id = $1 for update", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return d, apperr.NotFound("delivery request")
	}
	return d, err
}

func (s *PGStore) UpdateStatus(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest, from types.DeliveryStatus) error {
	tag, err := tx.Exec(ctx, `
		update delivery_requests set status = $3, cancel_reason = $4, charged_at = $5, delivered_at = $6, updated_at = $7
		where id = $1 and status = $2
	`, d.ID, string(from), string(d.Status), d.CancelReason, d.ChargedAt, d.DeliveredAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.CodeAlreadyProcessed, "delivery request is no longer "+string(from))
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, f model.DeliveryFilter) ([]model.DeliveryRequest, error) {
	rows, err := s.pool.Query(ctx, `
		select `+deliveryColumns+` from delivery_requests
		where ($1 = '' or user_id::text = $1) and ($2 = '' or status = $2)
		order by created_at desc, id
		limit $3 offset $4
	`, f.UserID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DeliveryRequest{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
