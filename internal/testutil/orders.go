package testutil

import (
	"context"
	"sort"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
)

// OrderStore implements orders.Store over a MemStore. Insert enforces the
// one-open-order-per-user rule like the partial unique index does.
type OrderStore struct{ m *MemStore }

func (m *MemStore) Orders() *OrderStore { return &OrderStore{m: m} }

func (o *OrderStore) Insert(ctx context.Context, tx pgx.Tx, order model.Order) (model.Order, error) {
	if err := o.m.failure("InsertOrder", order.UserID); err != nil {
		return order, err
	}
	st := o.m.state(tx)
	for _, existing := range st.orders {
		if existing.UserID == order.UserID && existing.Status.IsOpen() {
			return order, apperr.ErrConflict
		}
	}
	st.orders[order.ID] = order
	return order, nil
}

func (o *OrderStore) Get(ctx context.Context, tx pgx.Tx, id string) (model.Order, error) {
	order, ok := o.m.state(tx).orders[id]
	if !ok {
		return order, notFound("order")
	}
	return order, nil
}

func (o *OrderStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Order, error) {
	if err := o.m.failure("GetForUpdate", id); err != nil {
		return model.Order{}, err
	}
	return o.Get(ctx, tx, id)
}

func (o *OrderStore) UpdateStatus(ctx context.Context, tx pgx.Tx, order model.Order, from types.OrderStatus) error {
	if err := o.m.failure("UpdateStatus", order.ID); err != nil {
		return err
	}
	st := o.m.state(tx)
	current, ok := st.orders[order.ID]
	if !ok {
		return notFound("order")
	}
	if current.Status != from {
		return apperr.New(apperr.CodeAlreadyProcessed, "order is no longer "+string(from))
	}
	current.Status = order.Status
	current.StatusReason = order.StatusReason
	current.ProcessedAt = order.ProcessedAt
	current.CompletedAt = order.CompletedAt
	current.UpdatedAt = order.UpdatedAt
	st.orders[order.ID] = current
	return nil
}

func (o *OrderStore) HasOpenOrder(ctx context.Context, tx pgx.Tx, userID string) (bool, error) {
	for _, order := range o.m.state(tx).orders {
		if order.UserID == userID && order.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (o *OrderStore) List(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	var out []model.Order
	for _, order := range o.m.state(nil).orders {
		if f.UserID != "" && order.UserID != f.UserID {
			continue
		}
		if f.Status != "" && order.Status != f.Status {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Limit, f.Offset), nil
}

func (o *OrderStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Order, error) {
	var out []model.Order
	for _, order := range o.m.state(nil).orders {
		if order.Status == types.OrderStatusPending && order.Expired(now) {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return paginate(out, limit, 0), nil
}
