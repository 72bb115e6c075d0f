package testutil

import (
	"context"
	"sort"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
)

// DeliveryStore implements delivery.Store over a MemStore.
type DeliveryStore struct{ m *MemStore }

func (m *MemStore) Deliveries() *DeliveryStore { return &DeliveryStore{m: m} }

func (d *DeliveryStore) Insert(ctx context.Context, tx pgx.Tx, req model.DeliveryRequest) (model.DeliveryRequest, error) {
	d.m.state(tx).deliveries[req.ID] = req
	return req, nil
}

func (d *DeliveryStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.DeliveryRequest, error) {
	req, ok := d.m.state(tx).deliveries[id]
	if !ok {
		return req, notFound("delivery request")
	}
	return req, nil
}

func (d *DeliveryStore) UpdateStatus(ctx context.Context, tx pgx.Tx, req model.DeliveryRequest, from types.DeliveryStatus) error {
	st := d.m.state(tx)
	current, ok := st.deliveries[req.ID]
	if !ok {
		return notFound("delivery request")
	}
	if current.Status != from {
		return apperr.New(apperr.CodeAlreadyProcessed, "delivery request is no longer "+string(from))
	}
	st.deliveries[req.ID] = req
	return nil
}

func (d *DeliveryStore) List(ctx context.Context, f model.DeliveryFilter) ([]model.DeliveryRequest, error) {
	var out []model.DeliveryRequest
	for _, req := range d.m.state(nil).deliveries {
		if f.UserID != "" && req.UserID != f.UserID {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Limit, f.Offset), nil
}
