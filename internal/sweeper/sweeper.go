// Package sweeper expires pending orders whose price lock has lapsed.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"lv-goldex/internal/db"
	"lv-goldex/internal/metrics"
	"lv-goldex/internal/model"
	"lv-goldex/internal/orders"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultBatch    = 100
)

type Store interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, o model.Order, from types.OrderStatus) error
}

type Notifier interface {
	Notify(userID, title, message string, metadata map[string]any)
}

type Sweeper struct {
	db       db.Beginner
	store    Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int
	now      func() time.Time
}

func New(b db.Beginner, store Store, n Notifier, logger *slog.Logger, m *metrics.Metrics, interval time.Duration, batch int) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	return &Sweeper{db: b, store: store, notifier: n, logger: logger, metrics: m, interval: interval, batch: batch, now: time.Now}
}

func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

type Result struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	run := func() {
		res, err := s.SweepOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("sweep failed", "error", err)
			return
		}
		if res.Expired > 0 || res.Failed > 0 {
			s.logger.Info("sweep finished", "scanned", res.Scanned, "expired", res.Expired, "failed", res.Failed)
		}
	}
	run()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// SweepOnce expires every lapsed pending order, one transaction per order.
// A failure on one order is logged and counted; the pass continues.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result
	defer func() { s.metrics.Swept(res.Expired, res.Failed, time.Since(start)) }()

	now := s.now()
	for {
		batch, err := s.store.ListExpiredPending(ctx, now, s.batch)
		if err != nil {
			return res, err
		}
		expiredBefore := res.Expired
		for _, o := range batch {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Scanned++
			expired, err := s.expire(ctx, o.ID, now)
			if err != nil {
				res.Failed++
				s.logger.Warn("expire order failed", "order_id", o.ID, "error", err)
				continue
			}
			if expired {
				res.Expired++
			}
		}
		// A short batch is the last one; a batch that expired nothing would
		// come back unchanged.
		if len(batch) < s.batch || res.Expired == expiredBefore {
			return res, nil
		}
	}
}

// expire re-reads the order under lock and skips it unless it is still
// pending past its expiry, so concurrent sweeps and settlements are safe.
func (s *Sweeper) expire(ctx context.Context, orderID string, now time.Time) (bool, error) {
	var out model.Order
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		o, err := s.store.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != types.OrderStatusPending || !o.Expired(now) {
			return nil
		}
		out = orders.Expire(o, now)
		return s.store.UpdateStatus(ctx, tx, out, o.Status)
	})
	if err != nil || out.ID == "" {
		return false, err
	}
	s.metrics.OrderTransitioned(string(types.OrderStatusExpired))
	if s.notifier != nil {
		s.notifier.Notify(out.UserID, "Order expired", "Your "+string(out.Side)+" order for "+out.Amount.String()+" "+string(out.Product)+" expired because its price lock lapsed.",
			map[string]any{"order_id": out.ID, "status": string(out.Status)})
	}
	return true, nil
}
