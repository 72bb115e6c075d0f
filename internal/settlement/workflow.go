// Package settlement carries out operator decisions: order lifecycle moves
// including the balance effects of completion, and review of deposits and
// withdrawals.
package settlement

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/db"
	"lv-goldex/internal/metrics"
	"lv-goldex/internal/model"
	"lv-goldex/internal/orders"
	"lv-goldex/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrderStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, o model.Order, from types.OrderStatus) error
}

type Ledger interface {
	SettleOrder(ctx context.Context, tx pgx.Tx, o model.Order) ([]model.Transaction, error)
	ApproveDeposit(ctx context.Context, adminID, txID, note string) (model.Transaction, error)
	RejectDeposit(ctx context.Context, adminID, txID, reason string) (model.Transaction, error)
	ConfirmWithdraw(ctx context.Context, adminID, txID, note string) (model.Transaction, error)
	RejectWithdraw(ctx context.Context, adminID, txID, reason string) (model.Transaction, error)
}

type Notifier interface {
	Notify(userID, title, message string, metadata map[string]any)
}

type Workflow struct {
	db       db.Beginner
	orders   OrderStore
	ledger   Ledger
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewWorkflow(b db.Beginner, store OrderStore, l Ledger, n Notifier, logger *slog.Logger, m *metrics.Metrics) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{db: b, orders: store, ledger: l, notifier: n, logger: logger, metrics: m, now: time.Now}
}

func (w *Workflow) SetClock(now func() time.Time) { w.now = now }

func (w *Workflow) notify(userID, title, message string, meta map[string]any) {
	if w.notifier != nil {
		w.notifier.Notify(userID, title, message, meta)
	}
}

// TransitionOrder moves an order on behalf of adminID. Completing an order
// settles it in the same transaction, so either the status and every
// balance change commit together or nothing does. A pending order whose
// price lock has lapsed is expired instead and the call fails with
// AlreadyProcessed.
func (w *Workflow) TransitionOrder(ctx context.Context, adminID, orderID string, to types.OrderStatus, note string) (model.Order, error) {
	note = strings.TrimSpace(note)
	if _, err := uuid.Parse(orderID); err != nil {
		return model.Order{}, apperr.NotFound("order")
	}
	var out model.Order
	var lapsed bool
	err := db.WithTx(ctx, w.db, func(tx pgx.Tx) error {
		o, err := w.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := w.now()
		if o.Status == types.OrderStatusPending && o.Expired(now) {
			out = orders.Expire(o, now)
			lapsed = true
			return w.orders.UpdateStatus(ctx, tx, out, o.Status)
		}
		if err := orders.ValidateTransition(o.Status, to); err != nil {
			return err
		}
		next := orders.Apply(o, to, note, now)
		if to == types.OrderStatusCompleted {
			if _, err := w.ledger.SettleOrder(ctx, tx, next); err != nil {
				return err
			}
		}
		if err := w.orders.UpdateStatus(ctx, tx, next, o.Status); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		w.logger.Warn("order transition failed", "order_id", orderID, "admin_id", adminID, "to", to, "error", err)
		return model.Order{}, err
	}
	meta := map[string]any{"order_id": out.ID, "status": string(out.Status)}
	if lapsed {
		w.metrics.OrderTransitioned(string(types.OrderStatusExpired))
		w.notify(out.UserID, "Order expired", "Your order's price lock expired before it was settled.", meta)
		return model.Order{}, apperr.New(apperr.CodeAlreadyProcessed, "order price lock expired")
	}
	w.metrics.OrderTransitioned(string(out.Status))
	w.logger.Info("order transitioned", "order_id", out.ID, "admin_id", adminID, "status", out.Status)
	w.notify(out.UserID, "Order "+string(out.Status), orderMessage(out), meta)
	return out, nil
}

func orderMessage(o model.Order) string {
	msg := "Your " + string(o.Side) + " order for " + o.Amount.String() + " " + string(o.Product) + " is now " + string(o.Status) + "."
	if o.StatusReason != "" {
		msg += " Note: " + o.StatusReason
	}
	return msg
}

func (w *Workflow) ApproveDeposit(ctx context.Context, adminID, txID, note string) (model.Transaction, error) {
	t, err := w.ledger.ApproveDeposit(ctx, adminID, txID, note)
	if err != nil {
		return t, err
	}
	w.notify(t.UserID, "Deposit approved", "Your deposit of "+t.Amount.String()+" was credited.", map[string]any{"transaction_id": t.ID})
	return t, nil
}

func (w *Workflow) RejectDeposit(ctx context.Context, adminID, txID, reason string) (model.Transaction, error) {
	t, err := w.ledger.RejectDeposit(ctx, adminID, txID, reason)
	if err != nil {
		return t, err
	}
	w.notify(t.UserID, "Deposit rejected", "Your deposit of "+t.Amount.String()+" was rejected: "+strings.TrimSpace(reason), map[string]any{"transaction_id": t.ID})
	return t, nil
}

func (w *Workflow) ConfirmWithdraw(ctx context.Context, adminID, txID, note string) (model.Transaction, error) {
	t, err := w.ledger.ConfirmWithdraw(ctx, adminID, txID, note)
	if err != nil {
		return t, err
	}
	w.notify(t.UserID, "Withdrawal sent", "Your withdrawal of "+t.Amount.Neg().String()+" was paid out.", map[string]any{"transaction_id": t.ID})
	return t, nil
}

func (w *Workflow) RejectWithdraw(ctx context.Context, adminID, txID, reason string) (model.Transaction, error) {
	t, err := w.ledger.RejectWithdraw(ctx, adminID, txID, reason)
	if err != nil {
		return t, err
	}
	w.notify(t.UserID, "Withdrawal rejected", "Your withdrawal was rejected and the funds returned: "+strings.TrimSpace(reason), map[string]any{"transaction_id": t.ID})
	return t, nil
}
