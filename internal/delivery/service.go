// Package delivery handles requests to ship physical gold or coins out of a
// user's holdings. A request is refused while the user has an open order;
// orders are not refused because of a pending delivery.
package delivery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/db"
	"lv-goldex/internal/metrics"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest) (model.DeliveryRequest, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.DeliveryRequest, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest, from types.DeliveryStatus) error
	List(ctx context.Context, f model.DeliveryFilter) ([]model.DeliveryRequest, error)
}

type OpenOrders interface {
	HasOpenOrder(ctx context.Context, tx pgx.Tx, userID string) (bool, error)
}

type Ledger interface {
	Balance(ctx context.Context, userID string, kind types.WalletKind) (decimal.Decimal, error)
	CoinBalance(ctx context.Context, userID string, product types.ProductType) (decimal.Decimal, error)
	ChargeDelivery(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest) ([]model.Transaction, error)
	RefundDelivery(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest) ([]model.Transaction, error)
}

type ModeGate interface {
	Check(ctx context.Context) error
}

type Notifier interface {
	Notify(userID, title, message string, metadata map[string]any)
	NotifyAdmins(title, message string, metadata map[string]any)
}

// Fees are charged in rial per delivered unit.
type Fees struct {
	PerGram decimal.Decimal
	PerCoin decimal.Decimal
}

func (f Fees) For(product types.ProductType, amount decimal.Decimal) decimal.Decimal {
	if product.IsCoin() {
		return amount.Mul(f.PerCoin).Round(0)
	}
	return amount.Mul(f.PerGram).Round(0)
}

var forward = map[types.DeliveryStatus]types.DeliveryStatus{
	types.DeliveryStatusPending:    types.DeliveryStatusApproved,
	types.DeliveryStatusApproved:   types.DeliveryStatusProcessing,
	types.DeliveryStatusProcessing: types.DeliveryStatusReady,
	types.DeliveryStatusReady:      types.DeliveryStatusDelivered,
}

type Service struct {
	db       db.Beginner
	store    Store
	orders   OpenOrders
	ledger   Ledger
	gate     ModeGate
	notifier Notifier
	fees     Fees
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(b db.Beginner, store Store, orders OpenOrders, l Ledger, gate ModeGate, n Notifier, fees Fees, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: b, store: store, orders: orders, ledger: l, gate: gate, notifier: n, fees: fees, logger: logger, metrics: m, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

type CreateRequest struct {
	UserID  string
	Product types.ProductType
	Amount  decimal.Decimal
	Address string
	Note    string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (model.DeliveryRequest, error) {
	req.Address = strings.TrimSpace(req.Address)
	if !req.Product.Valid() {
		return model.DeliveryRequest{}, apperr.Validation("unknown product " + string(req.Product))
	}
	if !req.Amount.IsPositive() {
		return model.DeliveryRequest{}, apperr.Validation("amount must be positive")
	}
	if req.Product.IsCoin() && !req.Amount.Equal(req.Amount.Truncate(0)) {
		return model.DeliveryRequest{}, apperr.Validation("coin amounts must be whole numbers")
	}
	if req.Address == "" {
		return model.DeliveryRequest{}, apperr.Validation("delivery address is required")
	}
	if s.gate != nil {
		if err := s.gate.Check(ctx); err != nil {
			return model.DeliveryRequest{}, err
		}
	}
	open, err := s.orders.HasOpenOrder(ctx, nil, req.UserID)
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	if open {
		return model.DeliveryRequest{}, apperr.New(apperr.CodeConflict, "finish or cancel your open order before requesting delivery")
	}
	fee := s.fees.For(req.Product, req.Amount)
	if err := s.checkHoldings(ctx, req, fee); err != nil {
		return model.DeliveryRequest{}, err
	}

	now := s.now().UTC()
	d := model.DeliveryRequest{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Product:       req.Product,
		Amount:        req.Amount,
		Status:        types.DeliveryStatusPending,
		CommissionFee: fee,
		Address:       req.Address,
		Note:          strings.TrimSpace(req.Note),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		d, err = s.store.Insert(ctx, tx, d)
		return err
	})
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	s.metrics.DeliveryTransitioned(string(d.Status))
	if s.notifier != nil {
		meta := map[string]any{"delivery_id": d.ID, "product": string(d.Product)}
		s.notifier.Notify(d.UserID, "Delivery requested", "We received your request to deliver "+d.Amount.String()+" "+string(d.Product)+".", meta)
		s.notifier.NotifyAdmins("New delivery request", "User "+d.UserID+" requested delivery of "+d.Amount.String()+" "+string(d.Product)+".", meta)
	}
	return d, nil
}

func (s *Service) checkHoldings(ctx context.Context, req CreateRequest, fee decimal.Decimal) error {
	var have decimal.Decimal
	var err error
	if req.Product.IsCoin() {
		have, err = s.ledger.CoinBalance(ctx, req.UserID, req.Product)
	} else {
		have, err = s.ledger.Balance(ctx, req.UserID, types.WalletKindGold)
	}
	if err != nil {
		return err
	}
	if have.LessThan(req.Amount) {
		return apperr.InsufficientBalance(req.Amount.Sub(have))
	}
	if !fee.IsPositive() {
		return nil
	}
	rial, err := s.ledger.Balance(ctx, req.UserID, types.WalletKindRial)
	if err != nil {
		return err
	}
	if rial.LessThan(fee) {
		return apperr.InsufficientBalance(fee.Sub(rial))
	}
	return nil
}

// Transition advances a request one step or cancels it. Approval charges
// the holdings and fee in the same transaction; cancelling a charged
// request refunds it.
func (s *Service) Transition(ctx context.Context, adminID, id string, to types.DeliveryStatus, reason string) (model.DeliveryRequest, error) {
	reason = strings.TrimSpace(reason)
	if !to.Valid() {
		return model.DeliveryRequest{}, apperr.Validation("unknown delivery status " + string(to))
	}
	if to == types.DeliveryStatusCancelled && reason == "" {
		return model.DeliveryRequest{}, apperr.Validation("cancellation reason is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return model.DeliveryRequest{}, apperr.NotFound("delivery request")
	}
	var out model.DeliveryRequest
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		d, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Status.IsTerminal() {
			return apperr.New(apperr.CodeAlreadyProcessed, "delivery request already "+string(d.Status))
		}
		now := s.now().UTC()
		from := d.Status
		switch {
		case to == types.DeliveryStatusCancelled:
			if d.ChargedAt != nil {
				if _, err := s.ledger.RefundDelivery(ctx, tx, d); err != nil {
					return err
				}
			}
			d.CancelReason = reason
		case forward[from] == to:
			if to == types.DeliveryStatusApproved {
				if _, err := s.ledger.ChargeDelivery(ctx, tx, d); err != nil {
					return err
				}
				d.ChargedAt = &now
			}
			if to == types.DeliveryStatusDelivered {
				d.DeliveredAt = &now
			}
		default:
			return apperr.Validation("cannot move delivery from " + string(from) + " to " + string(to))
		}
		d.Status = to
		d.UpdatedAt = now
		if err := s.store.UpdateStatus(ctx, tx, d, from); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	s.metrics.DeliveryTransitioned(string(out.Status))
	s.logger.Info("delivery transitioned", "delivery_id", out.ID, "admin_id", adminID, "status", out.Status)
	if s.notifier != nil {
		msg := "Your delivery of " + out.Amount.String() + " " + string(out.Product) + " is now " + string(out.Status) + "."
		if out.CancelReason != "" {
			msg += " Reason: " + out.CancelReason
		}
		s.notifier.Notify(out.UserID, "Delivery "+string(out.Status), msg, map[string]any{"delivery_id": out.ID, "status": string(out.Status)})
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, f model.DeliveryFilter) ([]model.DeliveryRequest, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown delivery status " + string(f.Status))
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	items, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.DeliveryRequest{}
	}
	return items, nil
}
