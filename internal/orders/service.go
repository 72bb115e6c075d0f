package orders

import (
	"context"
	"log/slog"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/commission"
	"lv-goldex/internal/db"
	"lv-goldex/internal/metrics"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DefaultLockTTL is how long a quoted price stays valid.
const DefaultLockTTL = 180 * time.Second

type PriceSource interface {
	GetActivePrice(ctx context.Context, product types.ProductType) (model.Quote, error)
}

type FeeQuoter interface {
	Quote(ctx context.Context, in commission.Input) (commission.Result, error)
}

// Balances reads realized holdings. Nothing is reserved at creation.
type Balances interface {
	Balance(ctx context.Context, userID string, kind types.WalletKind) (decimal.Decimal, error)
	CoinBalance(ctx context.Context, userID string, product types.ProductType) (decimal.Decimal, error)
}

type ModeGate interface {
	Check(ctx context.Context) error
}

type Notifier interface {
	Notify(userID, title, message string, metadata map[string]any)
	NotifyAdmins(title, message string, metadata map[string]any)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string, string, map[string]any) {}
func (noopNotifier) NotifyAdmins(string, string, map[string]any)   {}

type Deps struct {
	DB       db.Beginner
	Store    Store
	Prices   PriceSource
	Fees     FeeQuoter
	Balances Balances
	Gate     ModeGate
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	LockTTL  time.Duration
}

type Service struct {
	db       db.Beginner
	store    Store
	prices   PriceSource
	fees     FeeQuoter
	balances Balances
	gate     ModeGate
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	lockTTL  time.Duration
	now      func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = noopNotifier{}
	}
	if d.LockTTL <= 0 {
		d.LockTTL = DefaultLockTTL
	}
	return &Service{
		db:       d.DB,
		store:    d.Store,
		prices:   d.Prices,
		fees:     d.Fees,
		balances: d.Balances,
		gate:     d.Gate,
		notifier: d.Notifier,
		logger:   d.Logger,
		metrics:  d.Metrics,
		lockTTL:  d.LockTTL,
		now:      time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

type PlaceOrderRequest struct {
	UserID  string
	Side    types.OrderSide
	Product types.ProductType
	Amount  decimal.Decimal
}

func validatePlace(req PlaceOrderRequest) error {
	if req.UserID == "" {
		return apperr.Validation("user is required")
	}
	if !req.Side.Valid() {
		return apperr.Validation("side must be buy or sell")
	}
	if !req.Product.Valid() {
		return apperr.Validation("unknown product " + string(req.Product))
	}
	if !req.Amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	if req.Product.IsCoin() && !req.Amount.Equal(req.Amount.Truncate(0)) {
		return apperr.Validation("coin amounts must be whole numbers")
	}
	return nil
}

// Create quotes, validates and stores a pending order with its price locked
// for the configured TTL. Balances are checked but not reserved; funds move
// only when an admin completes the order.
func (s *Service) Create(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	o, err := s.create(ctx, req)
	if err != nil {
		s.metrics.OrderRejected(string(apperr.CodeOf(err)))
		return model.Order{}, err
	}
	s.metrics.OrderCreated(string(o.Side), string(o.Product))
	s.logger.Info("order created", "order_id", o.ID, "user_id", o.UserID, "side", o.Side, "product", o.Product, "amount", o.Amount.String())
	meta := map[string]any{"order_id": o.ID, "side": string(o.Side), "product": string(o.Product)}
	s.notifier.Notify(o.UserID, "Order placed", "Your "+string(o.Side)+" order for "+o.Amount.String()+" "+string(o.Product)+" is awaiting confirmation.", meta)
	s.notifier.NotifyAdmins("New order", "User "+o.UserID+" placed a "+string(o.Side)+" order for "+o.Amount.String()+" "+string(o.Product)+".", meta)
	return o, nil
}

func (s *Service) create(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	if err := validatePlace(req); err != nil {
		return model.Order{}, err
	}
	if s.gate != nil {
		if err := s.gate.Check(ctx); err != nil {
			return model.Order{}, err
		}
	}
	open, err := s.store.HasOpenOrder(ctx, nil, req.UserID)
	if err != nil {
		return model.Order{}, err
	}
	if open {
		return model.Order{}, apperr.ErrConflict
	}

	quote, err := s.prices.GetActivePrice(ctx, req.Product)
	if err != nil {
		return model.Order{}, err
	}
	unit := quote.BuyPrice
	if req.Side == types.OrderSideSell {
		unit = quote.SellPrice
	}
	if !unit.IsPositive() {
		return model.Order{}, apperr.New(apperr.CodePriceUnavailable, "no "+string(req.Side)+" price for "+string(req.Product))
	}
	fee, err := s.fees.Quote(ctx, commission.Input{Product: req.Product, Side: req.Side, UnitPrice: unit, Quantity: req.Amount})
	if err != nil {
		return model.Order{}, err
	}
	if err := s.checkFunds(ctx, req, fee); err != nil {
		return model.Order{}, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	expires := now.Add(s.lockTTL)
	o := model.Order{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		Side:             req.Side,
		Product:          req.Product,
		Amount:           req.Amount,
		UnitPrice:        unit,
		TotalPrice:       fee.Notional,
		CommissionRate:   fee.Rate,
		CommissionAmount: fee.Amount,
		Status:           types.OrderStatusPending,
		PriceLockedAt:    now,
		ExpiresAt:        &expires,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		o, err = s.store.Insert(ctx, tx, o)
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (s *Service) checkFunds(ctx context.Context, req PlaceOrderRequest, fee commission.Result) error {
	var need, have decimal.Decimal
	var err error
	switch {
	case req.Side == types.OrderSideBuy:
		need = fee.Notional.Add(fee.Amount)
		have, err = s.balances.Balance(ctx, req.UserID, types.WalletKindRial)
	case req.Product.IsCoin():
		need = req.Amount
		have, err = s.balances.CoinBalance(ctx, req.UserID, req.Product)
	default:
		need = req.Amount
		have, err = s.balances.Balance(ctx, req.UserID, types.WalletKindGold)
	}
	if err != nil {
		return err
	}
	if have.LessThan(need) {
		return apperr.InsufficientBalance(need.Sub(have))
	}
	return nil
}

// Get returns an order owned by userID.
func (s *Service) Get(ctx context.Context, userID, orderID string) (model.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return model.Order{}, apperr.NotFound("order")
	}
	o, err := s.store.Get(ctx, nil, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.UserID != userID {
		return model.Order{}, apperr.NotFound("order")
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown order status " + string(f.Status))
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	items, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Order{}
	}
	return items, nil
}
