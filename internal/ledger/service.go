package ledger

import (
	"context"
	"errors"
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

type ModeGate interface {
	Check(ctx context.Context) error
}

type Service struct {
	db      db.Beginner
	store   Store
	gate    ModeGate
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(b db.Beginner, store Store, gate ModeGate, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: b, store: store, gate: gate, logger: logger, metrics: m, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) checkGate(ctx context.Context) error {
	if s.gate == nil {
		return nil
	}
	return s.gate.Check(ctx)
}

// record appends one transaction row. It never touches a balance.
func (s *Service) record(ctx context.Context, tx pgx.Tx, w model.Wallet, kind types.TransactionKind, amount decimal.Decimal, status types.TransactionStatus, ref string, meta map[string]any) (model.Transaction, error) {
	return s.store.InsertTransaction(ctx, tx, model.Transaction{
		ID:          uuid.NewString(),
		UserID:      w.UserID,
		WalletID:    w.ID,
		Kind:        kind,
		Amount:      amount,
		Status:      status,
		ReferenceID: ref,
		Metadata:    meta,
		CreatedAt:   s.now().UTC(),
	})
}

// move changes a balance and records the completed row backing it.
func (s *Service) move(ctx context.Context, tx pgx.Tx, w model.Wallet, delta decimal.Decimal, kind types.TransactionKind, ref string, meta map[string]any) (model.Transaction, error) {
	if _, err := s.store.MoveBalance(ctx, tx, w.ID, delta); err != nil {
		return model.Transaction{}, err
	}
	return s.record(ctx, tx, w, kind, delta, types.TransactionStatusCompleted, ref, meta)
}

func (s *Service) EnsureWallets(ctx context.Context, userID string) ([]model.Wallet, error) {
	var wallets []model.Wallet
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		wallets, err = s.store.EnsureWallets(ctx, tx, userID)
		return err
	})
	return wallets, err
}

const maxWalletsPerKind = 5

// OpenWallet adds a labelled secondary wallet so a user can split funds of
// one kind. The primary wallets are created first if missing.
func (s *Service) OpenWallet(ctx context.Context, userID string, kind types.WalletKind, label string) (model.Wallet, error) {
	if !kind.Valid() {
		return model.Wallet{}, apperr.Validation("unknown wallet kind")
	}
	label = strings.TrimSpace(label)
	if label == "" || len(label) > 64 {
		return model.Wallet{}, apperr.Validation("label must be 1-64 characters")
	}
	var out model.Wallet
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		wallets, err := s.store.EnsureWallets(ctx, tx, userID)
		if err != nil {
			return err
		}
		n := 0
		for _, w := range wallets {
			if w.Kind == kind {
				n++
			}
		}
		if n >= maxWalletsPerKind {
			return apperr.Validation("wallet limit reached for " + string(kind))
		}
		out, err = s.store.CreateWallet(ctx, tx, model.Wallet{
			ID:       uuid.NewString(),
			UserID:   userID,
			Kind:     kind,
			Currency: kind.Currency(),
			Label:    label,
		})
		return err
	})
	s.metrics.LedgerOp("open_wallet", err)
	return out, err
}

// Balance returns a wallet balance, zero when the wallet does not exist yet.
func (s *Service) Balance(ctx context.Context, userID string, kind types.WalletKind) (decimal.Decimal, error) {
	w, err := s.store.WalletByKind(ctx, nil, userID, kind)
	if errors.Is(err, apperr.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// CoinBalance returns the realized coin balance held for product.
func (s *Service) CoinBalance(ctx context.Context, userID string, product types.ProductType) (decimal.Decimal, error) {
	holdings, err := s.store.CoinHoldings(ctx, nil, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return holdings[product], nil
}

type CoinBalance struct {
	Product  types.ProductType `json:"product"`
	Quantity decimal.Decimal   `json:"quantity"`
}

type Summary struct {
	Wallets []model.Wallet `json:"wallets"`
	Coins   []CoinBalance  `json:"coins"`
}

func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	wallets, err := s.store.WalletsByUser(ctx, nil, userID)
	if err != nil {
		return Summary{}, err
	}
	if len(wallets) < 2 {
		if wallets, err = s.EnsureWallets(ctx, userID); err != nil {
			return Summary{}, err
		}
	}
	holdings, err := s.store.CoinHoldings(ctx, nil, userID)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{Wallets: wallets, Coins: make([]CoinBalance, 0, len(types.CoinProducts))}
	for _, p := range types.CoinProducts {
		out.Coins = append(out.Coins, CoinBalance{Product: p, Quantity: holdings[p]})
	}
	return out, nil
}

func (s *Service) Transactions(ctx context.Context, userID string, f model.TransactionFilter) ([]model.Transaction, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.store.ListTransactions(ctx, userID, f)
}

// RequestDeposit records a pending rial deposit awaiting admin review. The
// balance does not change until ApproveDeposit.
func (s *Service) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal, meta map[string]any) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, apperr.Validation("amount must be positive")
	}
	var out model.Transaction
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := s.store.EnsureWallets(ctx, tx, userID); err != nil {
			return err
		}
		w, err := s.store.WalletByKind(ctx, tx, userID, types.WalletKindRial)
		if err != nil {
			return err
		}
		out, err = s.record(ctx, tx, w, types.TransactionKindDeposit, amount, types.TransactionStatusPending, "", meta)
		return err
	})
	s.metrics.LedgerOp("request_deposit", err)
	return out, err
}

func decision(adminID, verdict, note string, at time.Time) map[string]any {
	m := map[string]any{
		"decided_by": adminID,
		"decision":   verdict,
		"decided_at": at.UTC().Format(time.RFC3339),
	}
	if note != "" {
		m["note"] = note
	}
	return m
}

// review locks a pending transaction of the given kind and runs apply on it.
func (s *Service) review(ctx context.Context, op, txID string, kind types.TransactionKind, apply func(tx pgx.Tx, t model.Transaction) (model.Transaction, error)) (model.Transaction, error) {
	if !validID(txID) {
		return model.Transaction{}, apperr.NotFound("transaction")
	}
	var out model.Transaction
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.store.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			return err
		}
		if t.Kind != kind {
			return apperr.Validation("transaction is not a " + string(kind))
		}
		if t.Status != types.TransactionStatusPending {
			return apperr.New(apperr.CodeAlreadyProcessed, string(kind)+" already "+string(t.Status))
		}
		out, err = apply(tx, t)
		return err
	})
	s.metrics.LedgerOp(op, err)
	return out, err
}

func (s *Service) ApproveDeposit(ctx context.Context, adminID, txID, note string) (model.Transaction, error) {
	return s.review(ctx, "approve_deposit", txID, types.TransactionKindDeposit, func(tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
		if _, err := s.store.MoveBalance(ctx, tx, t.WalletID, t.Amount); err != nil {
			return t, err
		}
		meta := decision(adminID, "approved", note, s.now())
		if err := s.store.UpdateTransactionStatus(ctx, tx, t.ID, types.TransactionStatusPending, types.TransactionStatusCompleted, meta); err != nil {
			return t, err
		}
		return applyStatus(t, types.TransactionStatusCompleted, meta, s.now()), nil
	})
}

func (s *Service) RejectDeposit(ctx context.Context, adminID, txID, reason string) (model.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Transaction{}, apperr.Validation("rejection reason is required")
	}
	return s.review(ctx, "reject_deposit", txID, types.TransactionKindDeposit, func(tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
		meta := decision(adminID, "rejected", reason, s.now())
		meta["reason"] = reason
		if err := s.store.UpdateTransactionStatus(ctx, tx, t.ID, types.TransactionStatusPending, types.TransactionStatusFailed, meta); err != nil {
			return t, err
		}
		return applyStatus(t, types.TransactionStatusFailed, meta, s.now()), nil
	})
}

// Withdraw takes the funds immediately and leaves a pending row for the
// operator to confirm or reject.
func (s *Service) Withdraw(ctx context.Context, userID string, kind types.WalletKind, amount decimal.Decimal, destination string) (model.Transaction, error) {
	if err := s.checkGate(ctx); err != nil {
		return model.Transaction{}, err
	}
	if !kind.Valid() {
		return model.Transaction{}, apperr.Validation("unknown wallet kind")
	}
	if !amount.IsPositive() {
		return model.Transaction{}, apperr.Validation("amount must be positive")
	}
	var out model.Transaction
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		w, err := s.store.WalletByKind(ctx, tx, userID, kind)
		if err != nil {
			return err
		}
		if _, err := s.store.MoveBalance(ctx, tx, w.ID, amount.Neg()); err != nil {
			return err
		}
		out, err = s.record(ctx, tx, w, types.TransactionKindWithdraw, amount.Neg(), types.TransactionStatusPending, "", map[string]any{"destination": destination})
		return err
	})
	s.metrics.LedgerOp("withdraw", err)
	return out, err
}

func (s *Service) ConfirmWithdraw(ctx context.Context, adminID, txID, note string) (model.Transaction, error) {
	return s.review(ctx, "confirm_withdraw", txID, types.TransactionKindWithdraw, func(tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
		meta := decision(adminID, "confirmed", note, s.now())
		if err := s.store.UpdateTransactionStatus(ctx, tx, t.ID, types.TransactionStatusPending, types.TransactionStatusCompleted, meta); err != nil {
			return t, err
		}
		return applyStatus(t, types.TransactionStatusCompleted, meta, s.now()), nil
	})
}

// RejectWithdraw fails the withdrawal and returns the held funds.
func (s *Service) RejectWithdraw(ctx context.Context, adminID, txID, reason string) (model.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Transaction{}, apperr.Validation("rejection reason is required")
	}
	return s.review(ctx, "reject_withdraw", txID, types.TransactionKindWithdraw, func(tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
		if _, err := s.store.MoveBalance(ctx, tx, t.WalletID, t.Amount.Neg()); err != nil {
			return t, err
		}
		meta := decision(adminID, "rejected", reason, s.now())
		meta["reason"] = reason
		if err := s.store.UpdateTransactionStatus(ctx, tx, t.ID, types.TransactionStatusPending, types.TransactionStatusFailed, meta); err != nil {
			return t, err
		}
		return applyStatus(t, types.TransactionStatusFailed, meta, s.now()), nil
	})
}

func applyStatus(t model.Transaction, status types.TransactionStatus, meta map[string]any, at time.Time) model.Transaction {
	merged := make(map[string]any, len(t.Metadata)+len(meta))
	for k, v := range t.Metadata {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	t.Status = status
	t.Metadata = merged
	t.UpdatedAt = at.UTC()
	return t
}

type TransferRequest struct {
	FromWalletID string
	ToWalletID   string
	Amount       decimal.Decimal
	Note         string
}

type TransferResult struct {
	TransferID string            `json:"transfer_id"`
	Debit      model.Transaction `json:"debit"`
	Credit     model.Transaction `json:"credit"`
}

// Transfer moves funds between two wallets of the same kind, both owned by
// the caller. Both rows share the transfer id as reference.
func (s *Service) Transfer(ctx context.Context, userID string, req TransferRequest) (TransferResult, error) {
	if err := s.checkGate(ctx); err != nil {
		return TransferResult{}, err
	}
	if req.FromWalletID == "" || req.ToWalletID == "" {
		return TransferResult{}, apperr.Validation("source and destination wallets are required")
	}
	if req.FromWalletID == req.ToWalletID {
		return TransferResult{}, apperr.Validation("source and destination must differ")
	}
	if !req.Amount.IsPositive() {
		return TransferResult{}, apperr.Validation("amount must be positive")
	}
	if !validID(req.FromWalletID) || !validID(req.ToWalletID) {
		return TransferResult{}, apperr.NotFound("wallet")
	}
	res := TransferResult{TransferID: uuid.NewString()}
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		src, err := s.store.GetWallet(ctx, tx, req.FromWalletID)
		if err != nil {
			return err
		}
		if src.UserID != userID {
			return apperr.NotFound("wallet")
		}
		dst, err := s.store.GetWallet(ctx, tx, req.ToWalletID)
		if err != nil {
			return err
		}
		if dst.UserID != userID {
			return apperr.NotFound("wallet")
		}
		if src.Kind != dst.Kind || src.Currency != dst.Currency {
			return apperr.Validation("wallets must share kind and currency")
		}
		// Lock rows in id order so opposing transfers cannot deadlock.
		first, second := src, dst
		firstDelta, secondDelta := req.Amount.Neg(), req.Amount
		if dst.ID < src.ID {
			first, second = dst, src
			firstDelta, secondDelta = req.Amount, req.Amount.Neg()
		}
		if _, err := s.store.MoveBalance(ctx, tx, first.ID, firstDelta); err != nil {
			return err
		}
		if _, err := s.store.MoveBalance(ctx, tx, second.ID, secondDelta); err != nil {
			return err
		}
		debitMeta := map[string]any{"counterpart_wallet_id": dst.ID, "direction": "out"}
		creditMeta := map[string]any{"counterpart_wallet_id": src.ID, "direction": "in"}
		if req.Note != "" {
			debitMeta["note"] = req.Note
			creditMeta["note"] = req.Note
		}
		if res.Debit, err = s.record(ctx, tx, src, types.TransactionKindTransfer, req.Amount.Neg(), types.TransactionStatusCompleted, res.TransferID, debitMeta); err != nil {
			return err
		}
		res.Credit, err = s.record(ctx, tx, dst, types.TransactionKindTransfer, req.Amount, types.TransactionStatusCompleted, res.TransferID, creditMeta)
		return err
	})
	s.metrics.LedgerOp("transfer", err)
	if err != nil {
		return TransferResult{}, err
	}
	return res, nil
}

// SettleOrder applies a completed order's balance effects inside the
// caller's transaction. Price and commission come from the order as locked
// at creation.
func (s *Service) SettleOrder(ctx context.Context, tx pgx.Tx, o model.Order) ([]model.Transaction, error) {
	if _, err := s.store.EnsureWallets(ctx, tx, o.UserID); err != nil {
		return nil, err
	}
	rial, err := s.store.WalletByKind(ctx, tx, o.UserID, types.WalletKindRial)
	if err != nil {
		return nil, err
	}
	gold, err := s.store.WalletByKind(ctx, tx, o.UserID, types.WalletKindGold)
	if err != nil {
		return nil, err
	}
	settle := o.SettlementAmount()
	// Report the whole shortfall up front instead of failing on one leg.
	if o.Side == types.OrderSideBuy && rial.Balance.LessThan(settle) {
		return nil, apperr.InsufficientBalance(settle.Sub(rial.Balance))
	}
	meta := map[string]any{
		"order_id":          o.ID,
		"side":              string(o.Side),
		"product":           string(o.Product),
		"amount":            o.Amount.String(),
		"unit_price":        o.UnitPrice.String(),
		"settlement_amount": settle.String(),
	}
	var out []model.Transaction
	add := func(w model.Wallet, delta decimal.Decimal, kind types.TransactionKind) error {
		if delta.IsZero() {
			return nil
		}
		t, err := s.move(ctx, tx, w, delta, kind, o.ID, meta)
		if err != nil {
			return err
		}
		out = append(out, t)
		return nil
	}

	switch o.Side {
	case types.OrderSideBuy:
		if err := add(rial, o.TotalPrice.Neg(), types.TransactionKindOrderPayment); err != nil {
			return nil, err
		}
		if err := add(rial, o.CommissionAmount.Neg(), types.TransactionKindCommission); err != nil {
			return nil, err
		}
		if o.Product.IsCoin() {
			if _, err := s.store.AdjustCoinHolding(ctx, tx, o.UserID, o.Product, o.Amount); err != nil {
				return nil, err
			}
		} else if err := add(gold, o.Amount, types.TransactionKindDeposit); err != nil {
			return nil, err
		}
	case types.OrderSideSell:
		if o.Product.IsCoin() {
			if _, err := s.store.AdjustCoinHolding(ctx, tx, o.UserID, o.Product, o.Amount.Neg()); err != nil {
				return nil, err
			}
		} else if err := add(gold, o.Amount.Neg(), types.TransactionKindOrderPayment); err != nil {
			return nil, err
		}
		if err := add(rial, o.TotalPrice, types.TransactionKindDeposit); err != nil {
			return nil, err
		}
		if err := add(rial, o.CommissionAmount.Neg(), types.TransactionKindCommission); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Validation("unknown order side")
	}
	return out, nil
}

// ChargeDelivery takes the delivered product and the delivery fee.
func (s *Service) ChargeDelivery(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest) ([]model.Transaction, error) {
	return s.deliveryMoves(ctx, tx, d, decimal.NewFromInt(-1), "delivery_charge")
}

// RefundDelivery reverses ChargeDelivery for a cancelled request.
func (s *Service) RefundDelivery(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest) ([]model.Transaction, error) {
	return s.deliveryMoves(ctx, tx, d, decimal.NewFromInt(1), "delivery_refund")
}

func (s *Service) deliveryMoves(ctx context.Context, tx pgx.Tx, d model.DeliveryRequest, sign decimal.Decimal, reason string) ([]model.Transaction, error) {
	meta := map[string]any{"delivery_id": d.ID, "product": string(d.Product), "reason": reason}
	var out []model.Transaction
	if d.Product.IsCoin() {
		if _, err := s.store.AdjustCoinHolding(ctx, tx, d.UserID, d.Product, d.Amount.Mul(sign)); err != nil {
			return nil, err
		}
	} else {
		gold, err := s.store.WalletByKind(ctx, tx, d.UserID, types.WalletKindGold)
		if err != nil {
			return nil, err
		}
		kind := types.TransactionKindWithdraw
		if sign.IsPositive() {
			kind = types.TransactionKindDeposit
		}
		t, err := s.move(ctx, tx, gold, d.Amount.Mul(sign), kind, d.ID, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if d.CommissionFee.IsPositive() {
		rial, err := s.store.WalletByKind(ctx, tx, d.UserID, types.WalletKindRial)
		if err != nil {
			return nil, err
		}
		t, err := s.move(ctx, tx, rial, d.CommissionFee.Mul(sign), types.TransactionKindCommission, d.ID, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// VerifyWalletChain recomputes the hash chain of a wallet the user owns.
func (s *Service) VerifyWalletChain(ctx context.Context, userID, walletID string) error {
	if !validID(walletID) {
		return apperr.NotFound("wallet")
	}
	w, err := s.store.GetWallet(ctx, nil, walletID)
	if err != nil {
		return err
	}
	if w.UserID != userID {
		return apperr.NotFound("wallet")
	}
	txs, err := s.store.WalletTransactions(ctx, walletID)
	if err != nil {
		return err
	}
	return VerifyChain(txs)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
