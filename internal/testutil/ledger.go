package testutil

import (
	"context"
	"sort"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerStore implements ledger.Store over a MemStore.
type LedgerStore struct{ m *MemStore }

func (m *MemStore) Ledger() *LedgerStore { return &LedgerStore{m: m} }

func (l *LedgerStore) EnsureWallets(ctx context.Context, tx pgx.Tx, userID string) ([]model.Wallet, error) {
	if err := l.m.failure("EnsureWallets", userID); err != nil {
		return nil, err
	}
	st := l.m.state(tx)
	for _, kind := range []types.WalletKind{types.WalletKindRial, types.WalletKindGold} {
		if _, ok := findWallet(st, userID, kind); !ok {
			w := newWallet(userID, kind, l.m.now())
			st.wallets[w.ID] = w
		}
	}
	return l.WalletsByUser(ctx, tx, userID)
}

func (l *LedgerStore) WalletsByUser(ctx context.Context, tx pgx.Tx, userID string) ([]model.Wallet, error) {
	st := l.m.state(tx)
	var out []model.Wallet
	for _, w := range st.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind
		}
		if out[i].Primary != out[j].Primary {
			return out[i].Primary
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (l *LedgerStore) WalletByKind(ctx context.Context, tx pgx.Tx, userID string, kind types.WalletKind) (model.Wallet, error) {
	w, ok := findWallet(l.m.state(tx), userID, kind)
	if !ok {
		return w, notFound(string(kind) + " wallet")
	}
	return w, nil
}

func (l *LedgerStore) GetWallet(ctx context.Context, tx pgx.Tx, walletID string) (model.Wallet, error) {
	w, ok := l.m.state(tx).wallets[walletID]
	if !ok {
		return w, notFound("wallet")
	}
	return w, nil
}

func (l *LedgerStore) CreateWallet(ctx context.Context, tx pgx.Tx, w model.Wallet) (model.Wallet, error) {
	if err := l.m.failure("CreateWallet", w.UserID); err != nil {
		return w, err
	}
	now := l.m.now()
	w.Balance = decimal.Zero
	w.Primary = false
	w.CreatedAt, w.UpdatedAt = now, now
	l.m.state(tx).wallets[w.ID] = w
	return w, nil
}

func (l *LedgerStore) MoveBalance(ctx context.Context, tx pgx.Tx, walletID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := l.m.failure("MoveBalance", walletID); err != nil {
		return decimal.Zero, err
	}
	st := l.m.state(tx)
	w, ok := st.wallets[walletID]
	if !ok {
		return decimal.Zero, notFound("wallet")
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, apperr.InsufficientBalance(next.Neg())
	}
	w.Balance = next
	w.UpdatedAt = l.m.now()
	st.wallets[walletID] = w
	return next, nil
}

func (l *LedgerStore) InsertTransaction(ctx context.Context, tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
	if err := l.m.failure("InsertTransaction", t.WalletID); err != nil {
		return t, err
	}
	st := l.m.state(tx)
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	t.UpdatedAt = t.CreatedAt
	t = l.m.link(st, t)
	st.txs = append(st.txs, t)
	return t, nil
}

func (l *LedgerStore) GetTransactionForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Transaction, error) {
	for _, t := range l.m.state(tx).txs {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Transaction{}, notFound("transaction")
}

func (l *LedgerStore) UpdateTransactionStatus(ctx context.Context, tx pgx.Tx, id string, from, to types.TransactionStatus, metadata map[string]any) error {
	st := l.m.state(tx)
	for i, t := range st.txs {
		if t.ID != id {
			continue
		}
		if t.Status != from {
			return apperr.New(apperr.CodeAlreadyProcessed, "transaction is no longer "+string(from))
		}
		meta := make(map[string]any, len(t.Metadata)+len(metadata))
		for k, v := range t.Metadata {
			meta[k] = v
		}
		for k, v := range metadata {
			meta[k] = v
		}
		t.Status = to
		t.Metadata = meta
		t.UpdatedAt = l.m.now()
		st.txs[i] = t
		return nil
	}
	return apperr.New(apperr.CodeAlreadyProcessed, "transaction is no longer "+string(from))
}

func (l *LedgerStore) ListTransactions(ctx context.Context, userID string, f model.TransactionFilter) ([]model.Transaction, error) {
	st := l.m.state(nil)
	var out []model.Transaction
	for i := len(st.txs) - 1; i >= 0; i-- {
		t := st.txs[i]
		if t.UserID != userID {
			continue
		}
		if f.Kind != "" && t.Kind != f.Kind {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	return paginate(out, f.Limit, f.Offset), nil
}

func (l *LedgerStore) WalletTransactions(ctx context.Context, walletID string) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range l.m.state(nil).txs {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *LedgerStore) AdjustCoinHolding(ctx context.Context, tx pgx.Tx, userID string, product types.ProductType, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := l.m.failure("AdjustCoinHolding", userID); err != nil {
		return decimal.Zero, err
	}
	st := l.m.state(tx)
	next := st.coins[userID][product].Add(delta)
	if next.IsNegative() {
		return decimal.Zero, apperr.InsufficientBalance(next.Neg())
	}
	if st.coins[userID] == nil {
		st.coins[userID] = make(map[types.ProductType]decimal.Decimal)
	}
	st.coins[userID][product] = next
	return next, nil
}

func (l *LedgerStore) CoinHoldings(ctx context.Context, tx pgx.Tx, userID string) (map[types.ProductType]decimal.Decimal, error) {
	out := make(map[types.ProductType]decimal.Decimal)
	for p, q := range l.m.state(tx).coins[userID] {
		out[p] = q
	}
	return out, nil
}

func (l *LedgerStore) SettledCoinHistory(ctx context.Context, userID string) (map[types.ProductType]decimal.Decimal, error) {
	st := l.m.state(nil)
	out := make(map[types.ProductType]decimal.Decimal)
	for _, o := range st.orders {
		if o.UserID != userID || o.Status != types.OrderStatusCompleted || !o.Product.IsCoin() {
			continue
		}
		if o.Side == types.OrderSideBuy {
			out[o.Product] = out[o.Product].Add(o.Amount)
		} else {
			out[o.Product] = out[o.Product].Sub(o.Amount)
		}
	}
	for _, d := range st.deliveries {
		if d.UserID != userID || d.ChargedAt == nil || d.Status == types.DeliveryStatusCancelled || !d.Product.IsCoin() {
			continue
		}
		out[d.Product] = out[d.Product].Sub(d.Amount)
	}
	return out, nil
}

func (l *LedgerStore) UsersWithCoinActivity(ctx context.Context) ([]string, error) {
	st := l.m.state(nil)
	seen := make(map[string]bool)
	for u := range st.coins {
		seen[u] = true
	}
	for _, o := range st.orders {
		if o.Status == types.OrderStatusCompleted && o.Product.IsCoin() {
			seen[o.UserID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}
