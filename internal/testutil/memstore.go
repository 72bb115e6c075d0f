// Package testutil provides an in-memory transactional store implementing
// the ledger, order and delivery store interfaces.
//
// Transactions are serialised: BeginTx takes a store-wide lock and clones
// the committed state, Commit swaps the clone in, Rollback discards it.
// Reads with a nil tx see the last committed state.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type memState struct {
	wallets    map[string]model.Wallet
	txs        []model.Transaction
	orders     map[string]model.Order
	deliveries map[string]model.DeliveryRequest
	coins      map[string]map[types.ProductType]decimal.Decimal
}

func newState() *memState {
	return &memState{
		wallets:    make(map[string]model.Wallet),
		orders:     make(map[string]model.Order),
		deliveries: make(map[string]model.DeliveryRequest),
		coins:      make(map[string]map[types.ProductType]decimal.Decimal),
	}
}

// clone copies every container. Stored values are never mutated in place,
// so a shallow copy of each record is enough.
func (s *memState) clone() *memState {
	c := newState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.txs = append(make([]model.Transaction, 0, len(s.txs)), s.txs...)
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.deliveries {
		c.deliveries[k] = v
	}
	for u, m := range s.coins {
		cm := make(map[types.ProductType]decimal.Decimal, len(m))
		for p, q := range m {
			cm[p] = q
		}
		c.coins[u] = cm
	}
	return c
}

type MemStore struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	st     *memState
	failMu sync.Mutex
	fails  map[string]error
	now    func() time.Time
	chain  func(t model.Transaction, prev string) string
}

func NewMemStore() *MemStore {
	return &MemStore{st: newState(), fails: make(map[string]error), now: time.Now}
}

type memTx struct {
	pgx.Tx
	store *MemStore
	st    *memState
	done  bool
}

func (m *MemStore) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.txMu.Lock()
	m.mu.RLock()
	st := m.st.clone()
	m.mu.RUnlock()
	return &memTx{store: m, st: st}, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	t.store.st = t.st
	t.store.mu.Unlock()
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (m *MemStore) state(tx pgx.Tx) *memState {
	if mt, ok := tx.(*memTx); ok && mt != nil {
		return mt.st
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

// FailOn makes the next call of op return err. Key is either the operation
// name ("MoveBalance") or the name plus an id ("GetForUpdate:<id>").
func (m *MemStore) FailOn(key string, err error) {
	m.failMu.Lock()
	m.fails[key] = err
	m.failMu.Unlock()
}

// UseChain makes inserted transactions carry prev/hash links computed by fn.
func (m *MemStore) UseChain(fn func(t model.Transaction, prev string) string) {
	m.chain = fn
}

func (m *MemStore) link(st *memState, t model.Transaction) model.Transaction {
	if m.chain == nil {
		return t
	}
	prev := ""
	for i := len(st.txs) - 1; i >= 0; i-- {
		if st.txs[i].WalletID == t.WalletID {
			prev = st.txs[i].Hash
			break
		}
	}
	t.PrevHash = prev
	t.Hash = m.chain(t, prev)
	return t
}

// Tamper rewrites a committed transaction amount without fixing its hash.
func (m *MemStore) Tamper(txID string, amount decimal.Decimal) {
	m.seed(func(st *memState) {
		for i := range st.txs {
			if st.txs[i].ID == txID {
				st.txs[i].Amount = amount
			}
		}
	})
}

func (m *MemStore) failure(op, id string) error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	for _, key := range []string{op + ":" + id, op} {
		if err, ok := m.fails[key]; ok {
			delete(m.fails, key)
			return err
		}
	}
	return nil
}

// seed applies fn to the committed state under the transaction lock.
func (m *MemStore) seed(fn func(st *memState)) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.st)
}

// SeedWallet creates or tops up a wallet, backed by a completed deposit row.
func (m *MemStore) SeedWallet(userID string, kind types.WalletKind, balance decimal.Decimal) model.Wallet {
	var out model.Wallet
	m.seed(func(st *memState) {
		w, ok := findWallet(st, userID, kind)
		if !ok {
			w = newWallet(userID, kind, m.now())
		}
		w.Balance = w.Balance.Add(balance)
		st.wallets[w.ID] = w
		if !balance.IsZero() {
			st.txs = append(st.txs, m.link(st, model.Transaction{
				ID: uuid.NewString(), UserID: userID, WalletID: w.ID,
				Kind: types.TransactionKindDeposit, Amount: balance,
				Status: types.TransactionStatusCompleted, CreatedAt: m.now(),
			}))
		}
		out = w
	})
	return out
}

func (m *MemStore) SeedCoins(userID string, product types.ProductType, qty decimal.Decimal) {
	m.seed(func(st *memState) {
		if st.coins[userID] == nil {
			st.coins[userID] = make(map[types.ProductType]decimal.Decimal)
		}
		st.coins[userID][product] = qty
	})
}

func (m *MemStore) SeedOrder(o model.Order) model.Order {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	m.seed(func(st *memState) { st.orders[o.ID] = o })
	return o
}

func (m *MemStore) Wallet(userID string, kind types.WalletKind) (model.Wallet, bool) {
	return findWallet(m.state(nil), userID, kind)
}

func (m *MemStore) Order(id string) (model.Order, bool) {
	o, ok := m.state(nil).orders[id]
	return o, ok
}

func (m *MemStore) Delivery(id string) (model.DeliveryRequest, bool) {
	d, ok := m.state(nil).deliveries[id]
	return d, ok
}

func (m *MemStore) Coins(userID string) map[types.ProductType]decimal.Decimal {
	out := make(map[types.ProductType]decimal.Decimal)
	for p, q := range m.state(nil).coins[userID] {
		out[p] = q
	}
	return out
}

// AllTransactions returns every committed transaction in insert order.
func (m *MemStore) AllTransactions() []model.Transaction {
	st := m.state(nil)
	return append([]model.Transaction(nil), st.txs...)
}

// AllOrders returns every committed order, oldest first.
func (m *MemStore) AllOrders() []model.Order {
	st := m.state(nil)
	out := make([]model.Order, 0, len(st.orders))
	for _, o := range st.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ConservationHolds reports whether every wallet balance equals the sum of
// its completed rows plus its pending withdrawals.
func (m *MemStore) ConservationHolds() (bool, string) {
	st := m.state(nil)
	sums := make(map[string]decimal.Decimal)
	for _, t := range st.txs {
		if t.Status == types.TransactionStatusCompleted ||
			(t.Status == types.TransactionStatusPending && t.Kind == types.TransactionKindWithdraw) {
			sums[t.WalletID] = sums[t.WalletID].Add(t.Amount)
		}
	}
	for id, w := range st.wallets {
		if !w.Balance.Equal(sums[id]) {
			return false, "wallet " + id + " balance " + w.Balance.String() + " != ledger " + sums[id].String()
		}
	}
	return true, ""
}

func newWallet(userID string, kind types.WalletKind, now time.Time) model.Wallet {
	return model.Wallet{
		ID: uuid.NewString(), UserID: userID, Kind: kind,
		Balance: decimal.Zero, Currency: kind.Currency(), Primary: true,
		CreatedAt: now, UpdatedAt: now,
	}
}

func findWallet(st *memState, userID string, kind types.WalletKind) (model.Wallet, bool) {
	for _, w := range st.wallets {
		if w.UserID == userID && w.Kind == kind && w.Primary {
			return w, true
		}
	}
	return model.Wallet{}, false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func notFound(what string) error { return apperr.NotFound(what) }
