package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/db"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the persistence surface of the ledger. Writes always take the
// caller's transaction; reads accept a nil tx to run on the pool.
type Store interface {
	EnsureWallets(ctx context.Context, tx pgx.Tx, userID string) ([]model.Wallet, error)
	WalletsByUser(ctx context.Context, tx pgx.Tx, userID string) ([]model.Wallet, error)
	WalletByKind(ctx context.Context, tx pgx.Tx, userID string, kind types.WalletKind) (model.Wallet, error)
	GetWallet(ctx context.Context, tx pgx.Tx, walletID string) (model.Wallet, error)
	CreateWallet(ctx context.Context, tx pgx.Tx, w model.Wallet) (model.Wallet, error)
	MoveBalance(ctx context.Context, tx pgx.Tx, walletID string, delta decimal.Decimal) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, tx pgx.Tx, t model.Transaction) (model.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, tx pgx.Tx, id string, from, to types.TransactionStatus, metadata map[string]any) error
	ListTransactions(ctx context.Context, userID string, f model.TransactionFilter) ([]model.Transaction, error)
	WalletTransactions(ctx context.Context, walletID string) ([]model.Transaction, error)
	AdjustCoinHolding(ctx context.Context, tx pgx.Tx, userID string, product types.ProductType, delta decimal.Decimal) (decimal.Decimal, error)
	CoinHoldings(ctx context.Context, tx pgx.Tx, userID string) (map[types.ProductType]decimal.Decimal, error)
	SettledCoinHistory(ctx context.Context, userID string) (map[types.ProductType]decimal.Decimal, error)
	UsersWithCoinActivity(ctx context.Context) ([]string, error)
}

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) q(tx pgx.Tx) db.Querier {
	if tx != nil {
		return tx
	}
	return s.pool
}

const walletColumns = "id, user_id, kind, balance, currency, label, is_primary, created_at, updated_at"

func scanWallet(row pgx.Row) (model.Wallet, error) {
	var w model.Wallet
	var kind string
	err := row.Scan(&w.ID, &w.UserID, &kind, &w.Balance, &w.Currency, &w.Label, &w.Primary, &w.CreatedAt, &w.UpdatedAt)
	w.Kind = types.WalletKind(kind)
	return w, err
}

func (s *PGStore) EnsureWallets(ctx context.Context, tx pgx.Tx, userID string) ([]model.Wallet, error) {
	now := time.Now().UTC()
	for _, kind := range []types.WalletKind{types.WalletKindRial, types.WalletKindGold} {
		_, err := tx.Exec(ctx, "insert into wallets (id, user_id, kind, balance, currency, is_primary, created_at, updated_at) values ($1, $2, $3, 0, $4, true, $5, $5) on conflict (user_id, kind) where is_primary do nothing",
			uuid.NewString(), userID, string(kind), kind.Currency(), now)
		if err != nil {
			return nil, fmt.Errorf("ensure %s wallet: %w", kind, err)
		}
	}
	return s.WalletsByUser(ctx, tx, userID)
}

func (s *PGStore) WalletsByUser(ctx context.Context, tx pgx.Tx, userID string) ([]model.Wallet, error) {
	rows, err := s.q(tx).Query(ctx, "select "+walletColumns+" from wallets where user_id = $1 order by kind desc, is_primary desc, created_at", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PGStore) WalletByKind(ctx context.Context, tx pgx.Tx, userID string, kind types.WalletKind) (model.Wallet, error) {
	w, err := scanWallet(s.q(tx).QueryRow(ctx, "select "+walletColumns+" from wallets where user_id = $1 and kind = $2 and is_primary", userID, string(kind)))
	if errors.Is(err, pgx.ErrNoRows) {
		return w, apperr.NotFound(string(kind) + " wallet")
	}
	return w, err
}

func (s *PGStore) GetWallet(ctx context.Context, tx pgx.Tx, walletID string) (model.Wallet, error) {
	w, err := scanWallet(s.q(tx).QueryRow(ctx, "select "+walletColumns+" from wallets where id = $1", walletID))
	if errors.Is(err, pgx.ErrNoRows) {
		return w, apperr.NotFound("wallet")
	}
	return w, err
}

// CreateWallet inserts an additional, non-primary wallet.
func (s *PGStore) CreateWallet(ctx context.Context, tx pgx.Tx, w model.Wallet) (model.Wallet, error) {
	now := time.Now().UTC()
	return scanWallet(tx.QueryRow(ctx, `
		insert into wallets (id, user_id, kind, balance, currency, label, is_primary, created_at, updated_at)
		values ($1, $2, $3, 0, $4, $5, false, $6, $6)
		returning `+walletColumns,
		w.ID, w.UserID, string(w.Kind), w.Currency, w.Label, now))
}

// MoveBalance applies delta only if the result stays non-negative. When no
// row qualifies the wallet is re-read to tell a shortage from a missing id.
func (s *PGStore) MoveBalance(ctx context.Context, tx pgx.Tx, walletID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "update wallets set balance = balance + $2, updated_at = $3 where id = $1 and balance + $2 >= 0 returning balance",
		walletID, delta, time.Now().UTC()).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}
	var current decimal.Decimal
	err = tx.QueryRow(ctx, "select balance from wallets where id = $1", walletID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperr.NotFound("wallet")
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Zero, apperr.InsufficientBalance(current.Add(delta).Neg())
}

// InsertTransaction appends t to its wallet's hash chain. The advisory lock
// serialises appends per wallet until the surrounding transaction ends.
func (s *PGStore) InsertTransaction(ctx context.Context, tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
	if _, err := tx.Exec(ctx, "select pg_advisory_xact_lock(hashtext($1))", t.WalletID); err != nil {
		return t, err
	}
	var prev string
	err := tx.QueryRow(ctx, "select hash from transactions where wallet_id = $1 order by seq desc limit 1", t.WalletID).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return t, err
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return t, err
	}
	t.CreatedAt = t.CreatedAt.UTC().Truncate(time.Microsecond)
	t.UpdatedAt = t.CreatedAt
	t.PrevHash = prev
	t.Hash = ChainHash(t, prev)
	_, err = tx.Exec(ctx, `
		insert into transactions (id, user_id, wallet_id, kind, amount, status, reference_id, metadata, prev_hash, hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.UserID, t.WalletID, string(t.Kind), t.Amount, string(t.Status), t.ReferenceID, meta, t.PrevHash, t.Hash, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return t, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

const txColumns = "id, user_id, wallet_id, kind, amount, status, reference_id, metadata, prev_hash, hash, created_at, updated_at"

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	var kind, status string
	var meta []byte
	if err := row.Scan(&t.ID, &t.UserID, &t.WalletID, &kind, &t.Amount, &status, &t.ReferenceID, &meta, &t.PrevHash, &t.Hash, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.Kind = types.TransactionKind(kind)
	t.Status = types.TransactionStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return t, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return t, nil
}

func (s *PGStore) GetTransactionForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Transaction, error) {
	t, err := scanTransaction(tx.QueryRow(ctx, "select "+txColumns+" from transactions where id = $1 for update", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return t, apperr.NotFound("transaction")
	}
	return t, err
}

// UpdateTransactionStatus flips status only from the expected state and
// merges metadata into the existing object.
func (s *PGStore) UpdateTransactionStatus(ctx context.Context, tx pgx.Tx, id string, from, to types.TransactionStatus, metadata map[string]any) error {
	patch, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, "update transactions set status = $3, metadata = metadata || $4::jsonb, updated_at = $5 where id = $1 and status = $2",
		id, string(from), string(to), patch, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.CodeAlreadyProcessed, "transaction is no longer "+string(from))
	}
	return nil
}

func (s *PGStore) ListTransactions(ctx context.Context, userID string, f model.TransactionFilter) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		select `+txColumns+` from transactions
		where user_id = $1 and ($2 = '' or kind = $2) and ($3 = '' or status = $3)
		order by created_at desc, seq desc
		limit $4 offset $5
	`, userID, string(f.Kind), string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *PGStore) WalletTransactions(ctx context.Context, walletID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, "select "+txColumns+" from transactions where wallet_id = $1 order by seq", walletID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) AdjustCoinHolding(ctx context.Context, tx pgx.Tx, userID string, product types.ProductType, delta decimal.Decimal) (decimal.Decimal, error) {
	now := time.Now().UTC()
	var qty decimal.Decimal
	var err error
	if delta.IsNegative() {
		err = tx.QueryRow(ctx, "update coin_holdings set quantity = quantity + $3, updated_at = $4 where user_id = $1 and product = $2 and quantity + $3 >= 0 returning quantity",
			userID, string(product), delta, now).Scan(&qty)
		if errors.Is(err, pgx.ErrNoRows) {
			var current decimal.Decimal
			if err := tx.QueryRow(ctx, "select quantity from coin_holdings where user_id = $1 and product = $2", userID, string(product)).Scan(&current); err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return decimal.Zero, err
			}
			return decimal.Zero, apperr.InsufficientBalance(current.Add(delta).Neg())
		}
		return qty, err
	}
	err = tx.QueryRow(ctx, `
		insert into coin_holdings (user_id, product, quantity, updated_at) values ($1, $2, $3, $4)
		on conflict (user_id, product) do update set quantity = coin_holdings.quantity + excluded.quantity, updated_at = excluded.updated_at
		returning quantity
	`, userID, string(product), delta, now).Scan(&qty)
	return qty, err
}

func (s *PGStore) CoinHoldings(ctx context.Context, tx pgx.Tx, userID string) (map[types.ProductType]decimal.Decimal, error) {
	rows, err := s.q(tx).Query(ctx, "select product, quantity from coin_holdings where user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	return collectProductSums(rows)
}

// SettledCoinHistory derives coin balances from completed orders minus
// deliveries whose charge has not been refunded.
func (s *PGStore) SettledCoinHistory(ctx context.Context, userID string) (map[types.ProductType]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, `
		select product, sum(qty) from (
			select product, case when side = 'buy' then amount else -amount end as qty
			from orders where user_id = $1 and status = 'completed' and product like 'coin_%'
			union all
			select product, -amount
			from delivery_requests where user_id = $1 and charged_at is not null and status <> 'cancelled' and product like 'coin_%'
		) h group by product
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectProductSums(rows)
}

func (s *PGStore) UsersWithCoinActivity(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		select user_id::text from coin_holdings
		union
		select user_id::text from orders where status = 'completed' and product like 'coin_%'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func collectProductSums(rows pgx.Rows) (map[types.ProductType]decimal.Decimal, error) {
	defer rows.Close()
	out := make(map[types.ProductType]decimal.Decimal)
	for rows.Next() {
		var product string
		var qty decimal.Decimal
		if err := rows.Scan(&product, &qty); err != nil {
			return nil, err
		}
		out[types.ProductType(product)] = qty
	}
	return out, rows.Err()
}
