package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store keeps admin-set prices in product_prices.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetActivePrice(ctx context.Context, product types.ProductType) (model.Quote, error) {
	q := model.Quote{Product: product, Source: "admin"}
	err := s.pool.QueryRow(ctx, "select buy_price, sell_price, updated_at from product_prices where product = $1 and active", string(product)).
		Scan(&q.BuyPrice, &q.SellPrice, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return q, unavailable(product)
	}
	if err != nil {
		return q, fmt.Errorf("query price: %w", err)
	}
	if !validQuote(q) {
		return q, unavailable(product)
	}
	return q, nil
}

func (s *Store) SetPrice(ctx context.Context, product types.ProductType, buy, sell decimal.Decimal, updatedBy string) (model.Quote, error) {
	if !product.Valid() {
		return model.Quote{}, apperr.Validation("unknown product")
	}
	if !buy.IsPositive() || !sell.IsPositive() {
		return model.Quote{}, apperr.Validation("prices must be positive")
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		insert into product_prices (product, buy_price, sell_price, active, updated_by, updated_at)
		values ($1, $2, $3, true, $4, $5)
		on conflict (product) do update
		set buy_price = excluded.buy_price, sell_price = excluded.sell_price, active = true,
		    updated_by = excluded.updated_by, updated_at = excluded.updated_at
	`, string(product), buy, sell, updatedBy, now)
	if err != nil {
		return model.Quote{}, fmt.Errorf("upsert price: %w", err)
	}
	return model.Quote{Product: product, BuyPrice: buy, SellPrice: sell, Source: "admin", UpdatedAt: now}, nil
}
