package commission

import (
	"context"
	"fmt"

	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const ruleColumns = "id, product, buy_rate, sell_rate, min_amount, max_amount, active"

func (s *Store) ActiveRules(ctx context.Context, product types.ProductType) ([]model.CommissionRule, error) {
	rows, err := s.pool.Query(ctx, "select "+ruleColumns+" from commission_rules where active and product = $1 order by min_amount", string(product))
	if err != nil {
		return nil, fmt.Errorf("query commission rules: %w", err)
	}
	return scanRules(rows)
}

func (s *Store) List(ctx context.Context) ([]model.CommissionRule, error) {
	rows, err := s.pool.Query(ctx, "select "+ruleColumns+" from commission_rules order by product, min_amount")
	if err != nil {
		return nil, fmt.Errorf("query commission rules: %w", err)
	}
	return scanRules(rows)
}

func scanRules(rows pgx.Rows) ([]model.CommissionRule, error) {
	defer rows.Close()
	out := make([]model.CommissionRule, 0, 8)
	for rows.Next() {
		var r model.CommissionRule
		var product string
		var max *decimal.Decimal
		if err := rows.Scan(&r.ID, &product, &r.BuyRate, &r.SellRate, &r.MinAmount, &max, &r.Active); err != nil {
			return nil, err
		}
		r.Product = types.ProductType(product)
		r.MaxAmount = max
		out = append(out, r)
	}
	return out, rows.Err()
}
