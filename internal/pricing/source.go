package pricing

import (
	"context"
	"errors"
	"log/slog"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"
)

// Source returns the current buy and sell price of a product.
type Source interface {
	GetActivePrice(ctx context.Context, product types.ProductType) (model.Quote, error)
}

func unavailable(product types.ProductType) error {
	return apperr.New(apperr.CodePriceUnavailable, "no active price for "+string(product))
}

func validQuote(q model.Quote) bool {
	return q.BuyPrice.IsPositive() && q.SellPrice.IsPositive()
}

// Fallback asks primary first and falls back to secondary on any error.
type Fallback struct {
	primary   Source
	secondary Source
	logger    *slog.Logger
}

func NewFallback(primary, secondary Source, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) GetActivePrice(ctx context.Context, product types.ProductType) (model.Quote, error) {
	q, err := f.primary.GetActivePrice(ctx, product)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, apperr.ErrPriceUnavailable) {
		f.logger.Warn("primary price source failed", "product", product, "error", err)
	}
	return f.secondary.GetActivePrice(ctx, product)
}
