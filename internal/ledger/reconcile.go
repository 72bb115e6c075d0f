package ledger

import (
	"context"
	"time"

	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

type CoinMismatch struct {
	UserID  string            `json:"user_id"`
	Product types.ProductType `json:"product"`
	Held    decimal.Decimal   `json:"held"`
	History decimal.Decimal   `json:"history"`
}

// VerifyCoinHoldings compares the maintained coin holdings of a user with
// the balance derived from settled orders and charged deliveries.
func (s *Service) VerifyCoinHoldings(ctx context.Context, userID string) ([]CoinMismatch, error) {
	held, err := s.store.CoinHoldings(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.SettledCoinHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []CoinMismatch
	for _, p := range types.CoinProducts {
		if !held[p].Equal(history[p]) {
			out = append(out, CoinMismatch{UserID: userID, Product: p, Held: held[p], History: history[p]})
		}
	}
	return out, nil
}

// ReconcileOnce checks every user with coin activity and returns all
// mismatches found. Per-user read errors are logged and skipped.
func (s *Service) ReconcileOnce(ctx context.Context) ([]CoinMismatch, error) {
	users, err := s.store.UsersWithCoinActivity(ctx)
	if err != nil {
		return nil, err
	}
	var out []CoinMismatch
	for _, u := range users {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		m, err := s.VerifyCoinHoldings(ctx, u)
		if err != nil {
			s.logger.Warn("coin reconciliation failed", "user_id", u, "error", err)
			continue
		}
		for _, mm := range m {
			s.logger.Error("coin holding mismatch", "user_id", mm.UserID, "product", mm.Product, "held", mm.Held.String(), "history", mm.History.String())
		}
		out = append(out, m...)
	}
	s.metrics.CoinMismatch(len(out))
	return out, nil
}

// RunReconciler repeats ReconcileOnce every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("coin reconciliation pass failed", "error", err)
			}
		}
	}
}
