// Package tradingmode holds the system-wide trading pause flag. The record is
// versioned and read from storage on every check, so a pause applies to the
// next mutating request on any instance.
package tradingmode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Reader interface {
	Get(ctx context.Context) (model.TradingMode, error)
}

type Gate struct {
	r Reader
}

func NewGate(r Reader) *Gate {
	return &Gate{r: r}
}

// Check fails with TradingPaused while the flag is set.
func (g *Gate) Check(ctx context.Context) error {
	mode, err := g.r.Get(ctx)
	if err != nil {
		return fmt.Errorf("read trading mode: %w", err)
	}
	if mode.TradingPaused {
		return apperr.TradingPaused(mode.Message)
	}
	return nil
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context) (model.TradingMode, error) {
	var m model.TradingMode
	err := s.pool.QueryRow(ctx, "select trading_paused, message, version, updated_by, updated_at from trading_mode where id = 1").
		Scan(&m.TradingPaused, &m.Message, &m.Version, &m.UpdatedBy, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TradingMode{Version: 0}, nil
	}
	return m, err
}

// Set writes a new mode if expectedVersion still matches the stored one.
// A stale version fails with ConflictingPendingState.
func (s *Store) Set(ctx context.Context, paused bool, message, updatedBy string, expectedVersion int64) (model.TradingMode, error) {
	var m model.TradingMode
	err := s.pool.QueryRow(ctx, `
		update trading_mode
		set trading_paused = $1, message = $2, updated_by = $3, version = version + 1, updated_at = $4
		where id = 1 and version = $5
		returning trading_paused, message, version, updated_by, updated_at
	`, paused, strings.TrimSpace(message), updatedBy, time.Now().UTC(), expectedVersion).
		Scan(&m.TradingPaused, &m.Message, &m.Version, &m.UpdatedBy, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, apperr.New(apperr.CodeConflict, "trading mode changed concurrently, reload and retry")
	}
	return m, err
}
