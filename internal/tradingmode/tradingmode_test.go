package tradingmode

import (
	"context"
	"errors"
	"testing"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
)

type fakeReader struct {
	modes []model.TradingMode
	calls int
	err   error
}

func (f *fakeReader) Get(ctx context.Context) (model.TradingMode, error) {
	if f.err != nil {
		return model.TradingMode{}, f.err
	}
	m := f.modes[f.calls]
	if f.calls < len(f.modes)-1 {
		f.calls++
	}
	return m, nil
}

func TestGateReadsEveryCall(t *testing.T) {
	r := &fakeReader{modes: []model.TradingMode{
		{TradingPaused: false, Version: 1},
		{TradingPaused: true, Message: "market closed", Version: 2},
	}}
	g := NewGate(r)
	if err := g.Check(context.Background()); err != nil {
		t.Fatalf("expected open, got %v", err)
	}
	err := g.Check(context.Background())
	if !errors.Is(err, apperr.ErrTradingPaused) {
		t.Fatalf("expected trading paused, got %v", err)
	}
	if err.Error() != "market closed" {
		t.Fatalf("expected admin message, got %q", err.Error())
	}
}

func TestGateReadFailureIsNotPause(t *testing.T) {
	g := NewGate(&fakeReader{err: errors.New("timeout")})
	err := g.Check(context.Background())
	if err == nil || errors.Is(err, apperr.ErrTradingPaused) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}
