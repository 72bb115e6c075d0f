package orders

import (
	"errors"
	"testing"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"
)

func TestValidateTransitionTable(t *testing.T) {
	cases := []struct {
		from, to types.OrderStatus
		want     error
	}{
		{types.OrderStatusPending, types.OrderStatusConfirmed, nil},
		{types.OrderStatusPending, types.OrderStatusCompleted, nil},
		{types.OrderStatusConfirmed, types.OrderStatusConfirmed, nil},
		{types.OrderStatusConfirmed, types.OrderStatusProcessing, nil},
		{types.OrderStatusProcessing, types.OrderStatusProcessing, nil},
		{types.OrderStatusProcessing, types.OrderStatusFailed, nil},
		{types.OrderStatusConfirmed, types.OrderStatusPending, apperr.ErrValidation},
		{types.OrderStatusProcessing, types.OrderStatusConfirmed, apperr.ErrValidation},
		{types.OrderStatusPending, types.OrderStatusExpired, apperr.ErrValidation},
		{types.OrderStatusPending, "shipped", apperr.ErrValidation},
		{types.OrderStatusCompleted, types.OrderStatusCancelled, apperr.ErrAlreadyProcessed},
		{types.OrderStatusExpired, types.OrderStatusCompleted, apperr.ErrAlreadyProcessed},
		{types.OrderStatusCancelled, types.OrderStatusProcessing, apperr.ErrAlreadyProcessed},
	}
	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		if tc.want == nil && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, err)
		}
	}
}

func TestApplyKeepsFirstProcessedAt(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	o := Apply(model.Order{Status: types.OrderStatusConfirmed}, types.OrderStatusProcessing, "", t0)
	if o.ProcessedAt == nil || !o.ProcessedAt.Equal(t0) {
		t.Fatalf("expected processedAt %v, got %v", t0, o.ProcessedAt)
	}
	o = Apply(o, types.OrderStatusProcessing, "", t0.Add(time.Minute))
	if !o.ProcessedAt.Equal(t0) {
		t.Fatalf("processedAt moved to %v", o.ProcessedAt)
	}
	o = Apply(o, types.OrderStatusCompleted, "", t0.Add(2*time.Minute))
	if o.CompletedAt == nil || !o.CompletedAt.Equal(t0.Add(2*time.Minute)) {
		t.Fatalf("expected completedAt set, got %v", o.CompletedAt)
	}
}

func TestExpireSetsReason(t *testing.T) {
	o := Expire(model.Order{Status: types.OrderStatusPending}, time.Now())
	if o.Status != types.OrderStatusExpired || o.StatusReason != ExpiredReason {
		t.Fatalf("unexpected expired order %+v", o)
	}
}
