package orders

import (
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"
)

// ExpiredReason is stored on orders whose price lock lapsed before settlement.
const ExpiredReason = "price lock expired"

var transitions = map[types.OrderStatus][]types.OrderStatus{
	types.OrderStatusPending: {
		types.OrderStatusConfirmed, types.OrderStatusProcessing, types.OrderStatusCompleted,
		types.OrderStatusCancelled, types.OrderStatusFailed, types.OrderStatusExpired,
	},
	types.OrderStatusConfirmed: {
		types.OrderStatusConfirmed, types.OrderStatusProcessing, types.OrderStatusCompleted,
		types.OrderStatusCancelled, types.OrderStatusFailed,
	},
	types.OrderStatusProcessing: {
		types.OrderStatusProcessing, types.OrderStatusCompleted,
		types.OrderStatusCancelled, types.OrderStatusFailed,
	},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to types.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks an operator-requested move. Expiry is not
// requestable; it only happens when the price lock lapses.
func ValidateTransition(from, to types.OrderStatus) error {
	if from.IsTerminal() {
		return apperr.New(apperr.CodeAlreadyProcessed, "order already "+string(from))
	}
	if !to.Valid() {
		return apperr.Validation("unknown order status " + string(to))
	}
	if to == types.OrderStatusExpired {
		return apperr.Validation("orders expire only when their price lock lapses")
	}
	if !CanTransition(from, to) {
		return apperr.Validation("cannot move order from " + string(from) + " to " + string(to))
	}
	return nil
}

// Apply returns o moved to status at now. processedAt is kept from the
// first time the order entered processing.
func Apply(o model.Order, to types.OrderStatus, reason string, now time.Time) model.Order {
	now = now.UTC()
	o.Status = to
	if reason != "" {
		o.StatusReason = reason
	}
	switch to {
	case types.OrderStatusProcessing:
		if o.ProcessedAt == nil {
			o.ProcessedAt = &now
		}
	case types.OrderStatusCompleted:
		o.CompletedAt = &now
	}
	o.UpdatedAt = now
	return o
}

// Expire marks a pending order whose lock has lapsed.
func Expire(o model.Order, now time.Time) model.Order {
	return Apply(o, types.OrderStatusExpired, ExpiredReason, now)
}
