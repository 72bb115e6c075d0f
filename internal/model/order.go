package model

import (
	"time"

	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Side             types.OrderSide   `json:"side"`
	Product          types.ProductType `json:"product"`
	Amount           decimal.Decimal   `json:"amount"`
	UnitPrice        decimal.Decimal   `json:"unit_price"`
	TotalPrice       decimal.Decimal   `json:"total_price"`
	CommissionRate   decimal.Decimal   `json:"commission_rate"`
	CommissionAmount decimal.Decimal   `json:"commission_amount"`
	Status           types.OrderStatus `json:"status"`
	StatusReason     string            `json:"status_reason,omitempty"`
	PriceLockedAt    time.Time         `json:"price_locked_at"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// SettlementAmount is the rial amount that moves when the order completes:
// what a buyer pays including commission, or what a seller receives net of it.
func (o Order) SettlementAmount() decimal.Decimal {
	if o.Side == types.OrderSideSell {
		return o.TotalPrice.Sub(o.CommissionAmount)
	}
	return o.TotalPrice.Add(o.CommissionAmount)
}

// Expired reports whether the price lock has lapsed at now.
func (o Order) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && o.ExpiresAt.Before(now)
}
