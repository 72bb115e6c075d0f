package model

import (
	"time"

	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

type CommissionRule struct {
	ID        string            `json:"id"`
	Product   types.ProductType `json:"product"`
	BuyRate   decimal.Decimal   `json:"buy_rate"`
	SellRate  decimal.Decimal   `json:"sell_rate"`
	MinAmount decimal.Decimal   `json:"min_amount"`
	MaxAmount *decimal.Decimal  `json:"max_amount,omitempty"`
	Active    bool              `json:"active"`
}

// Quote carries the two sides of an admin or feed price. BuyPrice is what a
// buyer pays per unit, SellPrice what a seller receives.
type Quote struct {
	Product   types.ProductType `json:"product"`
	BuyPrice  decimal.Decimal   `json:"buy_price"`
	SellPrice decimal.Decimal   `json:"sell_price"`
	Source    string            `json:"source"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type DeliveryRequest struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	Product       types.ProductType    `json:"product"`
	Amount        decimal.Decimal      `json:"amount"`
	Status        types.DeliveryStatus `json:"status"`
	CommissionFee decimal.Decimal      `json:"commission_fee"`
	Address       string               `json:"address"`
	Note          string               `json:"note,omitempty"`
	CancelReason  string               `json:"cancel_reason,omitempty"`
	ChargedAt     *time.Time           `json:"charged_at,omitempty"`
	DeliveredAt   *time.Time           `json:"delivered_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type TradingMode struct {
	TradingPaused bool      `json:"trading_paused"`
	Message       string    `json:"message,omitempty"`
	Version       int64     `json:"version"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}
