package model

import (
	"time"

	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      types.WalletKind `json:"kind"`
	Balance   decimal.Decimal  `json:"balance"`
	Currency  string           `json:"currency"`
	Label     string           `json:"label,omitempty"`
	Primary   bool             `json:"primary"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Transaction struct {
	ID          string                  `json:"id"`
	UserID      string                  `json:"user_id"`
	WalletID    string                  `json:"wallet_id"`
	Kind        types.TransactionKind   `json:"kind"`
	Amount      decimal.Decimal         `json:"amount"`
	Status      types.TransactionStatus `json:"status"`
	ReferenceID string                  `json:"reference_id,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
	PrevHash    string                  `json:"prev_hash,omitempty"`
	Hash        string                  `json:"hash,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

type CoinHolding struct {
	UserID    string            `json:"user_id"`
	Product   types.ProductType `json:"product"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UpdatedAt time.Time         `json:"updated_at"`
}
