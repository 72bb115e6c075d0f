package model

import "lv-goldex/internal/types"

type OrderFilter struct {
	UserID string
	Status types.OrderStatus
	Limit  int
	Offset int
}

type TransactionFilter struct {
	Kind   types.TransactionKind
	Status types.TransactionStatus
	Limit  int
	Offset int
}

type DeliveryFilter struct {
	UserID string
	Status types.DeliveryStatus
	Limit  int
	Offset int
}
