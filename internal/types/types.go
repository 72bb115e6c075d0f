package types

type WalletKind string

type TransactionKind string

type TransactionStatus string

type OrderSide string

type OrderStatus string

type ProductType string

type DeliveryStatus string

const (
	WalletKindRial WalletKind = "rial"
	WalletKindGold WalletKind = "gold"
)

const (
	TransactionKindDeposit      TransactionKind = "deposit"
	TransactionKindWithdraw     TransactionKind = "withdraw"
	TransactionKindTransfer     TransactionKind = "transfer"
	TransactionKindOrderPayment TransactionKind = "order_payment"
	TransactionKindCommission   TransactionKind = "commission"
)

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusExpired    OrderStatus = "expired"
)

const (
	ProductGold18K     ProductType = "gold_18k"
	ProductCoinFull    ProductType = "coin_full"
	ProductCoinHalf    ProductType = "coin_half"
	ProductCoinQuarter ProductType = "coin_quarter"
)

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusApproved   DeliveryStatus = "approved"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusReady      DeliveryStatus = "ready"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusCancelled  DeliveryStatus = "cancelled"
)

// Products lists every tradable product in display order.
var Products = []ProductType{ProductGold18K, ProductCoinFull, ProductCoinHalf, ProductCoinQuarter}

// CoinProducts lists the coin products tracked as holdings.
var CoinProducts = []ProductType{ProductCoinFull, ProductCoinHalf, ProductCoinQuarter}

func (k WalletKind) Valid() bool {
	return k == WalletKindRial || k == WalletKindGold
}

// Currency is the unit a wallet of this kind is denominated in.
func (k WalletKind) Currency() string {
	if k == WalletKindGold {
		return "XAU_G"
	}
	return "IRR"
}

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

func (p ProductType) Valid() bool {
	switch p {
	case ProductGold18K, ProductCoinFull, ProductCoinHalf, ProductCoinQuarter:
		return true
	}
	return false
}

// IsCoin reports whether the product settles into coin holdings rather than
// the gold wallet.
func (p ProductType) IsCoin() bool {
	switch p {
	case ProductCoinFull, ProductCoinHalf, ProductCoinQuarter:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed, OrderStatusExpired:
		return true
	}
	return false
}

// IsOpen reports whether an order in this status still holds the user's
// single open-order slot.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed || s == OrderStatusProcessing
}

func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && !s.IsOpen()
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusApproved, DeliveryStatusProcessing,
		DeliveryStatusReady, DeliveryStatusDelivered, DeliveryStatusCancelled:
		return true
	}
	return false
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}
