package core

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the status of an order's payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// OrderStatus represents the fulfilment status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentMethod represents how an order is paid
type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
)

// PaymentProvider identifies the party settling a payment
type PaymentProvider string

const (
	ProviderMTNMobileMoney PaymentProvider = "mtn_mobile_money"
	ProviderAirtelMoney    PaymentProvider = "airtel_money"
	ProviderCash           PaymentProvider = "cash"
	ProviderBank           PaymentProvider = "bank"
	ProviderVisa           PaymentProvider = "visa"
	ProviderMastercard     PaymentProvider = "mastercard"
)

// Currency represents supported currencies
type Currency string

const (
	CurrencyRWF Currency = "RWF"
)

// PaymentInfo is the payment slice of an order. It is owned exclusively by
// the order; its status is written only through the state machine.
type PaymentInfo struct {
	Method        PaymentMethod
	Provider      PaymentProvider
	TransactionID string
	PhoneNumber   string
	Status        PaymentStatus
	PaidAt        *time.Time
}

// Order represents an order domain entity
type Order struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Amount        float64
	Currency      Currency
	Status        OrderStatus
	CustomerName  string
	CustomerEmail string
	Payment       PaymentInfo
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPaymentPending checks if the payment is still awaiting an outcome
func (o *Order) IsPaymentPending() bool {
	return o.Payment.Status == PaymentStatusPending
}

// IsPaymentTerminal checks if the payment is in a terminal state.
// Terminal states are never left by automatic transitions.
func (o *Order) IsPaymentTerminal() bool {
	switch o.Payment.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}
