package input

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
)

// PaymentService is the input port (primary port) for payment operations.
// Primary adapters (HTTP handlers) will use this.
type PaymentService interface {
	// InitiatePayment starts a mobile money payment for the order and stores
	// the minted transaction reference on it.
	InitiatePayment(ctx context.Context, orderID, actingUserID uuid.UUID) (*PaymentResult, error)

	// CheckStatus returns the current payment status, querying the provider
	// once when the payment is still pending. Terminal orders are answered
	// from the stored state with zero network calls.
	CheckStatus(ctx context.Context, orderID, actingUserID uuid.UUID) (*PaymentResult, error)

	// ProcessWithPolling initiates if needed, then blocks polling the
	// provider for up to ~180s. A poll timeout leaves the payment pending;
	// the webhook may still land it.
	ProcessWithPolling(ctx context.Context, orderID, actingUserID uuid.UUID) (*PaymentResult, error)

	// CancelPendingPayment fails a still-pending payment and cancels the
	// order. Returns core.ErrInvalidState once the payment is terminal.
	CancelPendingPayment(ctx context.Context, orderID, actingUserID uuid.UUID, reason string) error

	// RefundPayment refunds a completed payment through the provider and
	// moves it to refunded. Explicit action; never taken automatically.
	RefundPayment(ctx context.Context, orderID, actingUserID uuid.UUID) (*PaymentResult, error)
}

// WebhookService is the input port for provider push notifications.
type WebhookService interface {
	// HandleCallback verifies, parses and applies a provider webhook.
	// Idempotent redeliveries succeed as no-ops.
	HandleCallback(ctx context.Context, provider core.PaymentProvider, payload []byte, signature string) error
}

// PaymentResult is the outcome reported back to the HTTP layer.
type PaymentResult struct {
	OrderID       uuid.UUID
	TransactionID string
	Status        core.AttemptStatus
	PaymentStatus core.PaymentStatus
	OrderStatus   core.OrderStatus
	Message       string
	ExpiresAt     *time.Time
	PaidAt        *time.Time
}
