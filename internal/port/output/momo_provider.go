package output

import (
	"context"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
)

// PaymentRequest contains the data needed to request a mobile money payment.
type PaymentRequest struct {
	OrderID       uuid.UUID
	Amount        float64
	PhoneNumber   string
	CustomerName  string
	CustomerEmail string
}

// WebhookEvent is the canonical form of a provider push notification.
type WebhookEvent struct {
	Reference string
	Status    core.AttemptStatus
	Message   string
}

// MobileMoneyProvider is an output port for an external mobile money
// operator. MTN MoMo and Airtel Money implement it; the orchestrator only
// ever depends on this interface.
//
// RequestPayment, CheckPaymentStatus, PollPaymentStatus and RefundPayment
// never return raw transport errors: every outcome, including network
// failure, is normalised into the returned PaymentAttempt.
type MobileMoneyProvider interface {
	// Name returns the provider key used for routing.
	Name() core.PaymentProvider

	// ValidatePhoneNumber reports whether raw is a valid MSISDN for this
	// provider. Invalid numbers must never reach the network.
	ValidatePhoneNumber(raw string) bool

	// FormatPhoneNumber canonicalises raw to 2507XXXXXXXX form.
	FormatPhoneNumber(raw string) string

	// RequestPayment initiates a payment and returns the minted transaction
	// reference with status PENDING, or a FAILED attempt after retries.
	RequestPayment(ctx context.Context, req PaymentRequest) *core.PaymentAttempt

	// CheckPaymentStatus queries the provider once, without retries, and maps
	// the native status code to the canonical set. Network errors map to
	// UNKNOWN.
	CheckPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt

	// PollPaymentStatus repeatedly checks until a terminal status, the
	// attempt ceiling (~180s) or ctx cancellation. Exhaustion yields TIMEOUT.
	PollPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt

	// RefundPayment refunds a completed payment, with the same retry policy
	// as RequestPayment.
	RefundPayment(ctx context.Context, reference string, amount float64) *core.PaymentAttempt

	// ValidateAccount best-effort checks that the MSISDN holds an active
	// account. Any failure reports false; it never blocks a payment.
	ValidateAccount(ctx context.Context, phoneNumber string) bool

	// VerifyWebhookSignature checks the HMAC signature of a raw webhook
	// payload.
	VerifyWebhookSignature(payload []byte, signature string) bool

	// ParseWebhook extracts the canonical {reference, outcome} from a
	// provider-specific push payload.
	ParseWebhook(payload []byte) (*WebhookEvent, error)
}
