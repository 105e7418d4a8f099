package service

import (
	"context"
	"fmt"
	"log"

	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/input"
	"github.com/hardware-store/payment-gateway/internal/port/output"
)

// WebhookReceiver implements the WebhookService input port. It is the push
// counterpart of the polling path: providers notify asynchronously, the
// payload is verified and normalised, and the outcome goes through the same
// state machine, so a webhook racing an active poll is safe.
type WebhookReceiver struct {
	orders    output.OrderRepository
	providers map[core.PaymentProvider]output.MobileMoneyProvider
	machine   *PaymentStateMachine
	dedup     output.CallbackDedup
}

// NewWebhookReceiver creates a webhook receiver. dedup may be nil, in which
// case every delivery goes through the state machine (still idempotent).
func NewWebhookReceiver(
	orders output.OrderRepository,
	providers map[core.PaymentProvider]output.MobileMoneyProvider,
	machine *PaymentStateMachine,
	dedup output.CallbackDedup,
) input.WebhookService {
	return &WebhookReceiver{
		orders:    orders,
		providers: providers,
		machine:   machine,
		dedup:     dedup,
	}
}

// HandleCallback verifies and applies one provider push notification.
// A nil return means the delivery was fully processed, including the
// idempotent no-op case, so the HTTP layer can answer 200 and stop provider
// retries.
func (s *WebhookReceiver) HandleCallback(ctx context.Context, provider core.PaymentProvider, payload []byte, signature string) error {
	client, ok := s.providers[provider]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownProvider, provider)
	}

	if !client.VerifyWebhookSignature(payload, signature) {
		return fmt.Errorf("%w: %s callback", core.ErrInvalidSignature, provider)
	}

	event, err := client.ParseWebhook(payload)
	if err != nil {
		return &core.ValidationError{Field: "payload", Reason: err.Error()}
	}

	newStatus, terminal := paymentStatusFor(event.Status)
	if !terminal {
		// Intermediate notifications carry nothing to apply.
		log.Printf("Ignoring non-terminal %s callback for reference %s (%s)", provider, event.Reference, event.Status)
		return nil
	}

	// The order lookup runs before the dedup record. A callback can beat the
	// initiation save; recording the key on that delivery would make the
	// provider's retry a no-op and drop the outcome for good.
	order, err := s.orders.FindByTransactionReference(ctx, event.Reference)
	if err != nil {
		return fmt.Errorf("callback for reference %s: %w", event.Reference, err)
	}

	key := deliveryKey(provider, event)
	if s.alreadySeen(ctx, key) {
		return nil
	}

	_, applied, err := s.machine.Apply(ctx, order, newStatus, TransitionMeta{})
	if err != nil {
		// Release the key so the retried delivery is processed, not
		// short-circuited.
		s.forget(ctx, key)
		return err
	}
	if !applied {
		log.Printf("Duplicate %s callback for order %s collapsed to no-op", provider, order.ID)
	}
	return nil
}

func deliveryKey(provider core.PaymentProvider, event *output.WebhookEvent) string {
	return fmt.Sprintf("%s:%s:%s", provider, event.Reference, event.Status)
}

// alreadySeen short-circuits redelivered callbacks before they hit the state
// machine. Dedup failures degrade to processing the delivery.
func (s *WebhookReceiver) alreadySeen(ctx context.Context, key string) bool {
	if s.dedup == nil {
		return false
	}
	seen, err := s.dedup.Seen(ctx, key)
	if err != nil {
		log.Printf("Callback dedup unavailable, processing delivery anyway: %v", err)
		return false
	}
	return seen
}

func (s *WebhookReceiver) forget(ctx context.Context, key string) {
	if s.dedup == nil {
		return
	}
	if err := s.dedup.Forget(ctx, key); err != nil {
		log.Printf("Failed to release callback dedup key %s: %v", key, err)
	}
}

func paymentStatusFor(status core.AttemptStatus) (core.PaymentStatus, bool) {
	switch status {
	case core.AttemptCompleted:
		return core.PaymentStatusCompleted, true
	case core.AttemptFailed:
		return core.PaymentStatusFailed, true
	default:
		return core.PaymentStatusPending, false
	}
}
