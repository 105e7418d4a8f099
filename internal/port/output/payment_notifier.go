package output

import (
	"github.com/hardware-store/payment-gateway/internal/core"
)

// PaymentNotifier is an output port for the fire-and-forget completion
// notification. A publish failure is logged by the caller and never rolls
// back or blocks the payment transition.
type PaymentNotifier interface {
	// PaymentCompleted announces that the order's payment reached completed.
	PaymentCompleted(order *core.Order) error
	// Close closes the underlying connection
	Close() error
}
