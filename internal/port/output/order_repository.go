package output

import (
	"context"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
)

// OrderRepository is an output port (secondary port) for order data access.
// Secondary adapters (database implementations) will implement this.
type OrderRepository interface {
	// FindByID retrieves an order by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*core.Order, error)

	// FindByTransactionReference retrieves the order holding the given
	// provider transaction reference. Used by the webhook receiver, which
	// knows only the reference.
	FindByTransactionReference(ctx context.Context, reference string) (*core.Order, error)

	// Save persists the order only if its stored payment status still equals
	// expectedPriorStatus. Returns core.ErrStatusConflict when a concurrent
	// writer got there first. This conditional write is what lets the polling
	// and webhook paths race safely.
	Save(ctx context.Context, order *core.Order, expectedPriorStatus core.PaymentStatus) error
}
