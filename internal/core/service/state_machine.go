package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/output"
)

// TransitionMeta carries the context of a payment status transition.
type TransitionMeta struct {
	// Cancelled marks an explicit cancellation; it is the only failed
	// transition that cascades the order to cancelled.
	Cancelled bool
	// Refund marks an explicit refund request. pending→refunded and
	// automatic completed→refunded are both rejected.
	Refund bool
	// Reason is stored on the order for cancellations.
	Reason string
}

// PaymentStateMachine is the sole writer of PaymentInfo.Status. Both the
// polling path and the webhook path apply their observed outcomes through
// it, so whichever arrives second collapses into a no-op.
type PaymentStateMachine struct {
	orders   output.OrderRepository
	notifier output.PaymentNotifier
	now      func() time.Time
}

// NewPaymentStateMachine creates a state machine. notifier may be nil.
func NewPaymentStateMachine(orders output.OrderRepository, notifier output.PaymentNotifier) *PaymentStateMachine {
	return &PaymentStateMachine{
		orders:   orders,
		notifier: notifier,
		now:      time.Now,
	}
}

// Apply transitions the order's payment to newStatus and persists it with a
// conditional save keyed on the prior status. It returns the up-to-date
// order and whether this call performed the write.
//
// Terminal states absorb all automatic transitions: re-applying the same
// outcome, or a stale conflicting outcome, is a successful no-op. Losing the
// conditional save to a writer that settled the payment converges the same
// way, after a re-read. A save lost to a writer that left the payment
// pending is replayed once against the fresh row.
func (m *PaymentStateMachine) Apply(ctx context.Context, order *core.Order, newStatus core.PaymentStatus, meta TransitionMeta) (*core.Order, bool, error) {
	const maxAttempts = 2

	for attempt := 1; ; attempt++ {
		updated, applied, err := m.applyOnce(ctx, order, newStatus, meta)
		if err == nil {
			return updated, applied, nil
		}
		if !errors.Is(err, core.ErrStatusConflict) {
			return nil, false, err
		}

		fresh, readErr := m.orders.FindByID(ctx, order.ID)
		if readErr != nil {
			return nil, false, fmt.Errorf("failed to re-read order after save conflict: %w", readErr)
		}
		if fresh.IsPaymentTerminal() {
			// The concurrent writer already settled the payment; this call
			// collapses to a no-op.
			return fresh, false, nil
		}
		if attempt == maxAttempts {
			return nil, false, err
		}
		order = fresh
	}
}

func (m *PaymentStateMachine) applyOnce(ctx context.Context, order *core.Order, newStatus core.PaymentStatus, meta TransitionMeta) (*core.Order, bool, error) {
	current := order.Payment.Status

	if current == newStatus {
		return order, false, nil
	}

	if order.IsPaymentTerminal() {
		if meta.Refund && current == core.PaymentStatusCompleted && newStatus == core.PaymentStatusRefunded {
			return m.applyRefund(ctx, order)
		}
		// Terminal lock: a late poll result or stale webhook never
		// overwrites completed/failed/refunded.
		return order, false, nil
	}

	switch newStatus {
	case core.PaymentStatusCompleted:
		return m.applyCompleted(ctx, order)
	case core.PaymentStatusFailed:
		return m.applyFailed(ctx, order, meta)
	default:
		return nil, false, fmt.Errorf("%w: cannot move payment from %s to %s", core.ErrInvalidState, current, newStatus)
	}
}

func (m *PaymentStateMachine) applyCompleted(ctx context.Context, order *core.Order) (*core.Order, bool, error) {
	paidAt := m.now()
	order.Payment.Status = core.PaymentStatusCompleted
	order.Payment.PaidAt = &paidAt
	if order.Status == core.OrderStatusPending {
		order.Status = core.OrderStatusProcessing
	}

	if err := m.orders.Save(ctx, order, core.PaymentStatusPending); err != nil {
		return nil, false, fmt.Errorf("failed to save payment transition: %w", err)
	}

	m.notifyCompleted(order)
	return order, true, nil
}

func (m *PaymentStateMachine) applyFailed(ctx context.Context, order *core.Order, meta TransitionMeta) (*core.Order, bool, error) {
	order.Payment.Status = core.PaymentStatusFailed
	if meta.Cancelled {
		order.Status = core.OrderStatusCancelled
		order.CancelReason = meta.Reason
	}

	if err := m.orders.Save(ctx, order, core.PaymentStatusPending); err != nil {
		return nil, false, fmt.Errorf("failed to save payment transition: %w", err)
	}
	return order, true, nil
}

func (m *PaymentStateMachine) applyRefund(ctx context.Context, order *core.Order) (*core.Order, bool, error) {
	order.Payment.Status = core.PaymentStatusRefunded
	if err := m.orders.Save(ctx, order, core.PaymentStatusCompleted); err != nil {
		return nil, false, fmt.Errorf("failed to save payment transition: %w", err)
	}
	return order, true, nil
}

// notifyCompleted fires the completion notification. Failure is logged and
// swallowed: notification delivery must never roll back a payment.
func (m *PaymentStateMachine) notifyCompleted(order *core.Order) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.PaymentCompleted(order); err != nil {
		log.Printf("Failed to publish payment completed event for order %s: %v", order.ID, err)
	}
}
