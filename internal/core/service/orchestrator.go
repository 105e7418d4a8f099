package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/input"
	"github.com/hardware-store/payment-gateway/internal/port/output"
)

// PaymentOrchestrator implements the PaymentService input port. It resolves
// the provider client for an order, drives initiation, checking and polling,
// and funnels every status write through the state machine.
type PaymentOrchestrator struct {
	orders    output.OrderRepository
	providers map[core.PaymentProvider]output.MobileMoneyProvider
	machine   *PaymentStateMachine
}

// NewPaymentOrchestrator creates a new payment orchestrator.
func NewPaymentOrchestrator(
	orders output.OrderRepository,
	providers map[core.PaymentProvider]output.MobileMoneyProvider,
	machine *PaymentStateMachine,
) input.PaymentService {
	return &PaymentOrchestrator{
		orders:    orders,
		providers: providers,
		machine:   machine,
	}
}

// InitiatePayment starts a mobile money payment for the order.
func (s *PaymentOrchestrator) InitiatePayment(ctx context.Context, orderID, actingUserID uuid.UUID) (*input.PaymentResult, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, actingUserID)
	if err != nil {
		return nil, err
	}

	provider, err := s.guardInitiation(order)
	if err != nil {
		return nil, err
	}

	attempt := s.requestPayment(ctx, provider, order)
	if !attempt.Success {
		// Provider rejection is data, not an exception; the order is left
		// untouched so the customer can retry.
		return attemptResult(order, attempt), nil
	}

	order.Payment.TransactionID = attempt.TransactionID
	order.Payment.PhoneNumber = provider.FormatPhoneNumber(order.Payment.PhoneNumber)
	order.Payment.Status = core.PaymentStatusPending
	if err := s.orders.Save(ctx, order, core.PaymentStatusPending); err != nil {
		return nil, fmt.Errorf("failed to store transaction reference: %w", err)
	}

	return attemptResult(order, attempt), nil
}

// CheckStatus reports the payment status, with a single provider query only
// while the payment is still pending.
func (s *PaymentOrchestrator) CheckStatus(ctx context.Context, orderID, actingUserID uuid.UUID) (*input.PaymentResult, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, actingUserID)
	if err != nil {
		return nil, err
	}

	// Terminal payments answer from stored state; repeated client polling
	// costs zero provider calls.
	if order.IsPaymentTerminal() {
		return storedResult(order), nil
	}
	if order.Payment.TransactionID == "" {
		res := storedResult(order)
		res.Message = "payment has not been initiated"
		return res, nil
	}

	provider, ok := s.providers[order.Payment.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, order.Payment.Provider)
	}

	attempt := provider.CheckPaymentStatus(ctx, order.Payment.TransactionID)
	return s.applyAttempt(ctx, order, attempt)
}

// ProcessWithPolling initiates the payment when no reference exists yet,
// then blocks polling the provider until a terminal outcome or timeout.
func (s *PaymentOrchestrator) ProcessWithPolling(ctx context.Context, orderID, actingUserID uuid.UUID) (*input.PaymentResult, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, actingUserID)
	if err != nil {
		return nil, err
	}
	if order.IsPaymentTerminal() {
		return storedResult(order), nil
	}

	if order.Payment.TransactionID == "" {
		res, err := s.InitiatePayment(ctx, orderID, actingUserID)
		if err != nil {
			return nil, err
		}
		if res.Status != core.AttemptPending {
			return res, nil
		}
		order, err = s.loadOwnedOrder(ctx, orderID, actingUserID)
		if err != nil {
			return nil, err
		}
	}

	provider, ok := s.providers[order.Payment.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, order.Payment.Provider)
	}

	// The poll blocks for up to ~180s. No database row or transaction is
	// held across the wait; the order is written only at the terminal
	// transition below.
	attempt := provider.PollPaymentStatus(ctx, order.Payment.TransactionID)
	return s.applyAttempt(ctx, order, attempt)
}

// CancelPendingPayment fails a pending payment and cancels the order.
func (s *PaymentOrchestrator) CancelPendingPayment(ctx context.Context, orderID, actingUserID uuid.UUID, reason string) error {
	order, err := s.loadOwnedOrder(ctx, orderID, actingUserID)
	if err != nil {
		return err
	}
	if !order.IsPaymentPending() {
		return fmt.Errorf("%w: cannot cancel a %s payment", core.ErrInvalidState, order.Payment.Status)
	}

	_, _, err = s.machine.Apply(ctx, order, core.PaymentStatusFailed, TransitionMeta{
		Cancelled: true,
		Reason:    reason,
	})
	return err
}

// RefundPayment refunds a completed payment through the provider.
func (s *PaymentOrchestrator) RefundPayment(ctx context.Context, orderID, actingUserID uuid.UUID) (*input.PaymentResult, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, actingUserID)
	if err != nil {
		return nil, err
	}
	if order.Payment.Status != core.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: cannot refund a %s payment", core.ErrInvalidState, order.Payment.Status)
	}

	provider, ok := s.providers[order.Payment.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, order.Payment.Provider)
	}

	attempt := provider.RefundPayment(ctx, order.Payment.TransactionID, order.Amount)
	if !attempt.Success {
		return attemptResult(order, attempt), nil
	}

	updated, _, err := s.machine.Apply(ctx, order, core.PaymentStatusRefunded, TransitionMeta{Refund: true})
	if err != nil {
		return nil, err
	}
	return storedResult(updated), nil
}

// guardInitiation checks the order is eligible for mobile money initiation
// and resolves its provider client.
func (s *PaymentOrchestrator) guardInitiation(order *core.Order) (output.MobileMoneyProvider, error) {
	if order.Payment.Status == core.PaymentStatusCompleted {
		return nil, core.ErrAlreadyPaid
	}
	if order.IsPaymentTerminal() {
		// failed/refunded. Reaching the provider here would push a charge
		// prompt whose reference could never be stored: the conditional save
		// expects a pending row.
		return nil, fmt.Errorf("%w: cannot initiate payment for a %s payment", core.ErrInvalidState, order.Payment.Status)
	}
	if order.Payment.Method != core.PaymentMethodMobileMoney {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedMethod, order.Payment.Method)
	}
	if order.Payment.PhoneNumber == "" {
		return nil, core.ErrMissingPhoneNumber
	}

	provider, ok := s.providers[order.Payment.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, order.Payment.Provider)
	}
	if !provider.ValidatePhoneNumber(order.Payment.PhoneNumber) {
		return nil, &core.ValidationError{Field: "phoneNumber", Reason: "not a valid Rwandan mobile number"}
	}
	return provider, nil
}

func (s *PaymentOrchestrator) requestPayment(ctx context.Context, provider output.MobileMoneyProvider, order *core.Order) *core.PaymentAttempt {
	if !provider.ValidateAccount(ctx, order.Payment.PhoneNumber) {
		// Best effort only; an unreachable account check never blocks payment.
		log.Printf("Account validation inconclusive for order %s on %s", order.ID, provider.Name())
	}
	return provider.RequestPayment(ctx, output.PaymentRequest{
		OrderID:       order.ID,
		Amount:        order.Amount,
		PhoneNumber:   order.Payment.PhoneNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
	})
}

// applyAttempt feeds a terminal provider outcome through the state machine
// and shapes the result. Non-terminal outcomes leave the order untouched.
func (s *PaymentOrchestrator) applyAttempt(ctx context.Context, order *core.Order, attempt *core.PaymentAttempt) (*input.PaymentResult, error) {
	switch attempt.Status {
	case core.AttemptCompleted:
		updated, _, err := s.machine.Apply(ctx, order, core.PaymentStatusCompleted, TransitionMeta{})
		if err != nil {
			return nil, err
		}
		return storedResult(updated), nil
	case core.AttemptFailed:
		updated, _, err := s.machine.Apply(ctx, order, core.PaymentStatusFailed, TransitionMeta{})
		if err != nil {
			return nil, err
		}
		return storedResult(updated), nil
	default:
		// PENDING, UNKNOWN and TIMEOUT leave the payment pending; a webhook
		// may still settle it.
		return attemptResult(order, attempt), nil
	}
}

func (s *PaymentOrchestrator) loadOwnedOrder(ctx context.Context, orderID, actingUserID uuid.UUID) (*core.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actingUserID {
		return nil, core.ErrUnauthorized
	}
	return order, nil
}

// storedResult shapes a result purely from persisted order state.
func storedResult(order *core.Order) *input.PaymentResult {
	return &input.PaymentResult{
		OrderID:       order.ID,
		TransactionID: order.Payment.TransactionID,
		Status:        attemptStatusFor(order.Payment.Status),
		PaymentStatus: order.Payment.Status,
		OrderStatus:   order.Status,
		PaidAt:        order.Payment.PaidAt,
	}
}

// attemptResult shapes a result from a provider attempt without touching
// stored state.
func attemptResult(order *core.Order, attempt *core.PaymentAttempt) *input.PaymentResult {
	transactionID := attempt.TransactionID
	if transactionID == "" {
		transactionID = order.Payment.TransactionID
	}
	return &input.PaymentResult{
		OrderID:       order.ID,
		TransactionID: transactionID,
		Status:        attempt.Status,
		PaymentStatus: order.Payment.Status,
		OrderStatus:   order.Status,
		Message:       attempt.Message,
		ExpiresAt:     attempt.ExpiresAt,
		PaidAt:        order.Payment.PaidAt,
	}
}

func attemptStatusFor(status core.PaymentStatus) core.AttemptStatus {
	switch status {
	case core.PaymentStatusCompleted, core.PaymentStatusRefunded:
		return core.AttemptCompleted
	case core.PaymentStatusFailed:
		return core.AttemptFailed
	default:
		return core.AttemptPending
	}
}
