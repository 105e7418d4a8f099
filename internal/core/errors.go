package core

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned when no order matches the given id or
	// transaction reference.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnauthorized is returned when the acting user does not own the order.
	ErrUnauthorized = errors.New("user is not allowed to act on this order")

	// ErrAlreadyPaid is returned when initiating payment on a completed order.
	ErrAlreadyPaid = errors.New("order is already paid")

	// ErrUnsupportedMethod is returned when the order's payment method is not
	// mobile money.
	ErrUnsupportedMethod = errors.New("payment method does not support mobile money processing")

	// ErrMissingPhoneNumber is returned when the order carries no MSISDN.
	ErrMissingPhoneNumber = errors.New("order has no phone number for mobile money payment")

	// ErrUnknownProvider is returned when no client is registered for the
	// order's payment provider.
	ErrUnknownProvider = errors.New("no client registered for payment provider")

	// ErrInvalidState is returned when an operation is not valid for the
	// order's current payment status, e.g. cancelling a completed payment.
	ErrInvalidState = errors.New("operation not valid in current payment state")

	// ErrStatusConflict is returned by the repository when a conditional save
	// loses to a concurrent writer. The state machine re-reads and retries or
	// no-ops; it never surfaces to callers.
	ErrStatusConflict = errors.New("payment status changed concurrently")

	// ErrInvalidSignature is returned when a webhook signature does not match.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// ValidationError marks input that must never reach the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthenticationError is returned once token acquisition retries are exhausted.
type AuthenticationError struct {
	Provider string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
