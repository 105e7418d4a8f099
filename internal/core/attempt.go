package core

import "time"

// AttemptStatus is the canonical status of a provider-side payment attempt.
// Provider-native codes are mapped to these before they leave the client.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "PENDING"
	AttemptCompleted AttemptStatus = "COMPLETED"
	AttemptFailed    AttemptStatus = "FAILED"
	AttemptTimeout   AttemptStatus = "TIMEOUT"
	AttemptUnknown   AttemptStatus = "UNKNOWN"
)

// PaymentAttempt is the ephemeral result of a provider call. It is never
// persisted; provider clients normalise every outcome, including network
// failures, into one of these instead of returning raw errors.
type PaymentAttempt struct {
	Success       bool
	Status        AttemptStatus
	TransactionID string
	Message       string
	ErrorCode     string
	ExpiresAt     *time.Time
}
