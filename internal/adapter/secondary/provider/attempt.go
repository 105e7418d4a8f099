package provider

import "github.com/hardware-store/payment-gateway/internal/core"

// Error codes carried on failed attempts so callers can tell a local
// rejection from a provider-side one without parsing messages.
const (
	codeValidation  = "VALIDATION"
	codeAuth        = "AUTHENTICATION"
	codeUnavailable = "PROVIDER_UNAVAILABLE"
	codeRejected    = "PROVIDER_REJECTED"
)

func validationFailure(msg string) *core.PaymentAttempt {
	return &core.PaymentAttempt{Status: core.AttemptFailed, Message: msg, ErrorCode: codeValidation}
}

func authFailure(err error) *core.PaymentAttempt {
	return &core.PaymentAttempt{Status: core.AttemptFailed, Message: err.Error(), ErrorCode: codeAuth}
}

// requestFailure classifies an exhausted initiation/refund: transient
// failures mean the provider was unreachable, anything else is a rejection.
func requestFailure(err error) *core.PaymentAttempt {
	code := codeRejected
	if transientError(err) {
		code = codeUnavailable
	}
	return &core.PaymentAttempt{Status: core.AttemptFailed, Message: err.Error(), ErrorCode: code}
}

func unknownAttempt(msg string) *core.PaymentAttempt {
	return &core.PaymentAttempt{Status: core.AttemptUnknown, Message: msg}
}

func timeoutAttempt() *core.PaymentAttempt {
	return &core.PaymentAttempt{
		Status:  core.AttemptTimeout,
		Message: "payment was not confirmed within the 180 second window",
	}
}
