package output

import "context"

// CallbackDedup is an output port guarding against provider webhook retry
// storms. It is an optimisation only: the state machine stays correct with
// no dedup at all, so implementations may degrade to "not seen" on error.
type CallbackDedup interface {
	// Seen atomically records the delivery key and reports whether it had
	// already been recorded.
	Seen(ctx context.Context, key string) (bool, error)
	// Forget releases a recorded key so a retried delivery is processed
	// again after the first one failed mid-flight.
	Forget(ctx context.Context, key string) error
}
