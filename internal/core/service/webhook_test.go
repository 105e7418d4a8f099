package service

import (
	"context"
	"sync"
	"testing"

	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryDedup is an in-process CallbackDedup for tests.
type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDedup) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

func (d *memoryDedup) Forget(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

// flakySaveRepo fails the first saves with a transient error.
type flakySaveRepo struct {
	*memoryOrderRepo
	failures int
}

func (r *flakySaveRepo) Save(ctx context.Context, order *core.Order, expected core.PaymentStatus) error {
	if r.failures > 0 {
		r.failures--
		return context.DeadlineExceeded
	}
	return r.memoryOrderRepo.Save(ctx, order, expected)
}

func newTestWebhookReceiver(repo output.OrderRepository, provider *fakeProvider, dedup output.CallbackDedup) (*WebhookReceiver, *countingNotifier) {
	notifier := &countingNotifier{}
	machine := NewPaymentStateMachine(repo, notifier)
	providers := map[core.PaymentProvider]output.MobileMoneyProvider{
		core.ProviderMTNMobileMoney: provider,
	}
	receiver := NewWebhookReceiver(repo, providers, machine, dedup).(*WebhookReceiver)
	return receiver, notifier
}

func TestHandleCallback_RejectsBadSignature(t *testing.T) {
	order := pendingMobileMoneyOrder()
	repo := newMemoryOrderRepo(order)
	provider := &fakeProvider{name: core.ProviderMTNMobileMoney, signatureOK: false}
	receiver, _ := newTestWebhookReceiver(repo, provider, nil)

	err := receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "bad")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestHandleCallback_AppliesCompletedOutcome(t *testing.T) {
	order := pendingMobileMoneyOrder()
	order.Payment.TransactionID = "ref-42"
	repo := newMemoryOrderRepo(order)
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ref-42", Status: core.AttemptCompleted},
	}
	receiver, notifier := newTestWebhookReceiver(repo, provider, nil)

	err := receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig")
	require.NoError(t, err)

	stored, err := repo.FindByTransactionReference(context.Background(), "ref-42")
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusCompleted, stored.Payment.Status)
	assert.Equal(t, core.OrderStatusProcessing, stored.Status)
	assert.Equal(t, 1, notifier.notified())
}

func TestHandleCallback_RedeliveryIsIdempotentNoOp(t *testing.T) {
	order := pendingMobileMoneyOrder()
	order.Payment.TransactionID = "ref-42"
	repo := newMemoryOrderRepo(order)
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ref-42", Status: core.AttemptCompleted},
	}
	receiver, notifier := newTestWebhookReceiver(repo, provider, nil)

	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"))
	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"),
		"redelivery must succeed so the provider stops retrying")

	assert.Equal(t, 1, notifier.notified())
}

func TestHandleCallback_DedupShortCircuits(t *testing.T) {
	order := pendingMobileMoneyOrder()
	order.Payment.TransactionID = "ref-42"
	repo := newMemoryOrderRepo(order)
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ref-42", Status: core.AttemptCompleted},
	}
	receiver, _ := newTestWebhookReceiver(repo, provider, &memoryDedup{})

	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"))
	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"))

	stored, err := repo.FindByTransactionReference(context.Background(), "ref-42")
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusCompleted, stored.Payment.Status)
}

func TestHandleCallback_RetryAfterEarlyDeliveryStillApplies(t *testing.T) {
	// A callback can beat the initiation save. The first delivery finds no
	// order; the provider's retry, arriving once the row exists, must still
	// be applied rather than short-circuited by the dedup guard.
	repo := newMemoryOrderRepo()
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ref-42", Status: core.AttemptCompleted},
	}
	receiver, notifier := newTestWebhookReceiver(repo, provider, &memoryDedup{})

	err := receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)

	order := pendingMobileMoneyOrder()
	order.Payment.TransactionID = "ref-42"
	repo.add(order)

	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"))

	stored, err := repo.FindByTransactionReference(context.Background(), "ref-42")
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusCompleted, stored.Payment.Status)
	assert.Equal(t, 1, notifier.notified())
}

func TestHandleCallback_FailedApplyReleasesDedupKey(t *testing.T) {
	order := pendingMobileMoneyOrder()
	order.Payment.TransactionID = "ref-42"
	base := newMemoryOrderRepo(order)
	repo := &flakySaveRepo{memoryOrderRepo: base, failures: 1}
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ref-42", Status: core.AttemptCompleted},
	}
	receiver, _ := newTestWebhookReceiver(repo, provider, &memoryDedup{})

	err := receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig")
	require.Error(t, err, "transient save failure must surface")

	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"))

	stored, err := base.FindByTransactionReference(context.Background(), "ref-42")
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusCompleted, stored.Payment.Status)
}

func TestHandleCallback_StaleCompletionCannotResurrectFailure(t *testing.T) {
	order := pendingMobileMoneyOrder()
	order.Payment.TransactionID = "ref-42"
	order.Payment.Status = core.PaymentStatusFailed
	repo := newMemoryOrderRepo(order)
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ref-42", Status: core.AttemptCompleted},
	}
	receiver, notifier := newTestWebhookReceiver(repo, provider, nil)

	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"))

	stored, err := repo.FindByTransactionReference(context.Background(), "ref-42")
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusFailed, stored.Payment.Status)
	assert.Zero(t, notifier.notified())
}

func TestHandleCallback_NonTerminalIsIgnored(t *testing.T) {
	order := pendingMobileMoneyOrder()
	order.Payment.TransactionID = "ref-42"
	repo := newMemoryOrderRepo(order)
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ref-42", Status: core.AttemptPending},
	}
	receiver, _ := newTestWebhookReceiver(repo, provider, nil)

	require.NoError(t, receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig"))

	stored, err := repo.FindByTransactionReference(context.Background(), "ref-42")
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusPending, stored.Payment.Status)
}

func TestHandleCallback_UnknownReference(t *testing.T) {
	repo := newMemoryOrderRepo()
	provider := &fakeProvider{
		name:         core.ProviderMTNMobileMoney,
		signatureOK:  true,
		webhookEvent: &output.WebhookEvent{Reference: "ghost", Status: core.AttemptCompleted},
	}
	receiver, _ := newTestWebhookReceiver(repo, provider, nil)

	err := receiver.HandleCallback(context.Background(), core.ProviderMTNMobileMoney, []byte(`{}`), "sig")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestHandleCallback_UnknownProvider(t *testing.T) {
	repo := newMemoryOrderRepo()
	receiver, _ := newTestWebhookReceiver(repo, &fakeProvider{name: core.ProviderMTNMobileMoney}, nil)

	err := receiver.HandleCallback(context.Background(), core.ProviderAirtelMoney, []byte(`{}`), "sig")
	assert.ErrorIs(t, err, core.ErrUnknownProvider)
}
