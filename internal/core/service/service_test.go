package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/output"
)

// memoryOrderRepo implements the OrderRepository port with the same
// conditional-save semantics as the GORM adapter, so the race tests exercise
// the real convergence logic.
type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]core.Order
}

func newMemoryOrderRepo(orders ...*core.Order) *memoryOrderRepo {
	repo := &memoryOrderRepo{orders: make(map[uuid.UUID]core.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = *o
	}
	return repo
}

func (r *memoryOrderRepo) add(order *core.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = *order
}

func (r *memoryOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*core.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, core.ErrOrderNotFound
	}
	copied := order
	return &copied, nil
}

func (r *memoryOrderRepo) FindByTransactionReference(ctx context.Context, reference string) (*core.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.Payment.TransactionID == reference && reference != "" {
			copied := order
			return &copied, nil
		}
	}
	return nil, core.ErrOrderNotFound
}

func (r *memoryOrderRepo) Save(ctx context.Context, order *core.Order, expected core.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok || stored.Payment.Status != expected {
		return core.ErrStatusConflict
	}
	r.orders[order.ID] = *order
	return nil
}

// countingNotifier records completion notifications.
type countingNotifier struct {
	mu    sync.Mutex
	count int
	fail  bool
}

func (n *countingNotifier) PaymentCompleted(order *core.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	if n.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (n *countingNotifier) Close() error { return nil }

func (n *countingNotifier) notified() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// fakeProvider is a scriptable MobileMoneyProvider.
type fakeProvider struct {
	name core.PaymentProvider

	requestAttempt *core.PaymentAttempt
	statusAttempt  *core.PaymentAttempt
	pollAttempt    *core.PaymentAttempt
	refundAttempt  *core.PaymentAttempt
	signatureOK    bool
	webhookEvent   *output.WebhookEvent

	requestCalls int
	statusCalls  int
	pollCalls    int
}

func (p *fakeProvider) Name() core.PaymentProvider { return p.name }

func (p *fakeProvider) ValidatePhoneNumber(raw string) bool { return raw != "" && raw != "invalid" }

func (p *fakeProvider) FormatPhoneNumber(raw string) string { return "250788123456" }

func (p *fakeProvider) RequestPayment(ctx context.Context, req output.PaymentRequest) *core.PaymentAttempt {
	p.requestCalls++
	return p.requestAttempt
}

func (p *fakeProvider) CheckPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt {
	p.statusCalls++
	return p.statusAttempt
}

func (p *fakeProvider) PollPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt {
	p.pollCalls++
	return p.pollAttempt
}

func (p *fakeProvider) RefundPayment(ctx context.Context, reference string, amount float64) *core.PaymentAttempt {
	return p.refundAttempt
}

func (p *fakeProvider) ValidateAccount(ctx context.Context, phoneNumber string) bool { return true }

func (p *fakeProvider) VerifyWebhookSignature(payload []byte, signature string) bool {
	return p.signatureOK
}

func (p *fakeProvider) ParseWebhook(payload []byte) (*output.WebhookEvent, error) {
	return p.webhookEvent, nil
}

func pendingAttempt(reference string) *core.PaymentAttempt {
	expires := time.Now().Add(180 * time.Second)
	return &core.PaymentAttempt{
		Success:       true,
		Status:        core.AttemptPending,
		TransactionID: reference,
		ExpiresAt:     &expires,
	}
}

func pendingMobileMoneyOrder() *core.Order {
	return &core.Order{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Amount:   15000,
		Currency: core.CurrencyRWF,
		Status:   core.OrderStatusPending,
		Payment: core.PaymentInfo{
			Method:      core.PaymentMethodMobileMoney,
			Provider:    core.ProviderMTNMobileMoney,
			PhoneNumber: "0788123456",
			Status:      core.PaymentStatusPending,
		},
	}
}
