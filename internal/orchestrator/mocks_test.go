package orchestrator

import (
	"context"
	"time"

	"github.com/shopkart/checkout-service/domain"
	"github.com/shopkart/checkout-service/internal/repository"
	"github.com/shopkart/checkout-service/internal/staging"
)

type mockStaging struct {
	records    map[string]*domain.StagedCheckout
	getErr     error
	putErr     error
	clearErr   error
	clearCalls int
}

func newMockStaging() *mockStaging {
	return &mockStaging{records: make(map[string]*domain.StagedCheckout)}
}

func (m *mockStaging) Get(ctx context.Context, sessionID string) (*domain.StagedCheckout, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	staged, ok := m.records[sessionID]
	if !ok {
		return nil, staging.ErrNotStaged
	}
	return staged, nil
}

func (m *mockStaging) Put(ctx context.Context, sessionID string, staged *domain.StagedCheckout) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.records[sessionID] = staged
	return nil
}

func (m *mockStaging) Clear(ctx context.Context, sessionID string) error {
	m.clearCalls++
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.records, sessionID)
	return nil
}

type mockBackend struct {
	createOrderFn func(ctx context.Context, staged *domain.StagedCheckout) (*domain.OrderResult, error)
	verifyFn      func(ctx context.Context, localOrderID int64, completion *domain.PaymentCompletion, idempotencyKey string) error
	createCalls   int
	verifyCalls   int
}

func (m *mockBackend) CreateOrder(ctx context.Context, staged *domain.StagedCheckout) (*domain.OrderResult, error) {
	m.createCalls++
	if m.createOrderFn == nil {
		return &domain.OrderResult{OrderID: 1, OrderNumber: "ORD-1"}, nil
	}
	return m.createOrderFn(ctx, staged)
}

func (m *mockBackend) VerifyPayment(ctx context.Context, localOrderID int64, completion *domain.PaymentCompletion, idempotencyKey string) error {
	m.verifyCalls++
	if m.verifyFn == nil {
		return nil
	}
	return m.verifyFn(ctx, localOrderID, completion, idempotencyKey)
}

type mockMinter struct {
	mintFn    func(ctx context.Context, order *domain.OrderResult, staged *domain.StagedCheckout) (*domain.GatewaySession, error)
	mintCalls int
}

func (m *mockMinter) MintSession(ctx context.Context, order *domain.OrderResult, staged *domain.StagedCheckout) (*domain.GatewaySession, error) {
	m.mintCalls++
	if m.mintFn == nil {
		return &domain.GatewaySession{
			GatewayOrderID: "order_gw1",
			Key:            "rzp_test_key",
			Amount:         49900,
			Currency:       "INR",
		}, nil
	}
	return m.mintFn(ctx, order, staged)
}

// fakeRepo is an in-memory attempt store with per-method error injection.
// Every state change is appended to history so tests can check the walk
// against the transition table.
type fakeRepo struct {
	attempts map[string]*repository.CheckoutAttempt
	byKey    map[string]string
	events   []*repository.OutboxEvent
	history  map[string][]domain.CheckoutState

	createErr  error
	getErr     error
	updateErr  error
	confirmErr error
	failErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		attempts: make(map[string]*repository.CheckoutAttempt),
		byKey:    make(map[string]string),
		history:  make(map[string][]domain.CheckoutState),
	}
}

func (f *fakeRepo) recordState(id string, state domain.CheckoutState) {
	f.history[id] = append(f.history[id], state)
}

func (f *fakeRepo) Close() error { return nil }
func (f *fakeRepo) RunMigrations(*repository.Credentials) error { return nil }

func (f *fakeRepo) CreateAttempt(ctx context.Context, attempt *repository.CheckoutAttempt) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *attempt
	f.attempts[attempt.ID] = &copied
	f.byKey[attempt.IdempotencyKey] = attempt.ID
	f.recordState(attempt.ID, attempt.State)
	return nil
}

func (f *fakeRepo) GetAttemptByIdempotencyKey(ctx context.Context, key string) (*repository.CheckoutAttempt, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	id, ok := f.byKey[key]
	if !ok {
		return nil, repository.ErrIdempotencyKeyNotFound
	}
	copied := *f.attempts[id]
	return &copied, nil
}

func (f *fakeRepo) GetActiveAttemptBySession(ctx context.Context, sessionID string) (*repository.CheckoutAttempt, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var latest *repository.CheckoutAttempt
	for _, attempt := range f.attempts {
		if attempt.SessionID != sessionID || attempt.State == domain.StateOrderConfirmed {
			continue
		}
		if latest == nil || attempt.UpdatedAt.After(latest.UpdatedAt) {
			latest = attempt
		}
	}
	if latest == nil {
		return nil, repository.ErrAttemptNotFound
	}
	copied := *latest
	return &copied, nil
}

func (f *fakeRepo) UpdateAttemptState(ctx context.Context, id *string, state *domain.CheckoutState, reason *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	attempt := f.attempts[*id]
	attempt.State = *state
	attempt.FailureReason = reason
	attempt.UpdatedAt = time.Now()
	f.recordState(*id, *state)
	return nil
}

func (f *fakeRepo) SetOrder(ctx context.Context, id *string, state *domain.CheckoutState, orderID int64, orderNumber string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	attempt := f.attempts[*id]
	attempt.State = *state
	attempt.OrderID = &orderID
	attempt.OrderNumber = &orderNumber
	attempt.UpdatedAt = time.Now()
	f.recordState(*id, *state)
	return nil
}

func (f *fakeRepo) SetGatewayOrder(ctx context.Context, id *string, state *domain.CheckoutState, gatewayOrderID *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	attempt := f.attempts[*id]
	attempt.State = *state
	attempt.GatewayOrderID = gatewayOrderID
	attempt.UpdatedAt = time.Now()
	f.recordState(*id, *state)
	return nil
}

func (f *fakeRepo) ConfirmAttempt(ctx context.Context, id *string, paymentID *string, payload []byte) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	attempt := f.attempts[*id]
	attempt.State = domain.StateOrderConfirmed
	attempt.PaymentID = paymentID
	attempt.UpdatedAt = time.Now()
	f.recordState(*id, domain.StateOrderConfirmed)
	f.events = append(f.events, &repository.OutboxEvent{
		ID:          len(f.events) + 1,
		AggregateId: *id,
		EventType:   "checkout.confirmed",
		Payload:     payload,
	})
	return nil
}

func (f *fakeRepo) FailAttempt(ctx context.Context, id *string, reason string, payload []byte) error {
	if f.failErr != nil {
		return f.failErr
	}
	attempt := f.attempts[*id]
	attempt.State = domain.StateFailed
	attempt.FailureReason = &reason
	attempt.UpdatedAt = time.Now()
	f.recordState(*id, domain.StateFailed)
	f.events = append(f.events, &repository.OutboxEvent{
		ID:          len(f.events) + 1,
		AggregateId: *id,
		EventType:   "checkout.failed",
		Payload:     payload,
	})
	return nil
}

func (f *fakeRepo) GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkEventAsProcessed(ctx context.Context, id int) error {
	return nil
}

func (f *fakeRepo) GetStuckVerifications(ctx context.Context, olderThan time.Duration) ([]*repository.CheckoutAttempt, error) {
	var stuck []*repository.CheckoutAttempt
	for _, attempt := range f.attempts {
		if attempt.State == domain.StateVerifying {
			copied := *attempt
			stuck = append(stuck, &copied)
		}
	}
	return stuck, nil
}

func (f *fakeRepo) attemptForKey(key string) *repository.CheckoutAttempt {
	id, ok := f.byKey[key]
	if !ok {
		return nil
	}
	return f.attempts[id]
}

type testHarness struct {
	orch    *Orchestrator
	staging *mockStaging
	backend *mockBackend
	minter  *mockMinter
	repo    *fakeRepo
}

func newTestOrchestrator(cfg Config) *testHarness {
	h := &testHarness{
		staging: newMockStaging(),
		backend: &mockBackend{},
		minter:  &mockMinter{},
		repo:    newFakeRepo(),
	}
	h.orch = New(h.staging, h.backend, h.minter, h.repo, cfg)
	return h
}

func validStaged(method domain.PaymentMethod) *domain.StagedCheckout {
	staged := &domain.StagedCheckout{
		Items: []domain.CheckoutItem{{ProductID: 7, Quantity: 2}},
		Address: domain.Address{
			Name:    "Asha Rao",
			Phone:   "9876543210",
			Pincode: "560001",
			Address: "12 MG Road",
			City:    "Bengaluru",
			State:   "Karnataka",
		},
		PaymentMethod:  method,
		CheckoutType:   domain.CheckoutCart,
		TotalPrice:     499.00,
		IdempotencyKey: "key-1",
		StagedAt:       time.Now(),
	}
	switch method {
	case domain.MethodCard:
		staged.PaymentDetails.Card = &domain.CardDetails{
			Number: "4111 1111 1111 1111",
			Expiry: "12/27",
			CVV:    "123",
		}
	case domain.MethodUPI:
		staged.PaymentDetails.UPIID = "asha@upi"
	case domain.MethodNetbanking:
		staged.PaymentDetails.Bank = "HDFC"
	}
	return staged
}
