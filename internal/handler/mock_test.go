package handler

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
	"github.com/campusbite/campusbite-api/internal/domain/order"
)

// mockOrders records calls and returns canned results.
type mockOrders struct {
	mu sync.Mutex

	created   []order.CreateRequest
	callbacks []order.Callback
	retried   []string
	statuses  []order.Status

	order     *order.Order
	err       error
	orders    []order.Order
	byID      map[string]*order.Order
	callbackE error
}

func newMockOrders() *mockOrders {
	return &mockOrders{byID: map[string]*order.Order{}}
}

func (m *mockOrders) Create(_ context.Context, p auth.Principal, req order.CreateRequest) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, req)
	if m.order != nil {
		m.order.StudentID = p.UserID
		m.byID[m.order.ID] = m.order
	}
	return m.order, m.err
}

func (m *mockOrders) Get(_ context.Context, _ auth.Principal, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byID[id]; ok {
		return o, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	return nil, order.ErrNotFound
}

func (m *mockOrders) ListMine(context.Context, auth.Principal) ([]order.Order, error) {
	return m.orders, m.err
}

func (m *mockOrders) Cancel(context.Context, auth.Principal, string) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) RetryPayment(_ context.Context, _ auth.Principal, _, phone string) (*order.Order, error) {
	m.retried = append(m.retried, phone)
	return m.order, m.err
}

func (m *mockOrders) HandleCallback(_ context.Context, cb order.Callback) (order.CallbackOutcome, error) {
	m.callbacks = append(m.callbacks, cb)
	return order.OutcomePaid, m.callbackE
}

func (m *mockOrders) UpdateStatus(_ context.Context, _ auth.Principal, _ string, to order.Status) (*order.Order, error) {
	m.statuses = append(m.statuses, to)
	return m.order, m.err
}

func (m *mockOrders) ListActive(context.Context, auth.Principal) ([]order.Order, error) {
	return m.orders, m.err
}

// memIdempotency is an in-memory IdempotencyStore.
type memIdempotency struct {
	mu      sync.Mutex
	locks   map[string]bool
	results map[string]string
	err     error
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{locks: map[string]bool{}, results: map[string]string{}}
}

func (s *memIdempotency) TryLock(_ context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	k := scope + ":" + key
	if s.locks[k] {
		return false, nil
	}
	s.locks[k] = true
	return true, nil
}

func (s *memIdempotency) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, scope+":"+key)
	return nil
}

func (s *memIdempotency) Remember(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[scope+":"+key] = value
	return nil
}

func (s *memIdempotency) Recall(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.results[scope+":"+key]
	return v, ok, nil
}

func sampleOrder(method order.PaymentMethod) *order.Order {
	return &order.Order{
		ID:            "0d7a6c8e-2f43-4a57-9a0e-6f1d2c3b4a59",
		TotalAmount:   decimal.RequireFromString("149.50"),
		PaymentMethod: method,
		PaymentStatus: order.PaymentPending,
		OrderStatus:   order.StatusPending,
		PickupCode:    "4821",
		Lines: []order.Line{{
			FoodItemID: "chapati",
			Quantity:   2,
			UnitPrice:  decimal.RequireFromString("20.00"),
			Subtotal:   decimal.RequireFromString("40.00"),
		}},
	}
}
