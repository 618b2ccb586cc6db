package order

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbite/campusbite-api/internal/domain/menu"
)

// --- Mock implementations ---

type mockMenuRepo struct {
	byID   map[string]menu.FoodItem
	getErr error
}

func newMenuRepo(items ...menu.FoodItem) *mockMenuRepo {
	byID := make(map[string]menu.FoodItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return &mockMenuRepo{byID: byID}
}

func (m *mockMenuRepo) GetByIDs(_ context.Context, ids []string) ([]menu.FoodItem, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []menu.FoodItem
	for _, id := range ids {
		if it, ok := m.byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

type mockGateway struct {
	mu       sync.Mutex
	requests []PushRequest
	err      error
}

func (m *mockGateway) STKPush(_ context.Context, req PushRequest) (*PushResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	n := len(m.requests)
	return &PushResult{
		MerchantRequestID: fmt.Sprintf("mr-%d", n),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", n),
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

// memRepo is an in-memory Repository with the same conditional-write
// semantics as the Postgres one.
type memRepo struct {
	mu     sync.Mutex
	orders map[string]*Order
	txs    []*Transaction
	now    func() time.Time

	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[string]*Order), now: time.Now}
}

var _ Repository = (*memRepo)(nil)

func (r *memRepo) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memRepo) put(o *Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
}

func (r *memRepo) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.orders {
		if existing.PickupCode == o.PickupCode && slices.Contains(ActiveStatuses, existing.OrderStatus) {
			return ErrPickupCodeTaken
		}
	}
	now := r.now()
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	cp.Lines = slices.Clone(o.Lines)
	r.orders[o.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) Lock(ctx context.Context, id string) (*Order, error) {
	return r.Get(ctx, id)
}

func (r *memRepo) ListByStudent(_ context.Context, studentID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.StudentID == studentID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memRepo) ListActive(_ context.Context) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if slices.Contains(ActiveStatuses, o.OrderStatus) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, from Status, u StatusUpdate) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.OrderStatus != from {
		return nil, ErrStaleStatus
	}
	o.OrderStatus = u.OrderStatus
	o.PaymentStatus = u.PaymentStatus
	if u.ReceiptRef != "" {
		o.PaymentReceiptRef = u.ReceiptRef
	}
	o.UpdatedAt = r.now()
	cp := *o
	return &cp, nil
}

func (r *memRepo) ClaimPaymentAttempt(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.PaymentAttempt != o.PaymentAttempt || !stored.UpdatedAt.Equal(o.UpdatedAt) {
		return ErrStaleStatus
	}
	stored.PaymentAttempt = AttemptInitiating
	stored.UpdatedAt = r.now()
	o.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *memRepo) MarkPromptFailed(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.PaymentAttempt = AttemptPromptFailed
	o.UpdatedAt = r.now()
	return nil
}

func (r *memRepo) RecordPrompt(_ context.Context, t *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[t.OrderID]
	if !ok {
		return ErrNotFound
	}
	for _, prev := range r.txs {
		if prev.OrderID == t.OrderID && !prev.Resolved() {
			prev.Superseded = true
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	cp := *t
	r.txs = append(r.txs, &cp)
	o.PaymentAttempt = AttemptPromptSent
	o.UpdatedAt = r.now()
	return nil
}

func (r *memRepo) LatestTransaction(_ context.Context, orderID string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.txs) - 1; i >= 0; i-- {
		if r.txs[i].OrderID == orderID {
			cp := *r.txs[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) LockTransaction(_ context.Context, providerRequestID string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.ProviderRequestID == providerRequestID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) ResolveTransaction(_ context.Context, id string, res Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.ID != id {
			continue
		}
		if t.Resolved() {
			return ErrAlreadyResolved
		}
		code := res.ResultCode
		now := r.now()
		t.ResultCode = &code
		t.ResultDesc = res.ResultDesc
		t.ReceiptRef = res.ReceiptRef
		t.ResolvedAt = &now
		return nil
	}
	return ErrNotFound
}

func (r *memRepo) transactions(orderID string) []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, t := range r.txs {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	return out
}

// --- Helpers ---

var (
	chapati = menu.FoodItem{ID: "f-chapati", Name: "Chapati", Price: decimal.RequireFromString("20.00"), Category: "Snacks", IsAvailable: true}
	beans   = menu.FoodItem{ID: "f-beans", Name: "Beans & Rice", Price: decimal.RequireFromString("129.50"), Category: "Meals", IsAvailable: true}
	samosa  = menu.FoodItem{ID: "f-samosa", Name: "Samosa", Price: decimal.RequireFromString("30.00"), Category: "Snacks", IsAvailable: true, IsOutOfStock: true}
)

func line(it menu.FoodItem, qty int) LineRequest {
	return LineRequest{FoodItemID: it.ID, Quantity: qty, UnitPrice: it.Price}
}
