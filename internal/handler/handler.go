// Package handler exposes the order pipeline over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
	"github.com/campusbite/campusbite-api/internal/domain/order"
)

// Orders is the order pipeline consumed by the handlers.
type Orders interface {
	Create(ctx context.Context, p auth.Principal, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
	ListMine(ctx context.Context, p auth.Principal) ([]order.Order, error)
	Cancel(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
	RetryPayment(ctx context.Context, p auth.Principal, id, phone string) (*order.Order, error)
	HandleCallback(ctx context.Context, cb order.Callback) (order.CallbackOutcome, error)
	UpdateStatus(ctx context.Context, p auth.Principal, id string, to order.Status) (*order.Order, error)
	ListActive(ctx context.Context, p auth.Principal) ([]order.Order, error)
}

var _ Orders = (*order.Service)(nil)

// IdempotencyStore tracks Idempotency-Key headers of order creation.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// TokenParser verifies bearer session tokens.
type TokenParser interface {
	Parse(raw string) (auth.Principal, error)
}

// Handler serves the order API.
type Handler struct {
	orders Orders
	tokens TokenParser
	// idem is optional; without it Idempotency-Key is ignored.
	idem IdempotencyStore
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders Orders, tokens TokenParser, idem IdempotencyStore) *Handler {
	return &Handler{
		orders: orders,
		tokens: tokens,
		idem:   idem,
	}
}

// CallbackPath is the public route the payment provider posts results to.
const CallbackPath = "/api/payments/mpesa/callback"

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/orders", h.authenticated(h.createOrder))
	mux.Handle("GET /api/orders", h.authenticated(h.listOrders))
	mux.Handle("GET /api/orders/{id}", h.authenticated(h.getOrder))
	mux.Handle("PATCH /api/orders/{id}/cancel", h.authenticated(h.cancelOrder))
	mux.Handle("POST /api/orders/{id}/payment", h.authenticated(h.retryPayment))

	mux.Handle("GET /api/staff/orders", h.authenticated(h.listActive))
	mux.Handle("PATCH /api/staff/orders/{id}/status", h.authenticated(h.updateStatus))

	mux.HandleFunc("POST "+CallbackPath, h.paymentCallback)
}
