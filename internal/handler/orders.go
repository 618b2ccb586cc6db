package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
	"github.com/campusbite/campusbite-api/internal/domain/order"
)

// IdempotencyKeyHeader lets clients retry order creation safely.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

const (
	msgCashPlaced  = "Order placed successfully"
	msgPromptSent  = "M-Pesa prompt sent to your phone. Please enter your PIN."
	msgCancelled   = "Order cancelled successfully"
	msgStatusSaved = "Order status updated"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	ctx := r.Context()
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeCreateRequest(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, r, &order.ValidationError{Field: IdempotencyKeyHeader, Reason: "too long"})
		return
	}
	if key == "" || h.idem == nil {
		o, err := h.orders.Create(ctx, p, req)
		h.respondCreated(w, r, o, err)
		return
	}

	fp := fingerprint(data)
	o, ok, err := h.replay(ctx, p, key, fp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ok {
		zctx.From(ctx).Info("Replayed order creation", zap.String("order_id", o.ID))
		h.respondCreated(w, r, o, nil)
		return
	}
	locked, err := h.idem.TryLock(ctx, p.UserID, key)
	if err != nil {
		zctx.From(ctx).Warn("Idempotency store unavailable", zap.Error(err))
		o, err := h.orders.Create(ctx, p, req)
		h.respondCreated(w, r, o, err)
		return
	}
	if !locked {
		writeError(w, r, order.ErrDuplicateRequest)
		return
	}

	o, err = h.orders.Create(ctx, p, req)
	// A gateway failure still produced an order, so the key is bound to it.
	if o != nil {
		if rerr := h.idem.Remember(ctx, p.UserID, key, fp+":"+o.ID); rerr != nil {
			zctx.From(ctx).Warn("Remember idempotency key", zap.Error(rerr))
		}
	} else if rerr := h.idem.Release(ctx, p.UserID, key); rerr != nil {
		zctx.From(ctx).Warn("Release idempotency key", zap.Error(rerr))
	}
	h.respondCreated(w, r, o, err)
}

// fingerprint identifies a request body bound to an Idempotency-Key.
func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// replay returns the order an earlier request with key created. A key
// remembered for a different body yields errKeyReused.
func (h *Handler) replay(ctx context.Context, p auth.Principal, key, fp string) (*order.Order, bool, error) {
	lg := zctx.From(ctx)
	rec, ok, err := h.idem.Recall(ctx, p.UserID, key)
	if err != nil {
		lg.Warn("Recall idempotency key", zap.Error(err))
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	id := rec
	if prev, orderID, found := strings.Cut(rec, ":"); found {
		if prev != fp {
			return nil, false, errKeyReused
		}
		id = orderID
	}
	o, err := h.orders.Get(ctx, p, id)
	if err != nil {
		lg.Warn("Load replayed order", zap.String("order_id", id), zap.Error(err))
		return nil, false, nil
	}
	return o, true, nil
}

func (h *Handler) respondCreated(w http.ResponseWriter, r *http.Request, o *order.Order, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := msgCashPlaced
	if o.PaymentMethod == order.PaymentMobileMoney {
		msg = msgPromptSent
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeSummary(e, o, msg)
	})
}

// encodeSummary writes the short form returned by state-changing calls.
func encodeSummary(e *jx.Encoder, o *order.Order, msg string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("pickupCode", func(e *jx.Encoder) { e.Str(o.PickupCode) })
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("orderStatus", func(e *jx.Encoder) { e.Str(string(o.OrderStatus)) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	orders, err := h.orders.ListMine(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	o, err := h.orders.Get(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	o, err := h.orders.Cancel(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSummary(e, o, msgCancelled) })
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	phone, err := decodePhone(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.RetryPayment(r.Context(), p, r.PathValue("id"), phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, func(e *jx.Encoder) { encodeSummary(e, o, msgPromptSent) })
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	orders, err := h.orders.ListActive(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	// Students get 403 regardless of the body.
	if !p.Role.CanManageOrders() {
		writeError(w, r, order.ErrForbidden)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := decodeStatus(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), p, r.PathValue("id"), to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSummary(e, o, msgStatusSaved) })
}
