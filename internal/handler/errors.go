package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/domain/order"
)

var errKeyReused = errors.New("Idempotency-Key was already used with a different request")

const gatewayFailureMessage = "Failed to send M-Pesa prompt. Please check your phone number and try again."

// writeError maps err to a status code and writes {code, message}. Internal
// errors are logged and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *order.ValidationError
		transition *order.TransitionError
		gateway    *order.GatewayError
	)
	code, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.As(err, &validation):
		code, msg = http.StatusBadRequest, validation.Error()
	case errors.Is(err, ErrUnauthenticated):
		code, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, order.ErrForbidden):
		code, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, order.ErrNotFound):
		code, msg = http.StatusNotFound, "order not found"
	case errors.As(err, &transition):
		code, msg = http.StatusConflict, transition.Error()
	case errors.Is(err, order.ErrStaleStatus):
		code, msg = http.StatusConflict, order.ErrStaleStatus.Error()
	case errors.Is(err, order.ErrPaymentInProgress):
		code, msg = http.StatusConflict, order.ErrPaymentInProgress.Error()
	case errors.Is(err, order.ErrDuplicateRequest):
		code, msg = http.StatusConflict, order.ErrDuplicateRequest.Error()
	case errors.Is(err, errKeyReused):
		code, msg = http.StatusUnprocessableEntity, errKeyReused.Error()
	case errors.As(err, &gateway):
		zctx.From(r.Context()).Warn("Payment prompt failed",
			zap.String("order_id", gateway.OrderID),
			zap.Error(gateway.Err),
		)
		writeJSON(w, http.StatusInternalServerError, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusInternalServerError) })
				e.Field("message", func(e *jx.Encoder) { e.Str(gatewayFailureMessage) })
				e.Field("orderId", func(e *jx.Encoder) { e.Str(gateway.OrderID) })
				e.Field("pickupCode", func(e *jx.Encoder) { e.Str(gateway.PickupCode) })
			})
		})
		return
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}
