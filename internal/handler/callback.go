package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/mpesa"
)

// paymentCallback acknowledges every delivery with 200; failures are logged.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)
	defer ackCallback(w)

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		lg.Warn("Read payment callback", zap.Error(err))
		return
	}
	cb, err := mpesa.ParseCallback(data)
	if err != nil {
		lg.Warn("Malformed payment callback", zap.Error(err), zap.ByteString("body", truncate(data, 512)))
		return
	}
	if _, err := h.orders.HandleCallback(ctx, cb); err != nil {
		lg.Error("Payment callback not applied",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Error(err),
		)
	}
}

func ackCallback(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("ResultCode", func(e *jx.Encoder) { e.Int(0) })
			e.Field("ResultDesc", func(e *jx.Encoder) { e.Str("Accepted") })
		})
	})
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
