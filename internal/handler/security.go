package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
)

// ErrUnauthenticated is returned for requests without a valid session.
var ErrUnauthenticated = errors.New("authentication required")

type authedFunc func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// authenticated verifies the bearer token and passes the principal to fn.
// Role checks are left to the order service.
func (h *Handler) authenticated(fn authedFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, r, ErrUnauthenticated)
			return
		}
		p, err := h.tokens.Parse(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected session token", zap.Error(err))
			writeError(w, r, ErrUnauthenticated)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("user_id", p.UserID), zap.String("role", string(p.Role)))
		fn(w, r.WithContext(ctx), p)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
