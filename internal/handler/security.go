package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-orders/internal/domain/auth"
)

// authenticate verifies the bearer credential and stores the identity in the
// request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			h.writeError(w, r, auth.ErrMissingCredential)
			return
		}
		id, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("subject", id.Subject)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects identities without privilege. It must run after
// authenticate.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			h.writeError(w, r, auth.ErrMissingCredential)
			return
		}
		if !id.Privileged {
			h.writeError(w, r, auth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identity returns the caller set by authenticate.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
