package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// HeaderAPIKey carries the raw API key.
const HeaderAPIKey = "X-API-Key"

// ScopeCheckout allows finalizing orders.
const ScopeCheckout = "checkout"

// Authenticator resolves raw API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

var _ Authenticator = (*auth.Authenticator)(nil)

type apiKeyCtx struct{}

// APIKeyFromContext returns the authenticated key, if any.
func APIKeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyCtx{}).(*auth.APIKeyInfo)
	return info, ok
}

// RequireAPIKey rejects requests without a valid X-API-Key.
func RequireAPIKey(a Authenticator) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, err := a.Authenticate(ctx, r.Header.Get(HeaderAPIKey))
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			case err != nil:
				zctx.From(ctx).Error("Authenticate API key", zap.Error(err))
				httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}
			ctx = zctx.With(ctx, zap.String("api_key", info.Name))
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, apiKeyCtx{}, info)))
		})
	}
}

// RequireScope rejects authenticated keys lacking scope. Requests that were
// not authenticated pass through.
func RequireScope(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info, ok := APIKeyFromContext(r.Context()); ok && !info.HasScope(scope) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
