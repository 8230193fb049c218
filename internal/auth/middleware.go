package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/platform/httpx"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified token claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(Claims)
	return claims, ok
}

// Middleware authenticates bearer tokens and stores the resolved subject
// and claims in the request context. Requests without a valid token get a
// 401; inactive accounts get a 403.
func Middleware(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			subject, claims, err := service.ResolveSubject(r.Context(), raw)
			if err != nil {
				if errors.Is(err, shared.ErrInactive) {
					httpx.Problem(w, http.StatusForbidden, "Account Inactive", "account is deactivated")
					return
				}
				if !errors.Is(err, shared.ErrUnauthenticated) {
					logger.Error("resolve subject", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
				return
			}
			ctx := authz.ContextWithSubject(r.Context(), subject)
			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
