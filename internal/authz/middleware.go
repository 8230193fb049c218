package authz

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-lims/meridian-lims/internal/platform/httpx"
)

// Guard wires authorization checks into HTTP handlers. It only inspects the
// Subject already placed in the request context by the auth middleware.
type Guard struct {
	Logger *slog.Logger
}

// RequireAny admits the request when the subject holds at least one of the
// required permissions.
func (g Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			subject, ok := SubjectFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			for _, p := range normalized {
				if subject.HasPermission(p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			g.deny(w, r, subject)
		})
	}
}

// RequireAll admits the request only when the subject holds every required
// permission.
func (g Guard) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			for _, p := range normalized {
				if !subject.HasPermission(p) {
					g.deny(w, r, subject)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMinRank admits the request when the subject's highest role rank
// meets the threshold.
func (g Guard) RequireMinRank(minRank int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if err := RequireMinRank(subject, minRank); err != nil {
				g.deny(w, r, subject)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) deny(w http.ResponseWriter, r *http.Request, subject Subject) {
	if g.Logger != nil {
		g.Logger.Warn("authorization denied",
			slog.Int64("user_id", subject.UserID),
			slog.String("path", r.URL.Path))
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient privileges")
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
