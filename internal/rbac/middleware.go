package rbac

import (
	"log/slog"
	"net/http"

	"github.com/leofleet/fleet-console/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. The profile
// is read from the request context, so the session middleware must run first.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
}

// RequireAuthenticated rejects requests without a resolved profile.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ProfileFromContext(r.Context()) == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the current user holds at least one of actions on module.
func (m Middleware) RequireAny(module Module, actions ...Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := ProfileFromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			if m.Evaluator.HasAnyPermission(p, module, actions...) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied",
					slog.String("user", p.ID),
					slog.String("module", string(module)),
					slog.Any("actions", actions),
					slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing "+string(module)+" permission")
		})
	}
}
