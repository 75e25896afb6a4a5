package guard

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/leofleet/fleet-console/internal/observability"
	"github.com/leofleet/fleet-console/internal/platform/httpx"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

// NoticeParam is the query parameter carrying the denial reason on redirects.
const NoticeParam = "notice"

// Handler serves route guard decisions over HTTP.
type Handler struct {
	guard    *Guard
	cooldown *Cooldown
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewHandler constructs a Handler. The Cooldown is owned by the handler.
func NewHandler(g *Guard, cooldown *Cooldown, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{guard: g, cooldown: cooldown, logger: logger, metrics: metrics}
}

// Protect guards full-page loads: a denied request is redirected once per
// cool-down window and answered with a problem response otherwise.
// Requests without a session are always sent to the login page.
func (h *Handler) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := rbac.ProfileFromContext(r.Context())
		d := h.guard.Evaluate(r.URL.Path, p)
		h.metrics.ObserveGuard(string(d.Kind))
		if d.Allow {
			next.ServeHTTP(w, r)
			return
		}
		key := CooldownKey(r, r.URL.Path)
		if key == "" || h.cooldown.Begin(key) {
			if key != "" {
				defer h.cooldown.Done(key)
			}
			h.logger.Info("route guard redirect",
				slog.String("path", r.URL.Path),
				slog.String("kind", string(d.Kind)),
				slog.String("to", d.RedirectTo))
			http.Redirect(w, r, WithNotice(d.RedirectTo, d.Reason), http.StatusSeeOther)
			return
		}
		status := http.StatusForbidden
		if d.Kind == KindUnauthenticated {
			status = http.StatusUnauthorized
		}
		httpx.Problem(w, status, http.StatusText(status), d.Reason)
	})
}

type checkResponse struct {
	Decision
	Path string `json:"path"`
	// Redirect tells the client whether to navigate now; false inside the
	// cool-down window.
	Redirect bool `json:"redirect"`
}

// Check answers GET /api/guard?path=... for client-side navigation.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")
	if target == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "path is required")
		return
	}
	p := rbac.ProfileFromContext(r.Context())
	d := h.guard.Evaluate(target, p)
	h.metrics.ObserveGuard(string(d.Kind))
	resp := checkResponse{Decision: d, Path: normalizePath(target)}
	if !d.Allow {
		key := CooldownKey(r, resp.Path)
		switch {
		case key == "":
			resp.Redirect = true
		case h.cooldown.Begin(key):
			resp.Redirect = true
			h.cooldown.Done(key)
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// CooldownKey identifies a (session, path) pair. It is empty for requests
// without a session, which share no cool-down.
func CooldownKey(r *http.Request, p string) string {
	sess := shared.SessionFromContext(r.Context())
	who := sess.ID
	if who == "" {
		who = sess.Token
	}
	if who == "" {
		return ""
	}
	return who + "|" + p
}

// WithNotice appends the reason to target as a query parameter.
func WithNotice(target, reason string) string {
	if reason == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(NoticeParam, reason)
	u.RawQuery = q.Encode()
	return u.String()
}
