package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/leofleet/fleet-console/internal/auth"
	"github.com/leofleet/fleet-console/internal/dashboard"
	"github.com/leofleet/fleet-console/internal/guard"
	"github.com/leofleet/fleet-console/internal/observability"
	"github.com/leofleet/fleet-console/internal/platform/httpx"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/resources"
	"github.com/leofleet/fleet-console/internal/shared"
	"github.com/leofleet/fleet-console/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Resolver         *auth.Resolver
	Evaluator        *rbac.Evaluator
	AuthHandler      *auth.Handler
	GuardHandler     *guard.Handler
	ResourcesHandler *resources.Handler
	DashboardHandler *dashboard.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Resolver:       params.Resolver,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	loginPath := "/login"
	if params.Config != nil && params.Config.LoginPath != "" {
		loginPath = params.Config.LoginPath
	}
	r.Get(loginPath, func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"page":       "login",
			"csrf_token": params.CSRFManager.EnsureToken(w, r),
			"notice":     r.URL.Query().Get(guard.NoticeParam),
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !shared.SessionFromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.GuardHandler != nil {
		r.Get("/api/guard", params.GuardHandler.Check)
	}
	if params.ResourcesHandler != nil {
		r.Route("/api/resources", params.ResourcesHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	}

	// Operational endpoints expose fleet-wide counters and queue depth.
	r.Group(func(r chi.Router) {
		r.Use(rbac.Middleware{Evaluator: params.Evaluator, Logger: params.Logger}.RequireAuthenticated())
		if params.Metrics != nil {
			r.Handle("/metrics", params.Metrics.Handler())
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
