package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/leofleet/fleet-console/internal/auth"
	"github.com/leofleet/fleet-console/internal/observability"
	"github.com/leofleet/fleet-console/internal/platform/httpx"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Resolver       *auth.Resolver
	Metrics        *observability.Metrics
}

// SessionMiddleware loads the session cookies, resolves the profile and
// stores both in the request context. A refreshed profile that differs from
// the cookie blob is written back before the handler runs.
func SessionMiddleware(sessions *shared.SessionManager, resolver *auth.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := sessions.Load(r)
			ctx := shared.ContextWithSession(r.Context(), state)
			res := resolver.Resolve(ctx, state)
			if res.Profile != nil {
				ctx = rbac.ContextWithProfile(ctx, res.Profile)
			}
			if res.Changed && res.Source == auth.SourceRefreshed {
				if blob, err := auth.EncodeProfile(res.Profile); err == nil {
					sessions.PersistProfile(w, state, blob)
				} else {
					logger.Warn("encode refreshed profile", slog.String("user", state.Token), slog.Any("error", err))
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFMiddleware rejects unsafe requests without a matching CSRF token.
func CSRFMiddleware(csrf *shared.CSRFManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(shared.CSRFHeader)
			if token == "" {
				token = r.PostFormValue(shared.CSRFFormField)
			}
			if err := csrf.VerifyToken(r, token); err != nil {
				logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MiddlewareStack installs the console middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	perMinute := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			perMinute = cfg.Config.RateLimitPerMinute
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return append(middlewares,
		SessionMiddleware(cfg.SessionManager, cfg.Resolver, cfg.Logger),
		CSRFMiddleware(cfg.CSRFManager, cfg.Logger),
	)
}

// LoginLimiter throttles sign-in attempts per client address.
func LoginLimiter(cfg *Config) func(http.Handler) http.Handler {
	perMinute := 10
	if cfg != nil && cfg.LoginRateLimitPerMinute > 0 {
		perMinute = cfg.LoginRateLimitPerMinute
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many sign-in attempts, try again shortly")
		}),
	)
}
