package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/leofleet/fleet-console/internal/auth"
	"github.com/leofleet/fleet-console/internal/dashboard"
	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/guard"
	"github.com/leofleet/fleet-console/internal/observability"
	"github.com/leofleet/fleet-console/internal/platform/cache"
	"github.com/leofleet/fleet-console/internal/platform/db"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/resources"
	"github.com/leofleet/fleet-console/internal/shared"
	"github.com/leofleet/fleet-console/jobs"
)

// Application is the wired console.
type Application struct {
	Handler http.Handler
	Metrics *observability.Metrics
	Fleet   *fleetapi.Client

	closers []func()
}

// Close releases the resources opened by NewApplication. The Redis client
// passed in stays open.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// FleetClient builds the fleet API client from cfg.
func FleetClient(cfg *Config) *fleetapi.Client {
	return fleetapi.NewClient(fleetapi.Config{
		BaseURL:         cfg.FleetAPIURL,
		APIKey:          cfg.FleetAPIKey,
		APISecret:       cfg.FleetAPISecret,
		Timeout:         cfg.FleetAPITimeout,
		LoginPath:       cfg.FleetLoginPath,
		LogoutPath:      cfg.FleetLogoutPath,
		UserDetailsPath: cfg.FleetUserDetailsPath,
	})
}

// RedisOpts returns the asynq connection options for cfg.
func RedisOpts(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// NewApplication wires the console from cfg. redisClient backs the profile
// and reference caches.
func NewApplication(ctx context.Context, cfg *Config, logger *slog.Logger, redisClient *redis.Client) (*Application, error) {
	application := &Application{}
	fail := func(err error) (*Application, error) {
		application.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	fleet := FleetClient(cfg)
	application.Metrics = metrics
	application.Fleet = fleet

	if len(cfg.SuperAdminEmails) > 0 {
		logger.Info("super admin override enabled", slog.Any("emails", cfg.SuperAdminEmails))
	}
	evaluator := rbac.NewEvaluator(cfg.SuperAdminEmails)
	store := cache.NewCache(redisClient, cfg.CachePrefix)

	degraded := auth.DegradedPolicy{
		Enabled:     cfg.AuthDegradedMode,
		AdminEmails: cfg.DegradedAdminEmails,
		AdminIDs:    cfg.DegradedAdminIDs,
	}
	if degraded.Enabled {
		logger.Warn("degraded auth mode enabled: placeholder profiles are issued while the identity API is down")
	}

	profiles := auth.NewProfileSource(fleet, evaluator, store, cfg.ProfileFreshTTL, cfg.IdentityRefreshTimeout, logger)
	revocations := auth.NewRevocations(store)
	resolver := auth.NewResolver(profiles, evaluator, degraded, revocations, logger, metrics)

	var repo auth.Repository = auth.NopRepository{}
	if cfg.PGDSN != "" && !InTestMode() {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return fail(err)
		}
		application.closers = append(application.closers, pool.Close)
		pgRepo := auth.NewRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		repo = pgRepo
	}

	var notifier auth.LogoutNotifier
	var inspector jobs.QueueInspector
	if !InTestMode() {
		if cfg.LogoutAsync {
			client := jobs.NewClient(RedisOpts(cfg))
			application.closers = append(application.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("asynq client close", slog.Any("error", err))
				}
			})
			notifier = client
		}
		asynqInspector := asynq.NewInspector(RedisOpts(cfg))
		application.closers = append(application.closers, func() {
			if err := asynqInspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		})
		inspector = asynqInspector
	}

	authService := auth.NewService(auth.ServiceConfig{
		Identity:    fleet,
		Profiles:    profiles,
		Evaluator:   evaluator,
		Repository:  repo,
		Notifier:    notifier,
		Degraded:    degraded,
		Revocations: revocations,
		SessionTTL:  cfg.SessionTTL,
		Logger:      logger,
		Metrics:     metrics,
	})

	guardHandler, cooldown, err := buildGuard(cfg, evaluator, logger, metrics)
	if err != nil {
		return fail(err)
	}

	sessionManager := shared.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret, cfg.IsProduction())

	authHandler := auth.NewHandler(auth.HandlerConfig{
		Logger:       logger,
		Service:      authService,
		Evaluator:    evaluator,
		Sessions:     sessionManager,
		CSRF:         csrfManager,
		Cooldown:     cooldown,
		LoginPath:    cfg.LoginPath,
		LoginLimiter: LoginLimiter(cfg),
	})

	resourceService := resources.NewService(fleet, store, cfg.ReferenceCacheTTL, logger)
	resourceHandler := resources.NewHandler(logger, resourceService, rbac.Middleware{Evaluator: evaluator, Logger: logger})

	application.Handler = NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Resolver:         resolver,
		Evaluator:        evaluator,
		AuthHandler:      authHandler,
		GuardHandler:     guardHandler,
		ResourcesHandler: resourceHandler,
		DashboardHandler: dashboard.NewHandler(guardHandler, evaluator),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})
	return application, nil
}

func buildGuard(cfg *Config, evaluator *rbac.Evaluator, logger *slog.Logger, metrics *observability.Metrics) (*guard.Handler, *guard.Cooldown, error) {
	policy, err := guard.ParsePolicy(cfg.GuardDefaultPolicy)
	if err != nil {
		return nil, nil, err
	}
	var rules []guard.Rule
	if cfg.GuardRulesFile != "" {
		loaded, filePolicy, err := guard.LoadRules(cfg.GuardRulesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("app: guard rules: %w", err)
		}
		rules = loaded
		if filePolicy != "" {
			policy = filePolicy
		}
	}
	if policy == guard.PolicyAllow {
		logger.Info("route guard admits paths without a matching rule", slog.String("policy", string(policy)))
	}

	g := guard.New(guard.Config{
		Rules:          rules,
		DefaultPolicy:  policy,
		LoginPath:      cfg.LoginPath,
		RedirectTarget: cfg.GuardRedirectTarget,
	}, evaluator)
	cooldown := guard.NewCooldown(cfg.GuardCooldown)
	return guard.NewHandler(g, cooldown, logger, metrics), cooldown, nil
}
