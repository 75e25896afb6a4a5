package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/leofleet/fleet-console/internal/guard"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// PGDSN enables the login audit trail when set.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"5"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	CachePrefix   string `envconfig:"CACHE_PREFIX" default:"fleet"`

	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	CSRFSecret    string        `envconfig:"CSRF_SECRET" required:"true"`

	FleetAPIURL          string        `envconfig:"FLEET_API_URL" required:"true"`
	FleetAPIKey          string        `envconfig:"FLEET_API_KEY"`
	FleetAPISecret       string        `envconfig:"FLEET_API_SECRET"`
	FleetAPITimeout      time.Duration `envconfig:"FLEET_API_TIMEOUT" default:"10s"`
	FleetLoginPath       string        `envconfig:"FLEET_LOGIN_PATH" default:"/api/method/login"`
	FleetLogoutPath      string        `envconfig:"FLEET_LOGOUT_PATH" default:"/api/method/logout"`
	FleetUserDetailsPath string        `envconfig:"FLEET_USER_DETAILS_PATH" default:"/api/method/fleet.api.get_user_details"`

	IdentityRefreshTimeout time.Duration `envconfig:"IDENTITY_REFRESH_TIMEOUT" default:"3s"`
	ProfileFreshTTL        time.Duration `envconfig:"PROFILE_FRESH_TTL" default:"5m"`
	ReferenceCacheTTL      time.Duration `envconfig:"REFERENCE_CACHE_TTL" default:"24h"`

	SuperAdminEmails    []string `envconfig:"SUPER_ADMIN_EMAILS"`
	AuthDegradedMode    bool     `envconfig:"AUTH_DEGRADED_MODE" default:"false"`
	DegradedAdminEmails []string `envconfig:"DEGRADED_ADMIN_EMAILS"`
	DegradedAdminIDs    []string `envconfig:"DEGRADED_ADMIN_IDS"`

	GuardDefaultPolicy  string        `envconfig:"GUARD_DEFAULT_POLICY" default:"allow"`
	GuardRedirectTarget string        `envconfig:"GUARD_REDIRECT_TARGET" default:"/dashboard"`
	GuardCooldown       time.Duration `envconfig:"GUARD_COOLDOWN" default:"2s"`
	GuardRulesFile      string        `envconfig:"GUARD_RULES_FILE"`
	LoginPath           string        `envconfig:"LOGIN_PATH" default:"/login"`

	RateLimitPerMinute      int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	LoginRateLimitPerMinute int `envconfig:"LOGIN_RATE_LIMIT_PER_MINUTE" default:"10"`

	LogoutAsync       bool `envconfig:"LOGOUT_ASYNC" default:"false"`
	WorkerConcurrency int  `envconfig:"WORKER_CONCURRENCY" default:"5"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SessionSecret) == "" {
		return errors.New("session secret must be provided")
	}
	if strings.TrimSpace(c.CSRFSecret) == "" {
		return errors.New("csrf secret must be provided")
	}
	if strings.TrimSpace(c.FleetAPIURL) == "" {
		return errors.New("fleet api url must be provided")
	}
	if _, err := guard.ParsePolicy(c.GuardDefaultPolicy); err != nil {
		return err
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	c.SuperAdminEmails = compact(c.SuperAdminEmails)
	c.DegradedAdminEmails = compact(c.DegradedAdminEmails)
	c.DegradedAdminIDs = compact(c.DegradedAdminIDs)
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
