package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/leofleet/fleet-console/internal/observability"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

// Resolver turns a session into a profile for the current request.
type Resolver struct {
	profiles  *ProfileSource
	evaluator *rbac.Evaluator
	degraded  DegradedPolicy
	revoked   *Revocations
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewResolver constructs a Resolver.
func NewResolver(profiles *ProfileSource, evaluator *rbac.Evaluator, degraded DegradedPolicy, revoked *Revocations, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{profiles: profiles, evaluator: evaluator, degraded: degraded, revoked: revoked, logger: logger, metrics: metrics}
}

// Resolve returns the profile for state. It never fails: a broken cookie
// blob is a cache miss and a failed refresh falls back to the cached
// profile. Signed-out sessions are unauthenticated. Without any profile the
// result is unauthenticated unless the identity API is unreachable and the
// degraded policy provides a placeholder.
func (r *Resolver) Resolve(ctx context.Context, state shared.SessionState) Resolution {
	res := Resolution{Source: SourceNone}
	if !state.Authenticated() {
		return res
	}
	revoked, err := r.revoked.Revoked(ctx, state.ID)
	if err != nil {
		r.logger.Warn("read session revocation", slog.String("user", state.Token), slog.Any("error", err))
	}
	if revoked {
		return res
	}

	cached := r.cachedProfile(state)
	if cached != nil {
		cached = r.evaluator.ApplyOverride(cached)
		res.Profile = cached
		res.Source = SourceCached
	}

	fresh, ok, err := r.profiles.Fresh(ctx, state.Token)
	if err != nil {
		r.logger.Warn("read fresh profile", slog.String("user", state.Token), slog.Any("error", err))
	}
	if ok {
		res.Profile = keepDisplayName(fresh, cached)
		res.Source = SourceRefreshed
		res.Changed = !fresh.Equal(cached)
		return res
	}

	var fetchErr error
	if email := lookupEmail(state.Token, cached); email != "" {
		fresh, fetchErr = r.profiles.Fetch(ctx, state.Token, email)
		if fetchErr == nil {
			r.metrics.ObserveRefresh("success")
			res.Profile = keepDisplayName(fresh, cached)
			res.Source = SourceRefreshed
			res.Changed = !fresh.Equal(cached)
			return res
		}
		r.metrics.ObserveRefresh("failure")
		r.logger.Debug("profile refresh skipped", slog.String("user", state.Token), slog.Any("error", fetchErr))
	}

	if cached != nil || !errors.Is(fetchErr, shared.ErrUpstreamUnavailable) {
		return res
	}
	if p := r.degraded.Placeholder(state.Token, lookupEmail(state.Token, nil)); p != nil {
		r.logger.Warn("issuing degraded placeholder profile", slog.String("user", state.Token), slog.String("role", p.Role))
		res.Profile = r.evaluator.ApplyOverride(p)
		res.Source = SourcePlaceholder
	}
	return res
}

func (r *Resolver) cachedProfile(state shared.SessionState) *rbac.Profile {
	if state.ProfileErr != nil {
		r.logger.Warn("discarding session profile", slog.String("user", state.Token), slog.Any("error", state.ProfileErr))
		return nil
	}
	if len(state.Profile) == 0 {
		return nil
	}
	p, err := DecodeProfile(state.Profile)
	if err != nil {
		r.logger.Warn("discarding session profile", slog.String("user", state.Token), slog.Any("error", err))
		return nil
	}
	p.ID = state.Token
	return p
}

// keepDisplayName carries the sign-in display name over a refresh whose
// details only yield the name derived from the email.
func keepDisplayName(fresh, cached *rbac.Profile) *rbac.Profile {
	if cached == nil || cached.DisplayName == "" || fresh.DisplayName != rbac.DisplayNameFromEmail(fresh.Email) {
		return fresh
	}
	fresh.DisplayName = cached.DisplayName
	return fresh
}

// lookupEmail picks the identity lookup key: the cached email when known,
// else the token when it is an email (the identity API keys users by email).
func lookupEmail(token string, cached *rbac.Profile) string {
	if cached != nil && cached.Email != "" {
		return cached.Email
	}
	if strings.Contains(token, "@") {
		return token
	}
	return ""
}
