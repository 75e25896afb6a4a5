package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/observability"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

// ServiceConfig groups the dependencies of Service.
type ServiceConfig struct {
	Identity   IdentitySource
	Profiles   *ProfileSource
	Evaluator  *rbac.Evaluator
	Repository Repository
	Notifier   LogoutNotifier
	Degraded    DegradedPolicy
	Revocations *Revocations
	SessionTTL  time.Duration
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Service signs users in and out and refreshes their profiles.
type Service struct {
	identity   IdentitySource
	profiles   *ProfileSource
	evaluator  *rbac.Evaluator
	repo       Repository
	notifier   LogoutNotifier
	degraded   DegradedPolicy
	revoked    *Revocations
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewService constructs a new Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		identity:   cfg.Identity,
		profiles:   cfg.Profiles,
		evaluator:  cfg.Evaluator,
		repo:       cfg.Repository,
		notifier:   cfg.Notifier,
		degraded:   cfg.Degraded,
		revoked:    cfg.Revocations,
		sessionTTL: cfg.SessionTTL,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
	if s.repo == nil {
		s.repo = NopRepository{}
	}
	if s.notifier == nil {
		s.notifier = DirectNotifier{Identity: cfg.Identity}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Login verifies credentials with the identity API and builds the profile
// for the new session. Rejected credentials yield a *CredentialError; an
// unreachable identity API yields shared.ErrUpstreamUnavailable unless the
// degraded policy is enabled.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (*LoginResult, error) {
	email = rbac.NormalizeEmail(email)
	if email == "" || password == "" {
		s.metrics.ObserveLogin("rejected")
		return nil, &CredentialError{Message: "email and password are required"}
	}

	login, err := s.identity.Login(ctx, email, password)
	if err != nil {
		if fleetapi.IsCredentialRejection(err) {
			s.metrics.ObserveLogin("rejected")
			var apiErr *fleetapi.APIError
			errors.As(err, &apiErr)
			return nil, &CredentialError{Message: apiErr.UserMessage()}
		}
		placeholder := s.degraded.Placeholder("", email)
		if placeholder == nil {
			s.metrics.ObserveLogin("unavailable")
			return nil, fmt.Errorf("auth: login %s: %w", email, shared.ErrUpstreamUnavailable)
		}
		s.logger.Warn("identity api unavailable, issuing degraded session",
			slog.String("email", email), slog.Bool("degraded", true), slog.Any("error", err))
		s.metrics.ObserveLogin("degraded")
		return s.finishLogin(ctx, s.evaluator.ApplyOverride(placeholder), true, meta), nil
	}

	profile, err := s.profiles.Fetch(ctx, "", email)
	if err != nil {
		s.logger.Warn("user details unavailable, signing in without grants",
			slog.String("email", email), slog.Any("error", err))
		profile = (&rbac.Identity{FullName: login.FullName}).Profile(email)
		profile = s.evaluator.ApplyOverride(profile)
	}
	if name := strings.TrimSpace(login.FullName); name != "" && profile.DisplayName == rbac.DisplayNameFromEmail(email) {
		profile.DisplayName = name
		if err == nil {
			if err := s.profiles.Store(ctx, profile); err != nil {
				s.logger.Warn("store fresh profile", slog.String("user", profile.ID), slog.Any("error", err))
			}
		}
	}
	s.metrics.ObserveLogin("success")
	return s.finishLogin(ctx, profile, false, meta), nil
}

func (s *Service) finishLogin(ctx context.Context, profile *rbac.Profile, degraded bool, meta ClientMeta) *LoginResult {
	now := s.now()
	rec := LoginRecord{
		ID:        uuid.New(),
		UserID:    profile.ID,
		Email:     profile.Email,
		Degraded:  degraded,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.repo.RecordLogin(ctx, rec); err != nil {
		s.logger.Warn("record login", slog.String("user", profile.ID), slog.Any("error", err))
	}
	return &LoginResult{Token: profile.ID, SessionID: rec.ID.String(), Profile: profile, Degraded: degraded}
}

// Logout invalidates the upstream session on a best-effort basis, revokes
// the session cookies and closes its audit row. It never fails; clearing
// cookies is the caller's job.
func (s *Service) Logout(ctx context.Context, state shared.SessionState) {
	token := state.Token
	if token == "" {
		return
	}
	if err := s.revoked.Revoke(ctx, state.ID, state.ExpiresAt); err != nil {
		s.logger.Warn("revoke session", slog.String("user", token), slog.Any("error", err))
	}
	if err := s.notifier.NotifyLogout(ctx, token); err != nil {
		s.logger.Debug("logout notification failed", slog.String("user", token), slog.Any("error", err))
	}
	if state.ID != "" {
		if err := s.repo.RecordLogout(ctx, state.ID); err != nil {
			s.logger.Warn("record logout", slog.String("user", token), slog.Any("error", err))
		}
	}
	if err := s.profiles.Forget(ctx, token); err != nil {
		s.logger.Warn("forget fresh profile", slog.String("user", token), slog.Any("error", err))
	}
}

// Refresh reloads the profile of the session from the identity API. Unlike
// Resolve it reports failures.
func (s *Service) Refresh(ctx context.Context, state shared.SessionState) (*rbac.Profile, error) {
	if !state.Authenticated() {
		return nil, shared.ErrUnauthenticated
	}
	var cached *rbac.Profile
	if state.ProfileErr == nil && len(state.Profile) > 0 {
		if p, err := DecodeProfile(state.Profile); err == nil {
			cached = p
		}
	}
	email := lookupEmail(state.Token, cached)
	if email == "" {
		return nil, fmt.Errorf("auth: refresh %s: no identity lookup key: %w", state.Token, shared.ErrUnauthenticated)
	}
	profile, err := s.profiles.Fetch(ctx, state.Token, email)
	if err != nil {
		s.metrics.ObserveRefresh("failure")
		if errors.Is(err, shared.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	s.metrics.ObserveRefresh("success")
	return keepDisplayName(profile, cached), nil
}
