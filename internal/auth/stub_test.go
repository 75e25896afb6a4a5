package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/platform/cache"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

var errIdentityDown = fmt.Errorf("dial tcp 10.0.0.1:443: %w", shared.ErrUpstreamUnavailable)

type stubIdentity struct {
	mu          sync.Mutex
	loginErr    error
	fullName    string
	details     map[string]string
	detailsErr  error
	detailCalls int
	logouts     []string
}

func (s *stubIdentity) Login(ctx context.Context, email, password string) (*fleetapi.LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &fleetapi.LoginResult{Message: "Logged In", FullName: s.fullName}, nil
}

func (s *stubIdentity) UserDetails(ctx context.Context, email string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls++
	if s.detailsErr != nil {
		return nil, s.detailsErr
	}
	raw, ok := s.details[email]
	if !ok {
		return nil, &fleetapi.APIError{Status: 404, Message: "User not found"}
	}
	return json.RawMessage(raw), nil
}

func (s *stubIdentity) Logout(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts = append(s.logouts, userID)
	return nil
}

func (s *stubIdentity) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailCalls
}

func (s *stubIdentity) setDetailsErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailsErr = err
}

type recordingRepo struct {
	mu      sync.Mutex
	logins  []LoginRecord
	logouts []string
}

func (r *recordingRepo) RecordLogin(ctx context.Context, rec LoginRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, rec)
	return nil
}

func (r *recordingRepo) RecordLogout(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logouts = append(r.logouts, sessionID)
	return errors.New("audit store offline")
}

const superAdmin = "leofleet@gmail.com"

type fixture struct {
	identity    *stubIdentity
	evaluator   *rbac.Evaluator
	profiles    *ProfileSource
	revocations *Revocations
	redis       *miniredis.Miniredis
	logger      *slog.Logger
}

func newFixture(t *testing.T, ident *stubIdentity) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	evaluator := rbac.NewEvaluator([]string{superAdmin})
	c := cache.NewCache(client, "fleet")
	profiles := NewProfileSource(ident, evaluator, c, time.Minute, time.Second, logger)
	return &fixture{identity: ident, evaluator: evaluator, profiles: profiles, revocations: NewRevocations(c), redis: mr, logger: logger}
}

func (f *fixture) resolver(degraded DegradedPolicy) *Resolver {
	return NewResolver(f.profiles, f.evaluator, degraded, f.revocations, f.logger, nil)
}

func (f *fixture) service(repo Repository, degraded DegradedPolicy) *Service {
	return NewService(ServiceConfig{
		Identity:    f.identity,
		Profiles:    f.profiles,
		Evaluator:   f.evaluator,
		Repository:  repo,
		Degraded:    degraded,
		Revocations: f.revocations,
		SessionTTL:  time.Hour,
		Logger:      f.logger,
	})
}

func mustEncode(t *testing.T, p *rbac.Profile) []byte {
	t.Helper()
	blob, err := EncodeProfile(p)
	if err != nil {
		t.Fatalf("encode profile: %v", err)
	}
	return blob
}
