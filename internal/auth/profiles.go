package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leofleet/fleet-console/internal/platform/cache"
	"github.com/leofleet/fleet-console/internal/rbac"
)

// ProfileSource loads profiles from the identity API and remembers recently
// refreshed ones in Redis.
type ProfileSource struct {
	identity  IdentitySource
	evaluator *rbac.Evaluator
	cache     *cache.Cache
	freshTTL  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	group     singleflight.Group
}

// NewProfileSource constructs a ProfileSource. freshTTL bounds how long a
// refreshed profile suppresses further identity lookups; timeout bounds one
// lookup.
func NewProfileSource(identity IdentitySource, evaluator *rbac.Evaluator, c *cache.Cache, freshTTL, timeout time.Duration, logger *slog.Logger) *ProfileSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileSource{identity: identity, evaluator: evaluator, cache: c, freshTTL: freshTTL, timeout: timeout, logger: logger}
}

// Fetch loads the profile of email from the identity API, applies the
// super-admin override and stores it as fresh. An empty id takes the id
// reported by the identity API. Concurrent fetches of one session share a
// single lookup, which runs to completion and updates the cache even if the
// caller gives up.
func (s *ProfileSource) Fetch(ctx context.Context, id, email string) (*rbac.Profile, error) {
	email = rbac.NormalizeEmail(email)
	ch := s.group.DoChan(id+"|"+email, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		raw, err := s.identity.UserDetails(lookupCtx, email)
		if err != nil {
			return nil, err
		}
		ident, err := rbac.DecodeIdentity(raw)
		if err != nil {
			return nil, err
		}
		p := ident.Profile(email)
		if id != "" {
			p.ID = id
		}
		p = s.evaluator.ApplyOverride(p)
		if err := s.Store(lookupCtx, p); err != nil {
			s.logger.Warn("store fresh profile", slog.String("user", p.ID), slog.Any("error", err))
		}
		return p, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("auth: fetch profile %s: %w", email, res.Err)
	}
	return res.Val.(*rbac.Profile).Clone(), nil
}

// Fresh returns the profile stored for id within the freshness window.
func (s *ProfileSource) Fresh(ctx context.Context, id string) (*rbac.Profile, bool, error) {
	if s.freshTTL <= 0 {
		return nil, false, nil
	}
	var p rbac.Profile
	found, err := s.cache.GetJSON(ctx, s.key(id), &p)
	if err != nil || !found {
		return nil, false, err
	}
	p.Normalize()
	return s.evaluator.ApplyOverride(&p), true, nil
}

// Store marks p as freshly refreshed.
func (s *ProfileSource) Store(ctx context.Context, p *rbac.Profile) error {
	if p == nil || s.freshTTL <= 0 {
		return nil
	}
	return s.cache.SetJSON(ctx, s.key(p.ID), p, s.freshTTL)
}

// Forget drops the fresh profile for id.
func (s *ProfileSource) Forget(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, s.key(id))
}

func (s *ProfileSource) key(id string) string {
	return s.cache.Key("profile", id)
}
