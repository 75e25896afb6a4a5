package auth

import (
	"context"
	"time"

	"github.com/leofleet/fleet-console/internal/platform/cache"
)

// Revocations remembers signed-out sessions until their cookies would have
// expired, so a copied cookie pair stops working at logout.
type Revocations struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewRevocations constructs Revocations over c.
func NewRevocations(c *cache.Cache) *Revocations {
	return &Revocations{cache: c, now: time.Now}
}

// Revoke marks sessionID as ended until expiresAt.
func (r *Revocations) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if r == nil || sessionID == "" {
		return nil
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.cache.SetJSON(ctx, r.key(sessionID), true, ttl)
}

// Revoked reports whether sessionID was signed out.
func (r *Revocations) Revoked(ctx context.Context, sessionID string) (bool, error) {
	if r == nil || sessionID == "" {
		return false, nil
	}
	var revoked bool
	found, err := r.cache.GetJSON(ctx, r.key(sessionID), &revoked)
	if err != nil {
		return false, err
	}
	return found && revoked, nil
}

func (r *Revocations) key(sessionID string) string {
	return r.cache.Key("revoked", sessionID)
}
