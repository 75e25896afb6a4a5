package auth

import (
	"context"
	"time"
)

// LogoutNotifier tells the identity API that a user signed out.
type LogoutNotifier interface {
	NotifyLogout(ctx context.Context, userID string) error
}

// DirectNotifier calls the identity API inline, bounded by Timeout.
type DirectNotifier struct {
	Identity IdentitySource
	Timeout  time.Duration
}

// NotifyLogout implements LogoutNotifier.
func (n DirectNotifier) NotifyLogout(ctx context.Context, userID string) error {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return n.Identity.Logout(ctx, userID)
}
