package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	jobmetrics "github.com/leofleet/fleet-console/internal/jobs"
)

// logoutStaleAfter drops notifications nobody could act on anymore.
const logoutStaleAfter = 24 * time.Hour

// Logouter invalidates upstream sessions. *fleetapi.Client satisfies it.
type Logouter interface {
	Logout(ctx context.Context, userID string) error
}

// LogoutHandler processes TaskTypeLogoutNotify tasks.
type LogoutHandler struct {
	identity Logouter
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
	now      func() time.Time
}

// NewLogoutHandler constructs a LogoutHandler.
func NewLogoutHandler(identity Logouter, logger *slog.Logger, metrics *jobmetrics.Metrics) *LogoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogoutHandler{identity: identity, logger: logger, metrics: metrics, now: time.Now}
}

// ProcessTask implements asynq.Handler.
func (h *LogoutHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload LogoutPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID == "" {
		return fmt.Errorf("jobs: decode logout payload: %w", asynq.SkipRetry)
	}
	if !payload.RequestedAt.IsZero() && h.now().Sub(payload.RequestedAt) > logoutStaleAfter {
		h.logger.Info("dropping stale logout notification", slog.String("user", payload.UserID))
		return nil
	}
	tracker := h.metrics.Track("auth.logout_notify")
	err := h.identity.Logout(ctx, payload.UserID)
	if err != nil && fleetapi.IsCredentialRejection(err) {
		// The upstream session is already gone.
		h.logger.Debug("logout notification rejected", slog.String("user", payload.UserID), slog.Any("error", err))
		return tracker.End(nil)
	}
	if err != nil {
		h.logger.Warn("logout notification failed", slog.String("user", payload.UserID), slog.Any("error", err))
	}
	return tracker.End(err)
}
