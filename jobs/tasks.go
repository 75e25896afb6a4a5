package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeLogoutNotify tells the identity API that a user signed out.
	TaskTypeLogoutNotify = "auth:logout_notify"
)

// LogoutPayload describes a pending upstream logout.
type LogoutPayload struct {
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewLogoutTask constructs an Asynq task for TaskTypeLogoutNotify.
func NewLogoutTask(payload LogoutPayload) (*asynq.Task, error) {
	if payload.UserID == "" {
		return nil, fmt.Errorf("jobs: logout task without user id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLogoutNotify, data, asynq.MaxRetry(3), asynq.Timeout(30*time.Second)), nil
}
