package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge is the task type for deleting expired auth sessions.
	TaskSessionPurge = "auth:purge_sessions"
)

// SessionPurger removes expired session rows. Satisfied by the auth
// service.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// NewSessionPurgeTask constructs the purge task; it carries no payload.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPurge, nil)
}

// NewSessionPurgeHandler returns the Asynq handler for TaskSessionPurge.
func NewSessionPurgeHandler(logger *slog.Logger, purger SessionPurger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := purger.PurgeExpiredSessions(ctx)
		if err != nil {
			logger.Error("purge sessions", slog.Any("error", err))
			return err
		}
		if n > 0 {
			logger.Info("purged expired sessions", slog.Int64("count", n))
		}
		return nil
	}
}
