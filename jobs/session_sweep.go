package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// SessionStore is the write side the sweep needs from the session audit table.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// SessionSweepJob deletes expired session rows on a schedule. The session
// itself lives in Redis with its own TTL; only the audit rows need sweeping.
type SessionSweepJob struct {
	store  SessionStore
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionSweepJob constructs the sweep job.
func NewSessionSweepJob(store SessionStore, logger *slog.Logger) *SessionSweepJob {
	return &SessionSweepJob{store: store, logger: logger, now: time.Now}
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	grace := time.Duration(payload.Grace) * time.Second
	if grace < 0 {
		grace = 0
	}
	before := j.now().Add(-grace)
	removed, err := j.store.DeleteExpiredSessions(ctx, before)
	if err != nil {
		j.logger.Error("session sweep", slog.Any("error", err))
		return err
	}
	j.logger.Info("session sweep complete",
		slog.Int64("removed", removed),
		slog.Time("before", before))
	return nil
}
