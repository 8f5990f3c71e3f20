package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/aegis-identity/aegis/internal/catalog"
)

type sweepStore struct {
	before  time.Time
	removed int64
	err     error
}

func (s *sweepStore) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	s.before = before
	return s.removed, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionSweepAppliesGrace(t *testing.T) {
	store := &sweepStore{removed: 3}
	job := NewSessionSweepJob(store, discardLogger())
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return at }

	task, err := NewSessionSweepTask(SessionSweepPayload{Grace: 600})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, at.Add(-10*time.Minute), store.before)
}

func TestSessionSweepRejectsMalformedPayload(t *testing.T) {
	job := NewSessionSweepJob(&sweepStore{}, discardLogger())
	task := asynq.NewTask(TaskSessionSweep, []byte("{not json"))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestAuditCatalogFlagsOverlaps(t *testing.T) {
	endpoints := []catalog.Endpoint{
		{ID: 1, Method: "GET", Path: "/invoices/{id}", IsActive: true},
		{ID: 2, Method: "GET", Path: "/invoices/{id}/", IsActive: true},
		{ID: 3, Method: "POST", Path: "/invoices", IsActive: true},
		{ID: 4, Method: "GET", Path: "/invoices/{id}", IsActive: false},
	}

	report := auditCatalog(endpoints, false)
	require.Equal(t, 4, report.Total)
	require.Equal(t, 3, report.Active)
	require.Len(t, report.Duplicates, 1)
	require.Equal(t, "GET", report.Duplicates[0].Method)
	require.Equal(t, "/invoices/{id}", report.Duplicates[0].Path)
	require.Equal(t, 2, report.Duplicates[0].Count)

	withInactive := auditCatalog(endpoints, true)
	require.Len(t, withInactive.Duplicates, 1)
	require.Equal(t, 3, withInactive.Duplicates[0].Count)
}

func TestCatalogAuditTaskRoundTrip(t *testing.T) {
	task, err := NewCatalogAuditTask(true)
	require.NoError(t, err)
	require.Equal(t, TaskCatalogAudit, task.Type())

	var payload CatalogAuditPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.True(t, payload.IncludeInactive)
}
