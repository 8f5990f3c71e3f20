package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes session audit rows whose expiry has passed.
	TaskSessionSweep = "aegis:session_sweep"
	// TaskCatalogAudit re-reads the endpoint catalog and reports
	// overlapping templates before they bite a caller.
	TaskCatalogAudit = "aegis:catalog_audit"
)

// SessionSweepPayload bounds a single sweep run.
type SessionSweepPayload struct {
	// Grace keeps rows around past their expiry, in seconds. Zero means
	// delete as soon as a session expires.
	Grace int64 `json:"grace"`
}

// NewSessionSweepTask constructs an Asynq task for sweeping expired sessions.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data, asynq.Queue(QueueDefault)), nil
}

// CatalogAuditPayload contains options for the catalog audit job.
type CatalogAuditPayload struct {
	IncludeInactive bool `json:"includeInactive"`
}

// NewCatalogAuditTask builds a catalog audit task.
func NewCatalogAuditTask(includeInactive bool) (*asynq.Task, error) {
	payload := CatalogAuditPayload{IncludeInactive: includeInactive}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogAudit, body, asynq.Queue(QueueDefault)), nil
}
