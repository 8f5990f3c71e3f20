package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/aegis-identity/aegis/internal/catalog"
)

// CatalogReader is the read side the audit needs from the endpoint catalog.
type CatalogReader interface {
	ListAll(ctx context.Context) ([]catalog.Endpoint, error)
}

// CatalogAuditJob walks the endpoint catalog and reports templates that
// resolve to the same request line. The matcher picks the first match when
// templates overlap, so overlaps are an authoring bug worth surfacing early.
type CatalogAuditJob struct {
	catalog CatalogReader
	logger  *slog.Logger
}

// NewCatalogAuditJob constructs the audit job.
func NewCatalogAuditJob(reader CatalogReader, logger *slog.Logger) *CatalogAuditJob {
	return &CatalogAuditJob{catalog: reader, logger: logger}
}

// Handle processes TaskCatalogAudit tasks.
func (j *CatalogAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload CatalogAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	endpoints, err := j.catalog.ListAll(ctx)
	if err != nil {
		j.logger.Error("catalog audit", slog.Any("error", err))
		return err
	}

	report := auditCatalog(endpoints, payload.IncludeInactive)
	for _, dup := range report.Duplicates {
		j.logger.Warn("catalog template overlap",
			slog.String("method", dup.Method),
			slog.String("path", dup.Path),
			slog.Int("endpoints", dup.Count))
	}
	j.logger.Info("catalog audit complete",
		slog.Int("total", report.Total),
		slog.Int("active", report.Active),
		slog.Int("overlaps", len(report.Duplicates)))
	return nil
}

type duplicateTemplate struct {
	Method string
	Path   string
	Count  int
}

type catalogReport struct {
	Total      int
	Active     int
	Duplicates []duplicateTemplate
}

// auditCatalog groups cataloged endpoints by their normalized request line
// and flags every line claimed by more than one endpoint. Composite prefixes
// count toward the same line as the plain path they normalize to.
func auditCatalog(endpoints []catalog.Endpoint, includeInactive bool) catalogReport {
	report := catalogReport{Total: len(endpoints)}
	seen := make(map[[2]string]int)
	for _, e := range endpoints {
		if e.IsActive {
			report.Active++
		} else if !includeInactive {
			continue
		}
		key := [2]string{e.Method, catalog.NormalizePath(e.Path)}
		seen[key]++
	}
	for key, count := range seen {
		if count > 1 {
			report.Duplicates = append(report.Duplicates, duplicateTemplate{
				Method: key[0],
				Path:   key[1],
				Count:  count,
			})
		}
	}
	return report
}
