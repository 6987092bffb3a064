package storage

import (
	"context"
	"fmt"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// SummaryRepository aggregates dashboard counts
type SummaryRepository struct {
	q Querier
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(q Querier) *SummaryRepository {
	return &SummaryRepository{q: q}
}

// Overview counts classifications by severity and incidents by status.
// Open incidents are those still open or under investigation.
func (r *SummaryRepository) Overview(ctx context.Context) (*models.Overview, error) {
	out := &models.Overview{
		AlertsBySeverity: map[models.Severity]int{
			models.SeverityLow:      0,
			models.SeverityMedium:   0,
			models.SeverityHigh:     0,
			models.SeverityCritical: 0,
		},
		IncidentsByStatus: make(map[models.IncidentStatus]int, len(models.IncidentStatuses)),
	}
	for _, st := range models.IncidentStatuses {
		out.IncidentsByStatus[st] = 0
	}

	err := r.groupCount(ctx, "SELECT severity, COUNT(*) FROM classifications GROUP BY severity",
		func(key string, n int) {
			out.AlertsBySeverity[models.Severity(key)] = n
			out.TotalAlerts += n
		})
	if err != nil {
		return nil, fmt.Errorf("failed to count classifications: %w", err)
	}
	out.CriticalAlerts = out.AlertsBySeverity[models.SeverityCritical]

	err = r.groupCount(ctx, "SELECT current_status, COUNT(*) FROM incidents GROUP BY current_status",
		func(key string, n int) {
			out.IncidentsByStatus[models.IncidentStatus(key)] = n
			out.TotalIncidents += n
		})
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	out.OpenIncidents = out.IncidentsByStatus[models.IncidentOpen] + out.IncidentsByStatus[models.IncidentInvestigating]

	return out, nil
}

func (r *SummaryRepository) groupCount(ctx context.Context, query string, fn func(key string, n int)) error {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}
