package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// IncidentFilter narrows incident listings. AttackType matches as a
// case-insensitive substring.
type IncidentFilter struct {
	Status     models.IncidentStatus
	AttackType string
	AssignedTo string
	Page
}

// IncidentRepository implements incident and incident history storage operations
type IncidentRepository struct {
	q Querier
}

// NewIncidentRepository creates a new incident repository
func NewIncidentRepository(q Querier) *IncidentRepository {
	return &IncidentRepository{q: q}
}

// NextSequence returns the next free sequence number for year. Callers must
// hold LockIncidentIDs for the result to stay free until insert.
func (r *IncidentRepository) NextSequence(ctx context.Context, year int) (int, error) {
	var next int
	err := r.q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(incident_seq), 0) + 1 FROM incidents WHERE incident_year = ?", year).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate incident sequence: %w", err)
	}
	return next, nil
}

// Create stores a new incident. A duplicate identifier or event maps to ErrAlreadyExists.
func (r *IncidentRepository) Create(ctx context.Context, inc *models.Incident) error {
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = Now()
	}
	inc.CreatedAt = dbTime(inc.CreatedAt)
	if inc.UpdatedAt.IsZero() {
		inc.UpdatedAt = inc.CreatedAt
	}
	inc.UpdatedAt = dbTime(inc.UpdatedAt)
	if inc.CurrentStatus == "" {
		inc.CurrentStatus = models.IncidentOpen
	}

	query := `
		INSERT INTO incidents (incident_id, incident_year, incident_seq, correlated_event_id, attack_type,
			risk_score, current_status, assigned_to, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := r.q.QueryRowContext(ctx, query,
		inc.IncidentID,
		inc.Year,
		inc.Sequence,
		inc.CorrelatedEventID,
		string(inc.AttackType),
		inc.RiskScore,
		string(inc.CurrentStatus),
		nullString(inc.AssignedTo),
		nullString(inc.CreatedBy),
		inc.CreatedAt,
		inc.UpdatedAt,
	).Scan(&inc.ID)
	if err != nil {
		return fmt.Errorf("failed to store incident %s: %w", inc.IncidentID, mapError(err))
	}
	return nil
}

const incidentColumns = `id, incident_id, incident_year, incident_seq, correlated_event_id, attack_type, risk_score,
	current_status, assigned_to, created_by, created_at, updated_at`

func scanIncident(row interface{ Scan(...any) error }) (*models.Incident, error) {
	var inc models.Incident
	var assignedTo, createdBy sql.NullString
	err := row.Scan(
		&inc.ID,
		&inc.IncidentID,
		&inc.Year,
		&inc.Sequence,
		&inc.CorrelatedEventID,
		&inc.AttackType,
		&inc.RiskScore,
		&inc.CurrentStatus,
		&assignedTo,
		&createdBy,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inc.AssignedTo = assignedTo.String
	inc.CreatedBy = createdBy.String
	return &inc, nil
}

// Get retrieves an incident by its human-readable identifier
func (r *IncidentRepository) Get(ctx context.Context, incidentID string) (*models.Incident, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+incidentColumns+" FROM incidents WHERE incident_id = ?", incidentID)
	inc, err := scanIncident(row)
	if err != nil {
		return nil, notFound(err, "incident "+incidentID)
	}
	return inc, nil
}

// GetByEvent retrieves the incident promoted from a correlated event
func (r *IncidentRepository) GetByEvent(ctx context.Context, eventID int64) (*models.Incident, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+incidentColumns+" FROM incidents WHERE correlated_event_id = ?", eventID)
	inc, err := scanIncident(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("incident for event %d", eventID))
	}
	return inc, nil
}

// List retrieves incidents newest first
func (r *IncidentRepository) List(ctx context.Context, f IncidentFilter) ([]*models.Incident, error) {
	var w where
	if f.Status != "" {
		w.add("current_status = ?", string(f.Status))
	}
	if f.AttackType != "" {
		w.add("LOWER(attack_type) LIKE ?", "%"+strings.ToLower(f.AttackType)+"%")
	}
	if f.AssignedTo != "" {
		w.add("assigned_to = ?", f.AssignedTo)
	}
	limit, pageArgs := f.Page.clause()

	rows, err := r.q.QueryContext(ctx,
		"SELECT "+incidentColumns+" FROM incidents"+w.String()+" ORDER BY id DESC"+limit,
		append(w.args, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var out []*models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// UpdateStatus sets the current status of an incident
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id int64, status models.IncidentStatus, at time.Time) error {
	return r.update(ctx, id, "current_status = ?", string(status), at)
}

// UpdateAssignee sets the analyst responsible for an incident
func (r *IncidentRepository) UpdateAssignee(ctx context.Context, id int64, assignee string, at time.Time) error {
	return r.update(ctx, id, "assigned_to = ?", nullString(assignee), at)
}

func (r *IncidentRepository) update(ctx context.Context, id int64, set string, value any, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE incidents SET "+set+", updated_at = ? WHERE id = ?", value, dbTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update incident %d: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update incident %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("incident %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddHistory appends one entry to an incident's status trail
func (r *IncidentRepository) AddHistory(ctx context.Context, h *models.IncidentHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = Now()
	}
	h.Timestamp = dbTime(h.Timestamp)

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO incident_history (incident_id, timestamp, changed_by, old_status, new_status, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		h.IncidentID,
		h.Timestamp,
		nullString(h.ChangedBy),
		string(h.OldStatus),
		string(h.NewStatus),
		h.Notes,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("failed to store incident history: %w", mapError(err))
	}
	return nil
}

// History returns an incident's status trail in insertion order
func (r *IncidentRepository) History(ctx context.Context, id int64) ([]*models.IncidentHistory, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, incident_id, timestamp, changed_by, old_status, new_status, notes
		FROM incident_history WHERE incident_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query incident history: %w", err)
	}
	defer rows.Close()

	var out []*models.IncidentHistory
	for rows.Next() {
		var h models.IncidentHistory
		var changedBy sql.NullString
		if err := rows.Scan(&h.ID, &h.IncidentID, &h.Timestamp, &changedBy, &h.OldStatus, &h.NewStatus, &h.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan incident history: %w", err)
		}
		h.ChangedBy = changedBy.String
		out = append(out, &h)
	}
	return out, rows.Err()
}
