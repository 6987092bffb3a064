package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// EventFilter narrows correlated event listings. Source matches as a
// case-insensitive substring.
type EventFilter struct {
	AttackType models.AttackType
	Source     string
	Promoted   *bool
	Page
}

// EventRepository implements correlated event storage operations
type EventRepository struct {
	q Querier
}

// NewEventRepository creates a new event repository
func NewEventRepository(q Querier) *EventRepository {
	return &EventRepository{q: q}
}

// CreateIfAbsent stores ev unless an event with the same attack type, source,
// window and alert count exists. It reports whether a new row was created and
// always sets ev.ID. Members are attached only on creation.
func (r *EventRepository) CreateIfAbsent(ctx context.Context, ev *models.CorrelatedEvent) (bool, error) {
	ev.StartTime = dbTime(ev.StartTime)
	ev.EndTime = dbTime(ev.EndTime)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = Now()
	}
	ev.CreatedAt = dbTime(ev.CreatedAt)

	query := `
		INSERT INTO correlated_events (attack_type, source, start_time, end_time, total_alerts, risk_score,
			is_promoted_to_incident, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (attack_type, source, start_time, end_time, total_alerts) DO NOTHING
		RETURNING id
	`
	err := r.q.QueryRowContext(ctx, query,
		string(ev.AttackType),
		ev.Source,
		ev.StartTime,
		ev.EndTime,
		ev.TotalAlerts,
		ev.RiskScore,
		false,
		ev.CreatedAt,
	).Scan(&ev.ID)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.q.QueryRowContext(ctx, `
			SELECT id FROM correlated_events
			WHERE attack_type = ? AND source = ? AND start_time = ? AND end_time = ? AND total_alerts = ?
		`, string(ev.AttackType), ev.Source, ev.StartTime, ev.EndTime, ev.TotalAlerts).Scan(&ev.ID)
		if err != nil {
			return false, notFound(err, "existing correlated event")
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to store correlated event: %w", mapError(err))
	}

	for _, cid := range ev.ClassificationIDs {
		if _, err := r.q.ExecContext(ctx,
			"INSERT INTO correlated_event_members (event_id, classification_id) VALUES (?, ?)", ev.ID, cid); err != nil {
			return false, fmt.Errorf("failed to attach classification %d to event %d: %w", cid, ev.ID, mapError(err))
		}
	}
	return true, nil
}

const eventColumns = `id, attack_type, source, start_time, end_time, total_alerts, risk_score, is_promoted_to_incident, created_at`

func scanEvent(row interface{ Scan(...any) error }) (*models.CorrelatedEvent, error) {
	var ev models.CorrelatedEvent
	err := row.Scan(
		&ev.ID,
		&ev.AttackType,
		&ev.Source,
		&ev.StartTime,
		&ev.EndTime,
		&ev.TotalAlerts,
		&ev.RiskScore,
		&ev.IsPromotedToIncident,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Get retrieves a correlated event and its member classification ids
func (r *EventRepository) Get(ctx context.Context, id int64) (*models.CorrelatedEvent, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM correlated_events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("correlated event %d", id))
	}

	rows, err := r.q.QueryContext(ctx,
		"SELECT classification_id FROM correlated_event_members WHERE event_id = ? ORDER BY classification_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("failed to scan event member: %w", err)
		}
		ev.ClassificationIDs = append(ev.ClassificationIDs, cid)
	}
	return ev, rows.Err()
}

// List retrieves correlated events, highest risk first
func (r *EventRepository) List(ctx context.Context, f EventFilter) ([]*models.CorrelatedEvent, error) {
	var w where
	if f.AttackType != "" {
		w.add("attack_type = ?", string(f.AttackType))
	}
	if f.Source != "" {
		w.add("LOWER(source) LIKE ?", "%"+strings.ToLower(f.Source)+"%")
	}
	if f.Promoted != nil {
		w.add("is_promoted_to_incident = ?", *f.Promoted)
	}
	limit, pageArgs := f.Page.clause()

	rows, err := r.q.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM correlated_events"+w.String()+" ORDER BY risk_score DESC, id DESC"+limit,
		append(w.args, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlated events: %w", err)
	}
	defer rows.Close()

	var out []*models.CorrelatedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correlated event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkPromoted flips the promoted flag. It fails with ErrAlreadyPromoted when
// the flag was already set.
func (r *EventRepository) MarkPromoted(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE correlated_events SET is_promoted_to_incident = ? WHERE id = ? AND is_promoted_to_incident = ?",
		true, id, false)
	if err != nil {
		return fmt.Errorf("failed to mark event %d promoted: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark event %d promoted: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrAlreadyPromoted)
	}
	return nil
}
