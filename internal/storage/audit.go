package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// AuditFilter narrows audit log listings
type AuditFilter struct {
	Action models.AuditAction
	Actor  string
	Page
}

// AuditRepository implements audit ledger storage. Rows are insert-only:
// the repository refuses changes and the schema rejects them as well.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(q Querier) *AuditRepository {
	return &AuditRepository{q: q}
}

const auditColumns = `sequence_number, timestamp, actor, action, description, ip_address, related_type,
	related_id, prev_hash, content_hash`

func scanAudit(row interface{ Scan(...any) error }) (*models.AuditLogEntry, error) {
	var e models.AuditLogEntry
	var actor sql.NullString
	err := row.Scan(
		&e.SequenceNumber,
		&e.Timestamp,
		&actor,
		&e.Action,
		&e.Description,
		&e.IPAddress,
		&e.Related.Kind,
		&e.Related.ID,
		&e.PrevHash,
		&e.ContentHash,
	)
	if err != nil {
		return nil, err
	}
	e.Actor = actor.String
	return &e, nil
}

// Last returns the entry with the highest sequence number, or nil when the
// ledger is empty
func (r *AuditRepository) Last(ctx context.Context) (*models.AuditLogEntry, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log ORDER BY sequence_number DESC LIMIT 1")
	e, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger head: %w", err)
	}
	return e, nil
}

// Insert writes a fully formed entry. A taken sequence number maps to ErrAlreadyExists.
func (r *AuditRepository) Insert(ctx context.Context, e *models.AuditLogEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (sequence_number, timestamp, actor, action, description, ip_address,
			related_type, related_id, prev_hash, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.SequenceNumber,
		dbTime(e.Timestamp),
		nullString(e.Actor),
		string(e.Action),
		e.Description,
		e.IPAddress,
		string(e.Related.Kind),
		e.Related.ID,
		e.PrevHash,
		e.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry %d: %w", e.SequenceNumber, mapError(err))
	}
	return nil
}

// Get retrieves one entry by sequence number
func (r *AuditRepository) Get(ctx context.Context, seq int64) (*models.AuditLogEntry, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+auditColumns+" FROM audit_log WHERE sequence_number = ?", seq)
	e, err := scanAudit(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("audit entry %d", seq))
	}
	return e, nil
}

// List retrieves entries newest first
func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]*models.AuditLogEntry, error) {
	var w where
	if f.Action != "" {
		w.add("action = ?", string(f.Action))
	}
	if f.Actor != "" {
		w.add("actor = ?", f.Actor)
	}
	limit, pageArgs := f.Page.clause()

	rows, err := r.q.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log"+w.String()+" ORDER BY sequence_number DESC"+limit,
		append(w.args, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditLogEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Range returns up to limit entries with sequence numbers after afterSeq, in order
func (r *AuditRepository) Range(ctx context.Context, afterSeq int64, limit int) ([]*models.AuditLogEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log WHERE sequence_number > ? ORDER BY sequence_number LIMIT ?",
		afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditLogEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of ledger entries
func (r *AuditRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}

// Update exists so callers get a typed refusal. Any difference from the
// stored entry fails with ErrImmutableRecord; an identical entry is a no-op.
func (r *AuditRepository) Update(ctx context.Context, e *models.AuditLogEntry) error {
	stored, err := r.Get(ctx, e.SequenceNumber)
	if err != nil {
		return err
	}
	if stored.Actor != e.Actor ||
		stored.Action != e.Action ||
		stored.Description != e.Description ||
		stored.IPAddress != e.IPAddress ||
		stored.Related != e.Related ||
		stored.PrevHash != e.PrevHash ||
		stored.ContentHash != e.ContentHash ||
		!stored.Timestamp.Equal(e.Timestamp) {
		return fmt.Errorf("audit entry %d: %w", e.SequenceNumber, ErrImmutableRecord)
	}
	return nil
}

// Delete always fails: audit entries cannot be removed
func (r *AuditRepository) Delete(_ context.Context, seq int64) error {
	return fmt.Errorf("audit entry %d: %w", seq, ErrForbidden)
}
