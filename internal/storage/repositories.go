package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Page bounds a list query
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (p Page) clause() (string, []any) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return " LIMIT ? OFFSET ?", []any{limit, offset}
}

// where accumulates AND-ed predicates for list queries
type where struct {
	parts []string
	args  []any
}

func (w *where) add(pred string, args ...any) {
	w.parts = append(w.parts, pred)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// EvidenceFilter narrows evidence listings. Source matches as a
// case-insensitive substring.
type EvidenceFilter struct {
	Source string
	Status models.ProcessingStatus
	Page
}

// EvidenceRepository implements raw evidence storage operations
type EvidenceRepository struct {
	q Querier
}

// NewEvidenceRepository creates a new evidence repository
func NewEvidenceRepository(q Querier) *EvidenceRepository {
	return &EvidenceRepository{q: q}
}

// Create stores a new evidence record. It is always stored unprocessed.
func (r *EvidenceRepository) Create(ctx context.Context, ev *models.RawEvidence) error {
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = Now()
	}
	ev.IngestedAt = dbTime(ev.IngestedAt)
	ev.ProcessingStatus = models.StatusUnprocessed

	query := `
		INSERT INTO raw_evidence (source, message, ingested_at, uploaded_by, processing_status)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`
	err := r.q.QueryRowContext(ctx, query,
		ev.Source,
		ev.Message,
		ev.IngestedAt,
		ev.UploadedBy,
		string(ev.ProcessingStatus),
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to store evidence: %w", mapError(err))
	}
	return nil
}

const evidenceColumns = `id, source, message, ingested_at, uploaded_by, processing_status`

func scanEvidence(row interface{ Scan(...any) error }) (*models.RawEvidence, error) {
	var ev models.RawEvidence
	err := row.Scan(
		&ev.ID,
		&ev.Source,
		&ev.Message,
		&ev.IngestedAt,
		&ev.UploadedBy,
		&ev.ProcessingStatus,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Get retrieves an evidence record by id
func (r *EvidenceRepository) Get(ctx context.Context, id int64) (*models.RawEvidence, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+evidenceColumns+" FROM raw_evidence WHERE id = ?", id)
	ev, err := scanEvidence(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("evidence %d", id))
	}
	return ev, nil
}

// List retrieves evidence newest first
func (r *EvidenceRepository) List(ctx context.Context, f EvidenceFilter) ([]*models.RawEvidence, error) {
	var w where
	if f.Source != "" {
		w.add("LOWER(source) LIKE ?", "%"+strings.ToLower(f.Source)+"%")
	}
	if f.Status != "" {
		w.add("processing_status = ?", string(f.Status))
	}
	limit, pageArgs := f.Page.clause()

	rows, err := r.q.QueryContext(ctx,
		"SELECT "+evidenceColumns+" FROM raw_evidence"+w.String()+" ORDER BY id DESC"+limit,
		append(w.args, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var out []*models.RawEvidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListUnprocessedIDs returns up to limit unprocessed evidence ids greater
// than afterID, oldest first. Pass 0 to start from the beginning.
func (r *EvidenceRepository) ListUnprocessedIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id FROM raw_evidence WHERE processing_status = ? AND id > ? ORDER BY id LIMIT ?",
		string(models.StatusUnprocessed), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed evidence: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan evidence id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUnprocessed returns how many evidence records await classification
func (r *EvidenceRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM raw_evidence WHERE processing_status = ?", string(models.StatusUnprocessed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed evidence: %w", err)
	}
	return n, nil
}

// Claim moves an unprocessed record to processed. It reports false when
// another caller already claimed it.
func (r *EvidenceRepository) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE raw_evidence SET processing_status = ? WHERE id = ? AND processing_status = ?",
		string(models.StatusProcessed), id, string(models.StatusUnprocessed))
	if err != nil {
		return false, fmt.Errorf("failed to claim evidence %d: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim evidence %d: %w", id, err)
	}
	return n == 1, nil
}

// Update persists a status change. Any change to the evidentiary fields, or
// moving a processed record back to unprocessed, fails with ErrImmutableRecord.
func (r *EvidenceRepository) Update(ctx context.Context, ev *models.RawEvidence) error {
	current, err := r.Get(ctx, ev.ID)
	if err != nil {
		return err
	}
	if !ev.ProcessingStatus.Valid() {
		return fmt.Errorf("%w: unknown processing status %q", ErrValidation, ev.ProcessingStatus)
	}
	if !current.SameContent(ev) {
		return fmt.Errorf("evidence %d: %w", ev.ID, ErrImmutableRecord)
	}
	if current.ProcessingStatus == models.StatusProcessed && ev.ProcessingStatus == models.StatusUnprocessed {
		return fmt.Errorf("evidence %d cannot return to unprocessed: %w", ev.ID, ErrImmutableRecord)
	}

	_, err = r.q.ExecContext(ctx,
		"UPDATE raw_evidence SET processing_status = ? WHERE id = ?", string(ev.ProcessingStatus), ev.ID)
	if err != nil {
		return fmt.Errorf("failed to update evidence %d: %w", ev.ID, mapError(err))
	}
	return nil
}

// ClassificationFilter narrows classification listings
type ClassificationFilter struct {
	AttackType models.AttackType
	Severity   models.Severity
	Suspicious *bool
	Page
}

// ClassificationRepository implements classification storage operations
type ClassificationRepository struct {
	q Querier
}

// NewClassificationRepository creates a new classification repository
func NewClassificationRepository(q Querier) *ClassificationRepository {
	return &ClassificationRepository{q: q}
}

// Upsert stores the verdict for an evidence record, replacing any previous one.
// detected_at keeps its first value.
func (r *ClassificationRepository) Upsert(ctx context.Context, c *models.Classification) error {
	if c.DetectedAt.IsZero() {
		c.DetectedAt = Now()
	}
	c.DetectedAt = dbTime(c.DetectedAt)

	query := `
		INSERT INTO classifications (evidence_id, attack_type, severity, is_suspicious, rule_name, notes, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (evidence_id) DO UPDATE SET
			attack_type = excluded.attack_type,
			severity = excluded.severity,
			is_suspicious = excluded.is_suspicious,
			rule_name = excluded.rule_name,
			notes = excluded.notes
		RETURNING id
	`
	err := r.q.QueryRowContext(ctx, query,
		c.EvidenceID,
		string(c.AttackType),
		string(c.Severity),
		c.IsSuspicious,
		c.RuleName,
		c.Notes,
		c.DetectedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to store classification for evidence %d: %w", c.EvidenceID, mapError(err))
	}
	return nil
}

const classificationColumns = `c.id, c.evidence_id, c.attack_type, c.severity, c.is_suspicious, c.rule_name, c.notes, c.detected_at, e.source`

const classificationFrom = ` FROM classifications c JOIN raw_evidence e ON e.id = c.evidence_id`

func scanClassification(row interface{ Scan(...any) error }) (*models.Classification, error) {
	var c models.Classification
	err := row.Scan(
		&c.ID,
		&c.EvidenceID,
		&c.AttackType,
		&c.Severity,
		&c.IsSuspicious,
		&c.RuleName,
		&c.Notes,
		&c.DetectedAt,
		&c.Source,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByEvidence retrieves the classification of one evidence record
func (r *ClassificationRepository) GetByEvidence(ctx context.Context, evidenceID int64) (*models.Classification, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+classificationColumns+classificationFrom+" WHERE c.evidence_id = ?", evidenceID)
	c, err := scanClassification(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("classification for evidence %d", evidenceID))
	}
	return c, nil
}

// ListSuspicious returns every suspicious classification with its source,
// ordered by detection time
func (r *ClassificationRepository) ListSuspicious(ctx context.Context) ([]models.Classification, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+classificationColumns+classificationFrom+" WHERE c.is_suspicious = ? ORDER BY c.detected_at, c.id", true)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspicious classifications: %w", err)
	}
	defer rows.Close()

	var out []models.Classification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// List retrieves classifications newest first
func (r *ClassificationRepository) List(ctx context.Context, f ClassificationFilter) ([]*models.Classification, error) {
	var w where
	if f.AttackType != "" {
		w.add("c.attack_type = ?", string(f.AttackType))
	}
	if f.Severity != "" {
		w.add("c.severity = ?", string(f.Severity))
	}
	if f.Suspicious != nil {
		w.add("c.is_suspicious = ?", *f.Suspicious)
	}
	limit, pageArgs := f.Page.clause()

	rows, err := r.q.QueryContext(ctx,
		"SELECT "+classificationColumns+classificationFrom+w.String()+" ORDER BY c.id DESC"+limit,
		append(w.args, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Classification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConfigRepository stores the detection configuration singleton
type ConfigRepository struct {
	q    Querier
	seed models.DetectionConfig
}

// NewConfigRepository creates a config repository. seed is written the first
// time the configuration is read.
func NewConfigRepository(q Querier, seed models.DetectionConfig) *ConfigRepository {
	return &ConfigRepository{q: q, seed: seed}
}

// Get returns the configuration, creating it from the seed if absent
func (r *ConfigRepository) Get(ctx context.Context) (*models.DetectionConfig, error) {
	cfg, err := r.load(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	seed := r.seed
	seed.UpdatedAt = Now()
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO detection_config (id, window_minutes, threshold_low, threshold_medium, threshold_high,
			threshold_critical, enable_brute_force, enable_scanning, enable_unauthorized_access, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, configArgs(&seed)...)
	if err != nil {
		return nil, fmt.Errorf("failed to seed detection config: %w", mapError(err))
	}
	return r.load(ctx)
}

// Save replaces the configuration
func (r *ConfigRepository) Save(ctx context.Context, cfg *models.DetectionConfig) error {
	cfg.UpdatedAt = Now()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO detection_config (id, window_minutes, threshold_low, threshold_medium, threshold_high,
			threshold_critical, enable_brute_force, enable_scanning, enable_unauthorized_access, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			window_minutes = excluded.window_minutes,
			threshold_low = excluded.threshold_low,
			threshold_medium = excluded.threshold_medium,
			threshold_high = excluded.threshold_high,
			threshold_critical = excluded.threshold_critical,
			enable_brute_force = excluded.enable_brute_force,
			enable_scanning = excluded.enable_scanning,
			enable_unauthorized_access = excluded.enable_unauthorized_access,
			updated_at = excluded.updated_at
	`, configArgs(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to save detection config: %w", mapError(err))
	}
	return nil
}

func configArgs(cfg *models.DetectionConfig) []any {
	return []any{
		cfg.WindowMinutes,
		cfg.ThresholdLow,
		cfg.ThresholdMedium,
		cfg.ThresholdHigh,
		cfg.ThresholdCritical,
		cfg.EnableBruteForce,
		cfg.EnableScanning,
		cfg.EnableUnauthorizedAccess,
		cfg.UpdatedAt,
	}
}

func (r *ConfigRepository) load(ctx context.Context) (*models.DetectionConfig, error) {
	var cfg models.DetectionConfig
	err := r.q.QueryRowContext(ctx, `
		SELECT window_minutes, threshold_low, threshold_medium, threshold_high, threshold_critical,
			enable_brute_force, enable_scanning, enable_unauthorized_access, updated_at
		FROM detection_config WHERE id = 1
	`).Scan(
		&cfg.WindowMinutes,
		&cfg.ThresholdLow,
		&cfg.ThresholdMedium,
		&cfg.ThresholdHigh,
		&cfg.ThresholdCritical,
		&cfg.EnableBruteForce,
		&cfg.EnableScanning,
		&cfg.EnableUnauthorizedAccess,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "detection config")
	}
	return &cfg, nil
}
