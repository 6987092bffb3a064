// Package ingestion stores raw log lines as immutable evidence.
package ingestion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/metrics"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// Ingestor handles evidence ingestion from uploads and manual entry
type Ingestor struct {
	store   *storage.Storage
	ledger  *audit.Ledger
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Ingestor
type Option func(*Ingestor)

// WithMetrics counts stored evidence per source
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

// Result reports what an ingest call stored
type Result struct {
	Source   string  `json:"source"`
	Ingested int     `json:"ingested"`
	Skipped  int     `json:"skipped"`
	IDs      []int64 `json:"ids"`
}

// NewIngestor creates a new evidence ingestor
func NewIngestor(store *storage.Storage, ledger *audit.Ledger, logger *zap.Logger, opts ...Option) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Ingestor{store: store, ledger: ledger, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest stores already split log lines from one source. Blank lines are
// skipped; every other line is kept byte for byte. The evidence rows and the
// log_upload audit entry commit together.
func (i *Ingestor) Ingest(ctx context.Context, source string, lines []string, attr models.Attribution) (*Result, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: log source is required", storage.ErrValidation)
	}

	result := &Result{Source: source}
	err := i.store.WithTx(ctx, func(tx *storage.Tx) error {
		evidence := storage.NewEvidenceRepository(tx)
		ingestedAt := storage.Now()
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				result.Skipped++
				continue
			}
			ev := &models.RawEvidence{
				Source:     source,
				Message:    line,
				IngestedAt: ingestedAt,
				UploadedBy: attr.Actor,
			}
			if err := evidence.Create(ctx, ev); err != nil {
				return err
			}
			result.IDs = append(result.IDs, ev.ID)
		}
		result.Ingested = len(result.IDs)

		_, err := i.ledger.AppendTx(ctx, tx, audit.Record{
			Attribution: attr,
			Action:      models.ActionLogUpload,
			Description: fmt.Sprintf("Uploaded %d lines from %s", result.Ingested, source),
			Related:     models.LogSourceRef(source),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest logs from %s: %w", source, err)
	}

	i.metrics.ObserveIngest(source, result.Ingested)
	i.logger.Info("evidence ingested",
		zap.String("source", source),
		zap.Int("ingested", result.Ingested),
		zap.Int("skipped", result.Skipped),
		zap.String("actor", attr.Actor),
	)
	return result, nil
}

// IngestManual stores a single analyst-submitted line
func (i *Ingestor) IngestManual(ctx context.Context, source, message string, attr models.Attribution) (*models.RawEvidence, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: log source is required", storage.ErrValidation)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", storage.ErrValidation)
	}

	ev := &models.RawEvidence{
		Source:     source,
		Message:    message,
		UploadedBy: attr.Actor,
	}
	err := i.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := storage.NewEvidenceRepository(tx).Create(ctx, ev); err != nil {
			return err
		}
		_, err := i.ledger.AppendTx(ctx, tx, audit.Record{
			Attribution: attr,
			Action:      models.ActionManualLogEntry,
			Description: "Manual log entry created",
			Related:     models.LogSourceRef(source),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store manual entry: %w", err)
	}

	i.metrics.ObserveIngest(source, 1)
	i.logger.Info("manual evidence stored", zap.Int64("evidence_id", ev.ID), zap.String("source", source))
	return ev, nil
}
