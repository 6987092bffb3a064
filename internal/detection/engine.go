package detection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/metrics"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// DefaultBatchSize caps how many evidence records one run classifies
const DefaultBatchSize = 500

// finishTimeout bounds the bookkeeping of a run whose context ended
const finishTimeout = 5 * time.Second

// Engine classifies pending evidence in bounded batches
type Engine struct {
	store     *storage.Storage
	configs   *storage.ConfigRepository
	ledger    *audit.Ledger
	rules     []Rule
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithRules replaces the default rule set
func WithRules(rules []Rule) EngineOption {
	return func(e *Engine) { e.rules = rules }
}

// WithBatchSize overrides the per-run cap
func WithBatchSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMetrics records classification counts
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the detection timestamp source
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store *storage.Storage, configs *storage.ConfigRepository, ledger *audit.Ledger, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:     store,
		configs:   configs,
		ledger:    ledger,
		rules:     DefaultRules(),
		batchSize: DefaultBatchSize,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordFailure describes one evidence record that could not be classified
type RecordFailure struct {
	EvidenceID int64  `json:"evidence_id"`
	Error      string `json:"error"`
}

// BatchResult summarizes one classification run. LastID is the highest
// evidence id the run attempted, zero when it found nothing to do.
type BatchResult struct {
	Analyzed  int             `json:"analyzed"`
	Skipped   int             `json:"skipped"`
	Remaining int             `json:"remaining"`
	LastID    int64           `json:"last_id,omitempty"`
	Failures  []RecordFailure `json:"failures,omitempty"`
}

// Attempted reports how many records the run looked at
func (r *BatchResult) Attempted() int {
	return r.Analyzed + r.Skipped + len(r.Failures)
}

// RunBatch classifies up to the batch size of unprocessed evidence, oldest first
func (e *Engine) RunBatch(ctx context.Context, attr models.Attribution) (*BatchResult, error) {
	return e.RunBatchAfter(ctx, attr, 0)
}

// RunBatchAfter classifies up to the batch size of unprocessed evidence with
// ids greater than afterID. Each record is claimed and classified in its own
// transaction so concurrent runs never classify the same record twice.
// Per-record failures are collected and do not abort the batch.
//
// When ctx ends mid-batch the run stops, still records the analysis_run entry
// for what was committed and returns the partial result with ctx's error.
func (e *Engine) RunBatchAfter(ctx context.Context, attr models.Attribution, afterID int64) (*BatchResult, error) {
	start := time.Now()
	defer e.metrics.ObserveRun("analysis", start)

	cfg, err := e.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection config: %w", err)
	}

	ids, err := storage.NewEvidenceRepository(e.store).ListUnprocessedIDs(ctx, afterID, e.batchSize)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	var interrupted error
	for _, id := range ids {
		if interrupted = ctx.Err(); interrupted != nil {
			break
		}

		classified, err := e.classifyOne(ctx, id, *cfg)
		if err != nil && ctx.Err() != nil {
			// the record rolled back with the cancelled transaction and stays pending
			interrupted = ctx.Err()
			break
		}
		result.LastID = id
		switch {
		case err != nil:
			e.metrics.ObserveClassificationFailure()
			e.logger.Error("failed to classify evidence", zap.Int64("evidence_id", id), zap.Error(err))
			result.Failures = append(result.Failures, RecordFailure{EvidenceID: id, Error: err.Error()})
		case classified == nil:
			result.Skipped++
		default:
			result.Analyzed++
			e.metrics.ObserveClassification(string(classified.AttackType), string(classified.Severity))
		}
	}

	finishCtx := ctx
	if interrupted != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()
	}

	if result.Analyzed > 0 {
		_, err := e.ledger.Append(finishCtx, audit.Record{
			Attribution: attr,
			Action:      models.ActionAnalysisRun,
			Description: fmt.Sprintf("Analyzed %d raw alerts", result.Analyzed),
		})
		if err != nil {
			return result, fmt.Errorf("failed to record analysis run: %w", err)
		}
	}

	remaining, err := storage.NewEvidenceRepository(e.store).CountUnprocessed(finishCtx)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining

	if interrupted != nil {
		e.logger.Warn("analysis run interrupted",
			zap.Int("analyzed", result.Analyzed),
			zap.Int("remaining", result.Remaining),
			zap.Error(interrupted),
		)
		return result, interrupted
	}

	e.logger.Info("analysis run finished",
		zap.Int("analyzed", result.Analyzed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)),
		zap.Int("remaining", result.Remaining),
	)
	return result, nil
}

// classifyOne returns nil without error when another run already claimed the record
func (e *Engine) classifyOne(ctx context.Context, id int64, cfg models.DetectionConfig) (*models.Classification, error) {
	var out *models.Classification
	err := e.store.WithTx(ctx, func(tx *storage.Tx) error {
		evidence := storage.NewEvidenceRepository(tx)
		ev, err := evidence.Get(ctx, id)
		if err != nil {
			return err
		}

		claimed, err := evidence.Claim(ctx, id)
		if err != nil || !claimed {
			return err
		}

		v := ClassifyWith(e.rules, ev, cfg)
		c := &models.Classification{
			EvidenceID:   id,
			AttackType:   v.AttackType,
			Severity:     v.Severity,
			IsSuspicious: v.IsSuspicious,
			RuleName:     v.RuleName,
			Notes:        v.Notes,
			DetectedAt:   e.now(),
			Source:       ev.Source,
		}
		if err := storage.NewClassificationRepository(tx).Upsert(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
