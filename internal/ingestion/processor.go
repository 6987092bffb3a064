package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/detection"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// BatchRunner runs one bounded classification pass over pending records
// with ids greater than afterID
type BatchRunner interface {
	RunBatchAfter(ctx context.Context, attr models.Attribution, afterID int64) (*detection.BatchResult, error)
}

// Processor drains the unprocessed backlog through the classifier
type Processor struct {
	runner BatchRunner
	logger *zap.Logger
}

// NewProcessor creates a new backlog processor
func NewProcessor(runner BatchRunner, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{runner: runner, logger: logger}
}

// Drain runs batches until nothing is left or the cursor passes the last
// pending record. Each batch resumes after the highest id the previous one
// attempted, so records that keep failing do not hide the ones behind them.
// Each batch writes its own analysis_run audit entry.
func (p *Processor) Drain(ctx context.Context, attr models.Attribution) (*detection.BatchResult, error) {
	total := &detection.BatchResult{}
	var cursor int64
	for batches := 1; ; batches++ {
		res, err := p.runner.RunBatchAfter(ctx, attr, cursor)
		if res != nil {
			total.Analyzed += res.Analyzed
			total.Skipped += res.Skipped
			total.Failures = append(total.Failures, res.Failures...)
			total.Remaining = res.Remaining
			if res.LastID > 0 {
				total.LastID = res.LastID
			}
		}
		if err != nil {
			return total, fmt.Errorf("batch %d failed: %w", batches, err)
		}

		p.logger.Debug("classification batch finished",
			zap.Int("batch", batches),
			zap.Int("analyzed", res.Analyzed),
			zap.Int("failed", len(res.Failures)),
			zap.Int("remaining", res.Remaining),
		)
		if res.Remaining == 0 || res.Attempted() == 0 {
			return total, nil
		}
		cursor = res.LastID
	}
}
