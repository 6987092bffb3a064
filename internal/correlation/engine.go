package correlation

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

// Engine runs correlation passes over stored classifications
type Engine struct {
	store   *storage.Storage
	configs *storage.ConfigRepository
	ledger  *audit.Ledger
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the reference time for the trailing window
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records created events
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store *storage.Storage, configs *storage.ConfigRepository, ledger *audit.Ledger, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:   store,
		configs: configs,
		ledger:  ledger,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GroupFailure describes a qualifying group that could not be stored
type GroupFailure struct {
	AttackType models.AttackType `json:"attack_type"`
	Source     string            `json:"source"`
	Error      string            `json:"error"`
}

// RunResult summarizes one correlation pass
type RunResult struct {
	Groups    int                       `json:"groups"`
	Qualified int                       `json:"qualified"`
	Created   int                       `json:"created"`
	Existing  int                       `json:"existing"`
	Events    []*models.CorrelatedEvent `json:"events,omitempty"`
	Failures  []GroupFailure            `json:"failures,omitempty"`
}

// Run correlates every suspicious classification in the trailing window and
// stores the groups that pass their threshold. Re-running over the same data
// creates nothing new.
func (e *Engine) Run(ctx context.Context, attr models.Attribution) (*RunResult, error) {
	start := time.Now()
	defer e.metrics.ObserveRun("correlation", start)

	cfg, err := e.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection config: %w", err)
	}

	suspicious, err := storage.NewClassificationRepository(e.store).ListSuspicious(ctx)
	if err != nil {
		return nil, err
	}

	groups := Correlate(suspicious, cfg.WindowMinutes, e.now())
	result := &RunResult{Groups: len(groups)}

	for _, g := range groups {
		if !g.MeetsThreshold(*cfg) {
			continue
		}
		result.Qualified++

		ev := g.Event()
		var created bool
		err := e.store.WithTx(ctx, func(tx *storage.Tx) error {
			var txErr error
			created, txErr = storage.NewEventRepository(tx).CreateIfAbsent(ctx, ev)
			return txErr
		})
		if err != nil {
			e.logger.Error("failed to store correlated event",
				zap.String("attack_type", string(g.AttackType)),
				zap.String("source", g.Source),
				zap.Error(err),
			)
			result.Failures = append(result.Failures, GroupFailure{
				AttackType: g.AttackType,
				Source:     g.Source,
				Error:      err.Error(),
			})
			continue
		}

		if created {
			result.Created++
			result.Events = append(result.Events, ev)
			e.metrics.ObserveEventCreated(string(ev.AttackType))
		} else {
			result.Existing++
		}
	}

	if result.Created > 0 {
		_, err := e.ledger.Append(ctx, audit.Record{
			Attribution: attr,
			Action:      models.ActionCorrelationRun,
			Description: fmt.Sprintf("Correlation run created %d correlated events", result.Created),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record correlation run: %w", err)
		}
	}

	e.logger.Info("correlation run finished",
		zap.Int("groups", result.Groups),
		zap.Int("qualified", result.Qualified),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
	)
	return result, nil
}
