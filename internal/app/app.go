// Package app wires storage and the pipeline services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/config"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/correlation"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/detection"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/incident"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/ingestion"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/metrics"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// App bundles the services behind the API and the CLI
type App struct {
	Store       *storage.Storage
	Metrics     *metrics.Metrics
	Ledger      *audit.Ledger
	Configs     *config.Service
	Ingestor    *ingestion.Ingestor
	Processor   *ingestion.Processor
	Detection   *detection.Engine
	Correlation *correlation.Engine
	Incidents   *incident.Service
}

// Open connects to the configured database, applies pending migrations and
// builds the services. reg may be nil to disable metrics.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	store, err := storage.NewStorage(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	if err := storage.Migrate(ctx, store, logger); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	return New(store, cfg.DetectionSeed(), cfg.Detection.BatchSize, logger, m), nil
}

// New builds the services on an open store
func New(store *storage.Storage, seed models.DetectionConfig, batchSize int, logger *zap.Logger, m *metrics.Metrics) *App {
	ledger := audit.NewLedger(store, logger.Named("audit"), audit.WithMetrics(m))
	configs := config.NewService(store, seed, ledger, logger.Named("config"))
	engine := detection.NewEngine(store, configs.Repository(), ledger, logger.Named("detection"),
		detection.WithBatchSize(batchSize), detection.WithMetrics(m))

	return &App{
		Store:       store,
		Metrics:     m,
		Ledger:      ledger,
		Configs:     configs,
		Ingestor:    ingestion.NewIngestor(store, ledger, logger.Named("ingestion"), ingestion.WithMetrics(m)),
		Processor:   ingestion.NewProcessor(engine, logger.Named("processor")),
		Detection:   engine,
		Correlation: correlation.NewEngine(store, configs.Repository(), ledger, logger.Named("correlation"), correlation.WithMetrics(m)),
		Incidents:   incident.NewService(store, ledger, logger.Named("incident"), incident.WithMetrics(m)),
	}
}

// Close releases the database connection
func (a *App) Close() error {
	return a.Store.Close()
}
