package config

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// Service reads and updates the stored detection configuration
type Service struct {
	store    *storage.Storage
	seed     models.DetectionConfig
	configs  *storage.ConfigRepository
	ledger   *audit.Ledger
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a detection config service. seed is stored the first
// time the configuration is read.
func NewService(store *storage.Storage, seed models.DetectionConfig, ledger *audit.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		seed:     seed,
		configs:  storage.NewConfigRepository(store, seed),
		ledger:   ledger,
		validate: validator.New(),
		logger:   logger,
	}
}

// Repository returns the repository the pipeline engines read from
func (s *Service) Repository() *storage.ConfigRepository {
	return s.configs
}

// Get returns the current configuration
func (s *Service) Get(ctx context.Context) (*models.DetectionConfig, error) {
	return s.configs.Get(ctx)
}

// Update validates and stores cfg. The change and its audit entry commit together.
func (s *Service) Update(ctx context.Context, cfg models.DetectionConfig, attr models.Attribution) (*models.DetectionConfig, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrValidation, err)
	}

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := storage.NewConfigRepository(tx, s.seed).Save(ctx, &cfg); err != nil {
			return err
		}
		_, err := s.ledger.AppendTx(ctx, tx, audit.Record{
			Attribution: attr,
			Action:      models.ActionAdminConfigUpdate,
			Description: "Updated SOC configuration",
			Related:     models.ConfigRef(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("detection config updated",
		zap.Int("window_minutes", cfg.WindowMinutes),
		zap.Int("threshold_low", cfg.ThresholdLow),
		zap.Int("threshold_medium", cfg.ThresholdMedium),
		zap.Int("threshold_high", cfg.ThresholdHigh),
		zap.Int("threshold_critical", cfg.ThresholdCritical),
		zap.String("actor", attr.Actor),
	)
	return &cfg, nil
}
