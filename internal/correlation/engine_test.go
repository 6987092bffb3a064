package correlation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/correlation"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/testutil"
)

func setup(t *testing.T, cfg models.DetectionConfig, now time.Time) (*correlation.Engine, *storage.Storage) {
	t.Helper()
	store := testutil.NewStore(t)
	logger := zaptest.NewLogger(t)
	configs := storage.NewConfigRepository(store, cfg)
	engine := correlation.NewEngine(store, configs, audit.NewLedger(store, logger), logger,
		correlation.WithClock(testutil.FixedClock(now)))
	return engine, store
}

func TestRunCreatesEventOnceAndAudits(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	cfg := models.DefaultDetectionConfig()
	cfg.ThresholdMedium = 3
	engine, store := setup(t, cfg, now)

	for _, ago := range []time.Duration{9, 6, 2} {
		testutil.SeedClassification(t, store, "nginx", models.AttackWebScanning, models.SeverityMedium, now.Add(-ago*time.Minute))
	}
	// outside the window and not suspicious: both ignored
	testutil.SeedClassification(t, store, "nginx", models.AttackWebScanning, models.SeverityMedium, now.Add(-time.Hour))
	testutil.SeedClassification(t, store, "app", models.AttackUnknown, models.SeverityLow, now)

	res, err := engine.Run(ctx, models.Attribution{Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Groups)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 3, res.Events[0].TotalAlerts)
	assert.InDelta(t, 4.0, res.Events[0].RiskScore, 1e-9)

	stored, err := storage.NewEventRepository(store).Get(ctx, res.Events[0].ID)
	require.NoError(t, err)
	assert.Len(t, stored.ClassificationIDs, 3)
	assert.False(t, stored.IsPromotedToIncident)

	again, err := engine.Run(ctx, models.Attribution{Actor: "alice"})
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 1, again.Existing)

	events, err := storage.NewEventRepository(store).List(ctx, storage.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	entries, err := storage.NewAuditRepository(store).List(ctx, storage.AuditFilter{Action: models.ActionCorrelationRun})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunBelowThresholdCreatesNothing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	cfg := models.DefaultDetectionConfig()
	cfg.ThresholdMedium = 4
	engine, store := setup(t, cfg, now)

	for _, ago := range []time.Duration{9, 6, 2} {
		testutil.SeedClassification(t, store, "nginx", models.AttackWebScanning, models.SeverityMedium, now.Add(-ago*time.Minute))
	}

	res, err := engine.Run(ctx, models.Attribution{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Groups)
	assert.Zero(t, res.Qualified)
	assert.Zero(t, res.Created)

	n, err := storage.NewAuditRepository(store).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunGrowingGroupCreatesNewEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	engine, store := setup(t, models.DefaultDetectionConfig(), now)

	testutil.SeedClassification(t, store, "sudo-host", models.AttackUnauthorizedAccess, models.SeverityCritical, now.Add(-5*time.Minute))
	res, err := engine.Run(ctx, models.Attribution{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	testutil.SeedClassification(t, store, "sudo-host", models.AttackUnauthorizedAccess, models.SeverityCritical, now.Add(-time.Minute))
	res, err = engine.Run(ctx, models.Attribution{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.InDelta(t, 6.0, res.Events[0].RiskScore, 1e-9)
}
