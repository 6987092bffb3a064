package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

var now = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func cls(id int64, attack models.AttackType, source string, sev models.Severity, ago time.Duration) models.Classification {
	return models.Classification{
		ID:           id,
		AttackType:   attack,
		Source:       source,
		Severity:     sev,
		IsSuspicious: true,
		DetectedAt:   now.Add(-ago),
	}
}

func TestCorrelateScoresGroup(t *testing.T) {
	input := []models.Classification{
		cls(1, models.AttackWebScanning, "nginx", models.SeverityMedium, 10*time.Minute),
		cls(2, models.AttackWebScanning, "nginx", models.SeverityMedium, 5*time.Minute),
		cls(3, models.AttackWebScanning, "nginx", models.SeverityMedium, time.Minute),
	}

	groups := Correlate(input, 15, now)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, 3, g.TotalAlerts)
	assert.InDelta(t, 4.0, g.RiskScore, 1e-9)
	assert.Equal(t, now.Add(-10*time.Minute), g.StartTime)
	assert.Equal(t, now.Add(-time.Minute), g.EndTime)
	assert.Equal(t, []int64{1, 2, 3}, g.Members)

	cfg := models.DefaultDetectionConfig()
	cfg.ThresholdMedium = 3
	assert.True(t, g.MeetsThreshold(cfg))
	cfg.ThresholdMedium = 4
	assert.False(t, g.MeetsThreshold(cfg))
}

func TestCorrelateGroupsByAttackAndSource(t *testing.T) {
	input := []models.Classification{
		cls(1, models.AttackBruteForce, "sshd", models.SeverityHigh, time.Minute),
		cls(2, models.AttackBruteForce, "auth", models.SeverityHigh, time.Minute),
		cls(3, models.AttackAccountEnum, "sshd", models.SeverityMedium, time.Minute),
		cls(4, models.AttackBruteForce, "sshd", models.SeverityHigh, 2*time.Minute),
	}

	groups := Correlate(input, 15, now)
	require.Len(t, groups, 3)
	assert.Equal(t, models.AttackAccountEnum, groups[0].AttackType)
	assert.Equal(t, "auth", groups[1].Source)
	assert.Equal(t, "sshd", groups[2].Source)
	assert.Equal(t, 2, groups[2].TotalAlerts)
	assert.Equal(t, []int64{4, 1}, groups[2].Members)
}

func TestCorrelateWindowBoundaryIsInclusive(t *testing.T) {
	input := []models.Classification{
		cls(1, models.AttackBruteForce, "sshd", models.SeverityHigh, 15*time.Minute),
		cls(2, models.AttackBruteForce, "sshd", models.SeverityHigh, 15*time.Minute+time.Nanosecond),
	}

	groups := Correlate(input, 15, now)
	require.Len(t, groups, 1)
	assert.Equal(t, []int64{1}, groups[0].Members)

	assert.Empty(t, Correlate(input, 1, now))
}

func TestThresholdUsesHighestSeverity(t *testing.T) {
	input := []models.Classification{
		cls(1, models.AttackWebScanning, "nginx", models.SeverityLow, 3*time.Minute),
		cls(2, models.AttackWebScanning, "nginx", models.SeverityMedium, 2*time.Minute),
		cls(3, models.AttackWebScanning, "nginx", models.SeverityLow, time.Minute),
	}

	groups := Correlate(input, 15, now)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, models.SeverityMedium, g.HighestSeverity)
	assert.InDelta(t, 4.0, g.RiskScore, 1e-9)

	cfg := models.DefaultDetectionConfig()
	cfg.ThresholdLow = 10
	cfg.ThresholdMedium = 3
	assert.True(t, g.MeetsThreshold(cfg))
}

func TestRiskScore(t *testing.T) {
	assert.InDelta(t, 4.0, RiskScore(models.SeverityCritical, 1), 1e-9)
	assert.InDelta(t, 4.5, RiskScore(models.SeverityHigh, 2), 1e-9)
	assert.InDelta(t, 3.0, RiskScore(models.SeverityLow, 5), 1e-9)
	assert.Zero(t, RiskScore(models.SeverityLow, 0))
}
