// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// NewStore opens a migrated SQLite store in a temporary directory
func NewStore(t testing.TB) *storage.Storage {
	t.Helper()

	logger := zaptest.NewLogger(t)
	store, err := storage.NewStorage("sqlite", filepath.Join(t.TempDir(), "soc.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, storage.Migrate(context.Background(), store, logger))
	return store
}

// SeedEvidence stores one evidence line and returns it
func SeedEvidence(t testing.TB, q storage.Querier, source, message string) *models.RawEvidence {
	t.Helper()

	ev := &models.RawEvidence{Source: source, Message: message, UploadedBy: "analyst"}
	require.NoError(t, storage.NewEvidenceRepository(q).Create(context.Background(), ev))
	return ev
}

// SeedClassification stores evidence plus a classification detected at the given time
func SeedClassification(t testing.TB, q storage.Querier, source string, attack models.AttackType,
	sev models.Severity, detectedAt time.Time) *models.Classification {
	t.Helper()

	ev := SeedEvidence(t, q, source, string(attack)+" line")
	c := &models.Classification{
		EvidenceID:   ev.ID,
		AttackType:   attack,
		Severity:     sev,
		IsSuspicious: attack != models.AttackUnknown,
		RuleName:     "SEED",
		DetectedAt:   detectedAt,
		Source:       source,
	}
	require.NoError(t, storage.NewClassificationRepository(q).Upsert(context.Background(), c))
	return c
}

// FixedClock returns a clock function pinned to t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
