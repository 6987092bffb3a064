package incident_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/incident"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/testutil"
)

func newPostgresService(t *testing.T, now time.Time) (*incident.Service, *storage.Storage) {
	t.Helper()
	store := testutil.NewPostgresStore(t)
	logger := zaptest.NewLogger(t)
	svc := incident.NewService(store, audit.NewLedger(store, logger), logger,
		incident.WithClock(testutil.FixedClock(now)))
	return svc, store
}

func TestPostgresConcurrentPromotionsGetUniqueIDs(t *testing.T) {
	ctx := context.Background()
	svc, store := newPostgresService(t, time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC))

	const n = 20
	events := make([]*models.CorrelatedEvent, n)
	for i := range events {
		events[i] = seedEvent(t, store, fmt.Sprintf("host-%02d", i))
	}

	ids := make([]string, n)
	var g errgroup.Group
	for i, ev := range events {
		g.Go(func() error {
			inc, err := svc.Promote(ctx, ev.ID, analyst)
			if err != nil {
				return err
			}
			ids[i] = inc.IncidentID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate incident id %s", id)
		seen[id] = true
	}
	for i := 1; i <= n; i++ {
		assert.True(t, seen[models.FormatIncidentID(2025, i)], "missing sequence %d", i)
	}

	report, err := audit.NewLedger(store, zaptest.NewLogger(t)).VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.EqualValues(t, n, report.Total)
}

func TestPostgresConcurrentPromotionsOfOneEvent(t *testing.T) {
	ctx := context.Background()
	svc, store := newPostgresService(t, time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC))
	ev := seedEvent(t, store, "sshd")

	const n = 8
	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			inc, err := svc.Promote(ctx, ev.ID, analyst)
			if err != nil {
				return err
			}
			ids[i] = inc.IncidentID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, "INC-2025-0001", id)
	}

	list, err := svc.List(ctx, storage.IncidentFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	history, err := svc.History(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, history, 1)

	creates, err := storage.NewAuditRepository(store).List(ctx, storage.AuditFilter{Action: models.ActionIncidentCreate})
	require.NoError(t, err)
	assert.Len(t, creates, 1)
}

func TestPostgresUpdateStatusKeepsHistoryImmutable(t *testing.T) {
	ctx := context.Background()
	svc, store := newPostgresService(t, time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC))
	ev := seedEvent(t, store, "sshd")

	inc, err := svc.Promote(ctx, ev.ID, analyst)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, inc.IncidentID, models.IncidentInvestigating, "triage started", analyst)
	require.NoError(t, err)

	_, err = store.ExecContext(ctx, "UPDATE incident_history SET notes = ? WHERE incident_id = ?", "rewritten", inc.ID)
	assert.ErrorIs(t, storage.MapError(err), storage.ErrImmutableRecord)

	history, err := svc.History(ctx, inc.IncidentID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "triage started", history[1].Notes)
}
