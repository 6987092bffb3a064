package audit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/metrics"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/testutil"
)

func newLedger(t *testing.T, opts ...audit.Option) (*audit.Ledger, *storage.Storage) {
	t.Helper()
	store := testutil.NewStore(t)
	return audit.NewLedger(store, zaptest.NewLogger(t), opts...), store
}

func allEntries(t *testing.T, store *storage.Storage) []*models.AuditLogEntry {
	t.Helper()
	entries, err := storage.NewAuditRepository(store).Range(context.Background(), 0, 10000)
	require.NoError(t, err)
	return entries
}

func TestAppendBuildsChain(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	ledger, store := newLedger(t, audit.WithClock(testutil.FixedClock(at)))

	first, err := ledger.Append(ctx, audit.Record{
		Attribution: models.Attribution{Actor: "alice", IP: "10.0.0.5"},
		Action:      models.ActionLogUpload,
		Description: "uploaded 12 lines",
		Related:     models.LogSourceRef("sshd"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.SequenceNumber)
	assert.Empty(t, first.PrevHash)
	assert.Len(t, first.ContentHash, 64)
	assert.Equal(t, at.Truncate(time.Microsecond), first.Timestamp)

	second, err := ledger.Append(ctx, audit.Record{
		Action:      models.ActionAnalysisRun,
		Description: "analyzed 12 records",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.SequenceNumber)
	assert.Equal(t, first.ContentHash, second.PrevHash)
	assert.Empty(t, second.Actor)

	entries := allEntries(t, store)
	require.Len(t, entries, 2)
	assert.NoError(t, audit.Verify(entries))
	assert.Equal(t, first.ContentHash, entries[0].ContentHash)

	report, err := ledger.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.EqualValues(t, 2, report.Total)
	assert.Equal(t, second.ContentHash, report.LastHash)
	assert.NoError(t, report.Err())
}

func TestAppendRejectsUnknownAction(t *testing.T) {
	ledger, _ := newLedger(t)
	_, err := ledger.Append(context.Background(), audit.Record{Action: "rm_rf"})
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestConcurrentAppendsStayGapless(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	ledger, store := newLedger(t, audit.WithMetrics(m))

	const writers = 25
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			_, err := ledger.Append(gctx, audit.Record{
				Attribution: models.System(fmt.Sprintf("worker-%d", i)),
				Action:      models.ActionManualLogEntry,
				Description: fmt.Sprintf("entry %d", i),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	entries := allEntries(t, store)
	require.Len(t, entries, writers)
	for i, e := range entries {
		assert.EqualValues(t, i+1, e.SequenceNumber)
	}
	assert.NoError(t, audit.Verify(entries))
	assert.Equal(t, float64(writers), promtest.ToFloat64(m.AuditAppends.WithLabelValues("manual_log_entry")))
}

func TestAppendTxRollsBackWithCaller(t *testing.T) {
	ctx := context.Background()
	ledger, store := newLedger(t)

	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := ledger.AppendTx(ctx, tx, audit.Record{Action: models.ActionIncidentCreate}); err != nil {
			return err
		}
		return storage.ErrConflict
	})
	require.ErrorIs(t, err, storage.ErrConflict)
	assert.Empty(t, allEntries(t, store))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	ctx := context.Background()
	ledger, store := newLedger(t)

	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, audit.Record{
			Attribution: models.System("alice"),
			Action:      models.ActionLogin,
			Description: "User login",
		})
		require.NoError(t, err)
	}

	// simulate someone with direct database access bypassing the guard
	_, err := store.ExecContext(ctx, "DROP TRIGGER audit_log_no_update")
	require.NoError(t, err)
	_, err = store.ExecContext(ctx,
		"UPDATE audit_log SET description = ? WHERE sequence_number = 2", "User logout")
	require.NoError(t, err)

	report, err := ledger.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.NotNil(t, report.Failure)
	assert.EqualValues(t, 2, report.Failure.Sequence)
	assert.EqualValues(t, 1, report.Total)
	assert.ErrorIs(t, report.Err(), audit.ErrChainIntegrity)
}

func TestLedgerList(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)

	for _, action := range []models.AuditAction{models.ActionLogin, models.ActionLogUpload, models.ActionLogin} {
		_, err := ledger.Append(ctx, audit.Record{Action: action, Description: string(action)})
		require.NoError(t, err)
	}

	logins, err := ledger.List(ctx, storage.AuditFilter{Action: models.ActionLogin})
	require.NoError(t, err)
	require.Len(t, logins, 2)
	assert.EqualValues(t, 3, logins[0].SequenceNumber)
}
