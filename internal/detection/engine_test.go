package detection_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/detection"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/testutil"
)

func newEngine(t *testing.T, store *storage.Storage, opts ...detection.EngineOption) *detection.Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	configs := storage.NewConfigRepository(store, models.DefaultDetectionConfig())
	return detection.NewEngine(store, configs, audit.NewLedger(store, logger), logger, opts...)
}

func TestRunBatchClassifiesAndAudits(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	engine := newEngine(t, store)

	brute := testutil.SeedEvidence(t, store, "sshd", "Failed password for root")
	benign := testutil.SeedEvidence(t, store, "app", "service started")

	res, err := engine.RunBatch(ctx, models.Attribution{Actor: "alice", IP: "10.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Analyzed)
	assert.Zero(t, res.Remaining)
	assert.Empty(t, res.Failures)

	classes := storage.NewClassificationRepository(store)
	c, err := classes.GetByEvidence(ctx, brute.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttackBruteForce, c.AttackType)
	assert.True(t, c.IsSuspicious)

	c, err = classes.GetByEvidence(ctx, benign.ID)
	require.NoError(t, err)
	assert.Equal(t, detection.RuleNoMatch, c.RuleName)

	ev, err := storage.NewEvidenceRepository(store).Get(ctx, brute.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, ev.ProcessingStatus)

	entries, err := storage.NewAuditRepository(store).List(ctx, storage.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionAnalysisRun, entries[0].Action)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.Equal(t, "Analyzed 2 raw alerts", entries[0].Description)

	// nothing left: no new audit entry
	res, err = engine.RunBatch(ctx, models.Attribution{Actor: "alice"})
	require.NoError(t, err)
	assert.Zero(t, res.Analyzed)
	n, err := storage.NewAuditRepository(store).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRunBatchRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	engine := newEngine(t, store, detection.WithBatchSize(3))

	for i := 0; i < 7; i++ {
		testutil.SeedEvidence(t, store, "sshd", fmt.Sprintf("Failed password attempt %d", i))
	}

	res, err := engine.RunBatch(ctx, models.Attribution{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Analyzed)
	assert.Equal(t, 4, res.Remaining)

	res, err = engine.RunBatch(ctx, models.Attribution{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Analyzed)
	assert.Equal(t, 1, res.Remaining)
}

func TestConcurrentRunsClassifyEachRecordOnce(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	const records = 40
	for i := 0; i < records; i++ {
		testutil.SeedEvidence(t, store, "sshd", fmt.Sprintf("Failed password attempt %d", i))
	}

	var results [4]*detection.BatchResult
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		i := i
		engine := newEngine(t, store)
		g.Go(func() error {
			res, err := engine.RunBatch(gctx, models.System(fmt.Sprintf("analyst-%d", i)))
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	total := 0
	for _, r := range results {
		total += r.Analyzed
		assert.Empty(t, r.Failures)
	}
	assert.Equal(t, records, total)

	list, err := storage.NewClassificationRepository(store).List(ctx, storage.ClassificationFilter{Page: storage.Page{Limit: 1000}})
	require.NoError(t, err)
	assert.Len(t, list, records)

	entries, err := storage.NewAuditRepository(store).Range(ctx, 0, 100)
	require.NoError(t, err)
	assert.NoError(t, audit.Verify(entries))
}

func TestRunBatchUsesLiveConfig(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	engine := newEngine(t, store)

	configs := storage.NewConfigRepository(store, models.DefaultDetectionConfig())
	cfg, err := configs.Get(ctx)
	require.NoError(t, err)
	cfg.EnableBruteForce = false
	require.NoError(t, configs.Save(ctx, cfg))

	ev := testutil.SeedEvidence(t, store, "sshd", "Failed password for root")
	_, err = engine.RunBatch(ctx, models.Attribution{})
	require.NoError(t, err)

	c, err := storage.NewClassificationRepository(store).GetByEvidence(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttackUnknown, c.AttackType)
}

// cancelRule matches everything and cancels the run while evaluating the nth record
type cancelRule struct {
	cancel context.CancelFunc
	at     int
	seen   int
}

func (r *cancelRule) Name() string                             { return "CANCEL_AT" }
func (r *cancelRule) IsActive(cfg models.DetectionConfig) bool { return true }

func (r *cancelRule) Evaluate(ev *models.RawEvidence) (models.Verdict, bool) {
	r.seen++
	if r.seen == r.at {
		r.cancel()
	}
	return models.Verdict{
		AttackType:   models.AttackBruteForce,
		Severity:     models.SeverityHigh,
		IsSuspicious: true,
		RuleName:     r.Name(),
	}, true
}

func TestRunBatchReturnsPartialResultWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := testutil.NewStore(t)
	engine := newEngine(t, store, detection.WithRules([]detection.Rule{&cancelRule{cancel: cancel, at: 2}}))

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, testutil.SeedEvidence(t, store, "sshd", fmt.Sprintf("Failed password attempt %d", i)).ID)
	}

	res, err := engine.RunBatch(ctx, models.Attribution{Actor: "alice"})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Analyzed)
	assert.Empty(t, res.Failures)
	assert.Equal(t, ids[0], res.LastID)
	assert.Equal(t, 2, res.Remaining)

	bg := context.Background()
	evidence := storage.NewEvidenceRepository(store)
	second, err := evidence.Get(bg, ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnprocessed, second.ProcessingStatus)

	entries, err := storage.NewAuditRepository(store).List(bg, storage.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Analyzed 1 raw alerts", entries[0].Description)
}

func TestRunBatchAfterSkipsPastCursor(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	engine := newEngine(t, store)

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, testutil.SeedEvidence(t, store, "sshd", fmt.Sprintf("Failed password attempt %d", i)).ID)
	}

	res, err := engine.RunBatchAfter(ctx, models.Attribution{}, ids[2])
	require.NoError(t, err)
	assert.Equal(t, 2, res.Analyzed)
	assert.Equal(t, ids[4], res.LastID)
	assert.Equal(t, 3, res.Remaining)

	res, err = engine.RunBatchAfter(ctx, models.Attribution{}, ids[4])
	require.NoError(t, err)
	assert.Zero(t, res.Attempted())
	assert.Zero(t, res.LastID)
}
