package ingestion_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/detection"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/ingestion"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// fakeRunner keeps a pending set in memory. Ids in broken fail on every attempt.
type fakeRunner struct {
	pending map[int64]bool
	broken  map[int64]bool
	size    int
	cursors []int64
	failAt  int
}

func newFakeRunner(n, size int, broken ...int64) *fakeRunner {
	r := &fakeRunner{pending: map[int64]bool{}, broken: map[int64]bool{}, size: size}
	for id := int64(1); id <= int64(n); id++ {
		r.pending[id] = true
	}
	for _, id := range broken {
		r.broken[id] = true
	}
	return r
}

func (r *fakeRunner) RunBatchAfter(_ context.Context, _ models.Attribution, afterID int64) (*detection.BatchResult, error) {
	r.cursors = append(r.cursors, afterID)
	if r.failAt > 0 && len(r.cursors) == r.failAt {
		return &detection.BatchResult{Analyzed: 1, LastID: afterID + 1}, errors.New("connection reset")
	}

	var ids []int64
	for id := range r.pending {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > r.size {
		ids = ids[:r.size]
	}

	res := &detection.BatchResult{}
	for _, id := range ids {
		res.LastID = id
		if r.broken[id] {
			res.Failures = append(res.Failures, detection.RecordFailure{EvidenceID: id, Error: "malformed"})
			continue
		}
		delete(r.pending, id)
		res.Analyzed++
	}
	res.Remaining = len(r.pending)
	return res, nil
}

func TestDrainReachesRecordsBehindFailures(t *testing.T) {
	runner := newFakeRunner(10, 3, 1, 2, 3)

	res, err := ingestion.NewProcessor(runner, zaptest.NewLogger(t)).Drain(context.Background(), analyst)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Analyzed)
	assert.Len(t, res.Failures, 3)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, int64(10), res.LastID)
	assert.Equal(t, []int64{0, 3, 6, 9, 10}, runner.cursors)
	assert.Len(t, runner.pending, 3)
}

func TestDrainStopsWhenBacklogIsEmpty(t *testing.T) {
	runner := newFakeRunner(4, 2)

	res, err := ingestion.NewProcessor(runner, nil).Drain(context.Background(), analyst)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Analyzed)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, []int64{0, 2}, runner.cursors)
}

func TestDrainKeepsPartialResultOnError(t *testing.T) {
	runner := newFakeRunner(6, 2)
	runner.failAt = 2

	res, err := ingestion.NewProcessor(runner, nil).Drain(context.Background(), analyst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2 failed")
	assert.Equal(t, 3, res.Analyzed)
}
