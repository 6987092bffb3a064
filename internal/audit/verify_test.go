package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

func buildChain(n int) []*models.AuditLogEntry {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var out []*models.AuditLogEntry
	prev := ""
	for i := 1; i <= n; i++ {
		e := &models.AuditLogEntry{
			SequenceNumber: int64(i),
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			Actor:          "alice",
			Action:         models.ActionIncidentUpdate,
			Description:    "status change",
			Related:        models.IncidentRef("INC-2025-0001"),
			PrevHash:       prev,
		}
		e.ContentHash = ComputeHash(e)
		prev = e.ContentHash
		out = append(out, e)
	}
	return out
}

func TestVerifyEmptyAndValid(t *testing.T) {
	assert.NoError(t, Verify(nil))
	assert.NoError(t, Verify(buildChain(5)))
}

func TestVerifyFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]*models.AuditLogEntry) []*models.AuditLogEntry
		seq    int64
	}{
		{
			name: "tampered description",
			mutate: func(c []*models.AuditLogEntry) []*models.AuditLogEntry {
				c[2].Description = "nothing happened"
				return c
			},
			seq: 3,
		},
		{
			name: "gap in sequence",
			mutate: func(c []*models.AuditLogEntry) []*models.AuditLogEntry {
				return append(c[:1], c[2:]...)
			},
			seq: 3,
		},
		{
			name: "first entry with prev hash",
			mutate: func(c []*models.AuditLogEntry) []*models.AuditLogEntry {
				c[0].PrevHash = "00"
				return c
			},
			seq: 1,
		},
		{
			name: "chain not starting at one",
			mutate: func(c []*models.AuditLogEntry) []*models.AuditLogEntry {
				return c[1:]
			},
			seq: 2,
		},
		{
			name: "rehashed entry breaks successor link",
			mutate: func(c []*models.AuditLogEntry) []*models.AuditLogEntry {
				c[1].Description = "rewritten"
				c[1].ContentHash = ComputeHash(c[1])
				return c
			},
			seq: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.mutate(buildChain(4)))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrChainIntegrity)

			var chainErr *ChainError
			require.ErrorAs(t, err, &chainErr)
			assert.Equal(t, tt.seq, chainErr.Sequence)
		})
	}
}

func TestComputeHashIgnoresTimezone(t *testing.T) {
	e := buildChain(1)[0]
	h := ComputeHash(e)
	e.Timestamp = e.Timestamp.In(time.FixedZone("CET", 3600))
	assert.Equal(t, h, ComputeHash(e))
}
