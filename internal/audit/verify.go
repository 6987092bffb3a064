package audit

import (
	"errors"
	"fmt"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// ErrChainIntegrity is matched by every verification failure
var ErrChainIntegrity = errors.New("audit chain integrity violation")

// ChainError pinpoints the first entry that breaks the chain
type ChainError struct {
	Sequence int64  `json:"sequence"`
	Reason   string `json:"reason"`
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at sequence %d: %s", e.Sequence, e.Reason)
}

func (e *ChainError) Is(target error) bool {
	return target == ErrChainIntegrity
}

// VerifyReport summarizes a full-ledger verification
type VerifyReport struct {
	OK           bool        `json:"ok"`
	Total        int64       `json:"total"`
	LastSequence int64       `json:"last_sequence"`
	LastHash     string      `json:"last_hash"`
	Failure      *ChainError `json:"failure,omitempty"`
}

// Err returns the chain failure, if any, as an error
func (r *VerifyReport) Err() error {
	if r == nil || r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Verify checks entries ordered by sequence number: the chain starts at 1 with
// an empty prev hash, has no gaps, every stored hash matches its recomputation
// and every prev hash matches the predecessor's recomputed hash.
func Verify(entries []*models.AuditLogEntry) error {
	var chain chainState
	for _, e := range entries {
		if err := chain.next(e); err != nil {
			return err
		}
	}
	return nil
}

type chainState struct {
	count    int64
	lastSeq  int64
	prevHash string
}

func (c *chainState) next(e *models.AuditLogEntry) *ChainError {
	want := c.lastSeq + 1
	if e.SequenceNumber != want {
		return &ChainError{
			Sequence: e.SequenceNumber,
			Reason:   fmt.Sprintf("expected sequence %d", want),
		}
	}
	if e.PrevHash != c.prevHash {
		reason := "prev hash does not match predecessor"
		if c.count == 0 {
			reason = "first entry must have an empty prev hash"
		}
		return &ChainError{Sequence: e.SequenceNumber, Reason: reason}
	}

	recomputed := ComputeHash(e)
	if e.ContentHash != recomputed {
		return &ChainError{Sequence: e.SequenceNumber, Reason: "content hash mismatch"}
	}

	c.count++
	c.lastSeq = e.SequenceNumber
	c.prevHash = recomputed
	return nil
}
