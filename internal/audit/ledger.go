// Package audit maintains the hash-chained, append-only audit ledger.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/metrics"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

const (
	defaultAppendRetries = 5
	verifyPageSize       = 500
)

// Record is the caller-supplied part of a ledger entry. Sequence, hashes and
// timestamp are assigned by the ledger.
type Record struct {
	Attribution models.Attribution
	Action      models.AuditAction
	Description string
	Related     models.RelatedRef
}

// Ledger appends to and verifies the audit chain
type Ledger struct {
	store      *storage.Storage
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	maxRetries int
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source used for entry timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMetrics records appends and retries
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithMaxRetries bounds how often Append retries after a sequence collision
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// NewLedger creates a ledger over store
func NewLedger(store *storage.Storage, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:      store,
		logger:     logger,
		now:        time.Now,
		maxRetries: defaultAppendRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes rec as the next entry in its own transaction, retrying when a
// concurrent writer took the same sequence number
func (l *Ledger) Append(ctx context.Context, rec Record) (*models.AuditLogEntry, error) {
	var entry *models.AuditLogEntry
	var err error
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		err = l.store.WithTx(ctx, func(tx *storage.Tx) error {
			var txErr error
			entry, txErr = l.AppendTx(ctx, tx, rec)
			return txErr
		})
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}

		l.metrics.ObserveAuditRetry()
		l.logger.Warn("audit append collided, retrying",
			zap.String("action", string(rec.Action)),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("failed to append audit entry after %d attempts: %w", l.maxRetries, err)
}

// AppendTx writes rec as the next entry inside tx so the entry commits or
// rolls back with the caller's own changes. A sequence collision surfaces as
// storage.ErrConflict.
func (l *Ledger) AppendTx(ctx context.Context, tx *storage.Tx, rec Record) (*models.AuditLogEntry, error) {
	if !rec.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown audit action %q", storage.ErrValidation, rec.Action)
	}

	if err := tx.Lock(ctx, storage.LockAuditChain); err != nil {
		return nil, err
	}

	repo := storage.NewAuditRepository(tx)
	last, err := repo.Last(ctx)
	if err != nil {
		return nil, err
	}

	entry := &models.AuditLogEntry{
		SequenceNumber: 1,
		Timestamp:      l.now().UTC().Truncate(time.Microsecond),
		Actor:          strings.TrimSpace(rec.Attribution.Actor),
		Action:         rec.Action,
		Description:    rec.Description,
		IPAddress:      strings.TrimSpace(rec.Attribution.IP),
		Related:        rec.Related,
	}
	if last != nil {
		entry.SequenceNumber = last.SequenceNumber + 1
		entry.PrevHash = last.ContentHash
	}
	entry.ContentHash = ComputeHash(entry)

	if err := repo.Insert(ctx, entry); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("audit sequence %d taken: %w", entry.SequenceNumber, storage.ErrConflict)
		}
		return nil, err
	}

	l.metrics.ObserveAuditAppend(string(entry.Action))
	l.logger.Debug("audit entry appended",
		zap.Int64("sequence", entry.SequenceNumber),
		zap.String("action", string(entry.Action)),
		zap.String("actor", entry.Actor),
	)
	return entry, nil
}

// ComputeHash returns the hex SHA-256 over the entry's chained fields
func ComputeHash(e *models.AuditLogEntry) string {
	payload := strings.Join([]string{
		strconv.FormatInt(e.SequenceNumber, 10),
		e.PrevHash,
		e.Actor,
		string(e.Action),
		e.Description,
		e.IPAddress,
		string(e.Related.Kind),
		e.Related.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// List returns ledger entries newest first
func (l *Ledger) List(ctx context.Context, f storage.AuditFilter) ([]*models.AuditLogEntry, error) {
	return storage.NewAuditRepository(l.store).List(ctx, f)
}

// VerifyChain walks the stored ledger in sequence order. Integrity failures
// are reported in the returned report; the error is reserved for storage failures.
func (l *Ledger) VerifyChain(ctx context.Context) (*VerifyReport, error) {
	repo := storage.NewAuditRepository(l.store)
	var chain chainState
	report := &VerifyReport{OK: true}

	for {
		page, err := repo.Range(ctx, chain.lastSeq, verifyPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit log: %w", err)
		}
		for _, e := range page {
			if cerr := chain.next(e); cerr != nil {
				report.OK = false
				report.Failure = cerr
				report.Total = chain.count
				report.LastSequence = chain.lastSeq
				report.LastHash = chain.prevHash
				l.logger.Error("audit chain verification failed",
					zap.Int64("sequence", cerr.Sequence),
					zap.String("reason", cerr.Reason),
				)
				return report, nil
			}
		}
		if len(page) < verifyPageSize {
			break
		}
	}

	report.Total = chain.count
	report.LastSequence = chain.lastSeq
	report.LastHash = chain.prevHash
	return report, nil
}
