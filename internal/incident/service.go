// Package incident promotes correlated events into tracked incidents and
// drives their status workflow.
package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/audit"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/metrics"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

const defaultPromoteRetries = 5

// Service handles incident creation and updates
type Service struct {
	store      *storage.Storage
	ledger     *audit.Ledger
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	maxRetries int
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source; the incident year comes from it
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records promotions and transitions
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxRetries bounds how often Promote retries an identifier collision
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewService creates a new incident service
func NewService(store *storage.Storage, ledger *audit.Ledger, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:      store,
		ledger:     ledger,
		logger:     logger,
		now:        time.Now,
		maxRetries: defaultPromoteRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Promote turns a correlated event into an open incident. Promoting an event
// that already has an incident returns that incident.
func (s *Service) Promote(ctx context.Context, eventID int64, attr models.Attribution) (*models.Incident, error) {
	ev, err := storage.NewEventRepository(s.store).Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.IsPromotedToIncident {
		return storage.NewIncidentRepository(s.store).GetByEvent(ctx, eventID)
	}

	var inc *models.Incident
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		inc, err = s.promoteOnce(ctx, ev, attr)
		if err == nil {
			s.metrics.ObservePromotion(string(inc.AttackType))
			s.logger.Info("incident created",
				zap.String("incident_id", inc.IncidentID),
				zap.Int64("event_id", eventID),
				zap.String("actor", attr.Actor),
			)
			return inc, nil
		}
		if errors.Is(err, storage.ErrAlreadyPromoted) {
			return storage.NewIncidentRepository(s.store).GetByEvent(ctx, eventID)
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		s.logger.Warn("incident id collision, retrying",
			zap.Int64("event_id", eventID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("failed to promote event %d after %d attempts: %w", eventID, s.maxRetries, err)
}

func (s *Service) promoteOnce(ctx context.Context, ev *models.CorrelatedEvent, attr models.Attribution) (*models.Incident, error) {
	var inc *models.Incident
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Lock(ctx, storage.LockIncidentIDs); err != nil {
			return err
		}

		if err := storage.NewEventRepository(tx).MarkPromoted(ctx, ev.ID); err != nil {
			return err
		}

		incidents := storage.NewIncidentRepository(tx)
		now := s.clock()
		year := now.Year()
		seq, err := incidents.NextSequence(ctx, year)
		if err != nil {
			return err
		}

		inc = &models.Incident{
			IncidentID:        models.FormatIncidentID(year, seq),
			Year:              year,
			Sequence:          seq,
			CorrelatedEventID: ev.ID,
			AttackType:        ev.AttackType,
			RiskScore:         ev.RiskScore,
			CurrentStatus:     models.IncidentOpen,
			CreatedBy:         attr.Actor,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := incidents.Create(ctx, inc); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return fmt.Errorf("incident %s taken: %w", inc.IncidentID, storage.ErrConflict)
			}
			return err
		}

		err = incidents.AddHistory(ctx, &models.IncidentHistory{
			IncidentID: inc.ID,
			Timestamp:  now,
			ChangedBy:  attr.Actor,
			OldStatus:  "",
			NewStatus:  models.IncidentOpen,
			Notes: fmt.Sprintf("Incident created from correlated event. Attack type: %s, Source: %s, Risk score: %.1f",
				ev.AttackType, ev.Source, ev.RiskScore),
		})
		if err != nil {
			return err
		}

		_, err = s.ledger.AppendTx(ctx, tx, audit.Record{
			Attribution: attr,
			Action:      models.ActionIncidentCreate,
			Description: fmt.Sprintf("Created incident %s", inc.IncidentID),
			Related:     models.IncidentRef(inc.IncidentID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// UpdateStatus moves an incident to any status. Notes are mandatory.
func (s *Service) UpdateStatus(ctx context.Context, incidentID string, status models.IncidentStatus, notes string, attr models.Attribution) (*models.Incident, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown incident status %q", storage.ErrValidation, status)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, fmt.Errorf("%w: investigation notes are required", storage.ErrValidation)
	}

	var inc *models.Incident
	var oldStatus models.IncidentStatus
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		incidents := storage.NewIncidentRepository(tx)
		var err error
		inc, err = incidents.Get(ctx, incidentID)
		if err != nil {
			return err
		}

		now := s.clock()
		oldStatus = inc.CurrentStatus
		if err := incidents.UpdateStatus(ctx, inc.ID, status, now); err != nil {
			return err
		}
		inc.CurrentStatus = status
		inc.UpdatedAt = now

		err = incidents.AddHistory(ctx, &models.IncidentHistory{
			IncidentID: inc.ID,
			Timestamp:  now,
			ChangedBy:  attr.Actor,
			OldStatus:  oldStatus,
			NewStatus:  status,
			Notes:      notes,
		})
		if err != nil {
			return err
		}

		_, err = s.ledger.AppendTx(ctx, tx, audit.Record{
			Attribution: attr,
			Action:      models.ActionIncidentUpdate,
			Description: fmt.Sprintf("Updated incident %s %s→%s", inc.IncidentID, oldStatus, status),
			Related:     models.IncidentRef(inc.IncidentID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(oldStatus), string(status))
	s.logger.Info("incident status updated",
		zap.String("incident_id", incidentID),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(status)),
		zap.String("actor", attr.Actor),
	)
	return inc, nil
}

// Assign sets the analyst responsible for an incident. An empty assignee
// clears the assignment. The status is unchanged but the trail still records it.
func (s *Service) Assign(ctx context.Context, incidentID, assignee, notes string, attr models.Attribution) (*models.Incident, error) {
	assignee = strings.TrimSpace(assignee)
	notes = strings.TrimSpace(notes)
	if notes == "" {
		if assignee == "" {
			notes = "Assignment cleared"
		} else {
			notes = "Assigned to " + assignee
		}
	}

	var inc *models.Incident
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		incidents := storage.NewIncidentRepository(tx)
		var err error
		inc, err = incidents.Get(ctx, incidentID)
		if err != nil {
			return err
		}

		now := s.clock()
		if err := incidents.UpdateAssignee(ctx, inc.ID, assignee, now); err != nil {
			return err
		}
		inc.AssignedTo = assignee
		inc.UpdatedAt = now

		err = incidents.AddHistory(ctx, &models.IncidentHistory{
			IncidentID: inc.ID,
			Timestamp:  now,
			ChangedBy:  attr.Actor,
			OldStatus:  inc.CurrentStatus,
			NewStatus:  inc.CurrentStatus,
			Notes:      notes,
		})
		if err != nil {
			return err
		}

		description := fmt.Sprintf("Assigned incident %s to %s", inc.IncidentID, assignee)
		if assignee == "" {
			description = fmt.Sprintf("Cleared assignment of incident %s", inc.IncidentID)
		}
		_, err = s.ledger.AppendTx(ctx, tx, audit.Record{
			Attribution: attr,
			Action:      models.ActionIncidentUpdate,
			Description: description,
			Related:     models.IncidentRef(inc.IncidentID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// Get returns one incident by identifier
func (s *Service) Get(ctx context.Context, incidentID string) (*models.Incident, error) {
	return storage.NewIncidentRepository(s.store).Get(ctx, incidentID)
}

// List returns incidents matching f
func (s *Service) List(ctx context.Context, f storage.IncidentFilter) ([]*models.Incident, error) {
	return storage.NewIncidentRepository(s.store).List(ctx, f)
}

// History returns the status trail of an incident, oldest first
func (s *Service) History(ctx context.Context, incidentID string) ([]*models.IncidentHistory, error) {
	incidents := storage.NewIncidentRepository(s.store)
	inc, err := incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	return incidents.History(ctx, inc.ID)
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
