// Package syncer runs one synchronization pass over a date window: due
// credentials are refreshed, remote events fetched, conflicts detected and
// merged with earlier decisions, and the resulting calendar view computed.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/detector"
	"github.com/dmitrijs2005/calsync/internal/fetcher"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/repositories/repomanager"
	"github.com/dmitrijs2005/calsync/internal/resolution"
	"github.com/dmitrijs2005/calsync/internal/tokens"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrijs2005/calsync/internal/syncer"

// DueRefresher refreshes the credentials of one user that are due at now.
type DueRefresher interface {
	RefreshDueFor(ctx context.Context, userID string, now time.Time) (tokens.Report, error)
}

// EventFetcher fetches every active integration of a user.
type EventFetcher interface {
	FetchAll(ctx context.Context, userID string, start, end time.Time) (fetcher.Result, error)
}

type Syncer struct {
	tokens       DueRefresher
	fetcher      EventFetcher
	appointments backend.AppointmentSource
	store        dbx.Store
	repos        repomanager.RepositoryManager
	clock        clock.Clock
	tracer       trace.Tracer
	logger       logging.Logger
}

type Option func(*Syncer)

func WithClock(c clock.Clock) Option { return func(s *Syncer) { s.clock = c } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Syncer) { s.tracer = tp.Tracer(tracerName) }
}

func New(
	tok DueRefresher,
	f EventFetcher,
	appointments backend.AppointmentSource,
	store dbx.Store,
	repos repomanager.RepositoryManager,
	logger logging.Logger,
	opts ...Option,
) *Syncer {
	s := &Syncer{
		tokens:       tok,
		fetcher:      f,
		appointments: appointments,
		store:        store,
		repos:        repos,
		clock:        clock.Real(),
		tracer:       otel.Tracer(tracerName),
		logger:       logger.With("module", "syncer"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SyncWindow builds userID's calendar view for [start, end). Integrations
// that cannot be refreshed or fetched are reported in the view's failures
// and otherwise left out.
func (s *Syncer) SyncWindow(ctx context.Context, userID string, start, end time.Time) (view models.CalendarView, err error) {
	ctx, span := s.tracer.Start(ctx, "SyncWindow", trace.WithAttributes(
		attribute.String("calsync.user_id", userID),
		attribute.String("calsync.window.start", start.Format(time.RFC3339)),
		attribute.String("calsync.window.end", end.Format(time.RFC3339)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !end.After(start) {
		return models.CalendarView{}, fmt.Errorf("%w: %s is not after %s", common.ErrInvalidWindow, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	s.refreshDue(ctx, userID)

	fetched, err := s.fetch(ctx, userID, start, end)
	if err != nil {
		return models.CalendarView{}, err
	}

	appointments, err := s.listAppointments(ctx, userID, start, end)
	if err != nil {
		return models.CalendarView{}, err
	}

	_, dspan := s.tracer.Start(ctx, "Detect")
	detected := detector.Detect(appointments, fetched.Events)
	dspan.SetAttributes(attribute.Int("calsync.conflicts.detected", len(detected)))
	dspan.End()

	merged, err := s.merge(ctx, detected)
	if err != nil {
		return models.CalendarView{}, err
	}

	view = resolution.Visibility(appointments, fetched.Events, merged)
	view.Failures = fetched.Failures
	span.SetAttributes(
		attribute.Int("calsync.events", len(view.Events)),
		attribute.Int("calsync.conflicts.open", len(view.Conflicts)),
		attribute.Int("calsync.failures", len(view.Failures)),
	)
	s.logger.Info(ctx, "sync pass finished", "user_id", userID,
		"events", len(view.Events), "appointments", len(view.Appointments),
		"open_conflicts", len(view.Conflicts), "failures", len(view.Failures))
	return view, nil
}

func (s *Syncer) refreshDue(ctx context.Context, userID string) {
	if s.tokens == nil {
		return
	}
	ctx, span := s.tracer.Start(ctx, "RefreshDue")
	defer span.End()

	report, err := s.tokens.RefreshDueFor(ctx, userID, s.clock.Now())
	span.SetAttributes(
		attribute.Int("calsync.refreshed", len(report.Refreshed)),
		attribute.Int("calsync.refresh_failed", len(report.Failed)),
	)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn(ctx, "due refresh incomplete, continuing", "error", err)
	}
}

func (s *Syncer) fetch(ctx context.Context, userID string, start, end time.Time) (fetcher.Result, error) {
	ctx, span := s.tracer.Start(ctx, "FetchAll")
	defer span.End()

	res, err := s.fetcher.FetchAll(ctx, userID, start, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fetcher.Result{}, fmt.Errorf("fetch events: %w", err)
	}
	span.SetAttributes(
		attribute.Int("calsync.events", len(res.Events)),
		attribute.Int("calsync.failures", len(res.Failures)),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	return res, nil
}

func (s *Syncer) listAppointments(ctx context.Context, userID string, start, end time.Time) ([]models.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "ListAppointments")
	defer span.End()

	apps, err := s.appointments.ListAppointments(ctx, userID, start, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	span.SetAttributes(attribute.Int("calsync.appointments", len(apps)))
	return apps, nil
}

// merge reconciles detected conflicts with stored ones. A stored decision
// survives while both records are unchanged; once either record changes
// the conflict is reopened. New conflicts are stored unresolved.
func (s *Syncer) merge(ctx context.Context, detected []models.SyncConflict) ([]models.SyncConflict, error) {
	ctx, span := s.tracer.Start(ctx, "MergeConflicts")
	defer span.End()

	now := s.clock.Now()
	merged := make([]models.SyncConflict, 0, len(detected))
	var reopened, created int
	err := s.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Conflicts(tx)
		for _, c := range detected {
			if err := dbx.LockKey(ctx, tx, resolution.LockKey(c.ID)); err != nil {
				return err
			}
			stored, err := repo.Get(ctx, c.ID)
			switch {
			case errors.Is(err, common.ErrorNotFound):
				c.DetectedAt = now
				if err := repo.Save(ctx, &c); err != nil {
					return err
				}
				created++
				merged = append(merged, c)
				continue
			case err != nil:
				return err
			}

			if stored.Fingerprint == c.Fingerprint {
				merged = append(merged, *stored)
				continue
			}
			if stored.Resolved() {
				reopened++
				s.logger.Info(ctx, "records changed since resolution, reopening conflict",
					"conflict_id", c.ID, "previous_action", stored.Resolution.Action)
				c.DetectedAt = now
			} else {
				c.DetectedAt = stored.DetectedAt
			}
			if err := repo.Save(ctx, &c); err != nil {
				return err
			}
			merged = append(merged, c)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("store conflicts: %w", err)
	}
	span.SetAttributes(attribute.Int("calsync.conflicts.created", created), attribute.Int("calsync.conflicts.reopened", reopened))
	return merged, nil
}
