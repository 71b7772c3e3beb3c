// Package fetcher pulls remote events for a bounded window and normalizes
// them. A record that fails to parse is skipped, never the whole batch, and
// an integration that is not active contributes nothing instead of failing.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Registry is the subset of the integration registry the fetcher needs.
type Registry interface {
	Get(ctx context.Context, id string) (models.Integration, error)
	ListByUser(ctx context.Context, userID string) ([]models.Integration, error)
	Update(ctx context.Context, id string, mutate func(*models.Integration) error) (models.Integration, error)
}

// Freshener refreshes an integration's credentials when they are due.
type Freshener interface {
	EnsureFresh(ctx context.Context, id string) (models.Integration, error)
}

type Fetcher struct {
	registry    Registry
	source      backend.EventSource
	tokens      Freshener
	clock       clock.Clock
	concurrency int
	logger      logging.Logger
}

type Option func(*Fetcher)

// WithTokens makes every fetch check the credential first.
func WithTokens(t Freshener) Option { return func(f *Fetcher) { f.tokens = t } }

func WithClock(c clock.Clock) Option { return func(f *Fetcher) { f.clock = c } }

// WithConcurrency bounds the integrations FetchAll queries at once.
func WithConcurrency(n int) Option { return func(f *Fetcher) { f.concurrency = n } }

func New(reg Registry, source backend.EventSource, logger logging.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		registry:    reg,
		source:      source,
		clock:       clock.Real(),
		concurrency: 4,
		logger:      logger.With("module", "fetcher"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchEvents returns the events of integration id that overlap the
// half-open window [start, end), ordered by start.
func (f *Fetcher) FetchEvents(ctx context.Context, id string, start, end time.Time) ([]models.ExternalEvent, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: %s is not after %s", common.ErrInvalidWindow, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	in, err := f.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status != models.StatusActive {
		f.logger.Debug(ctx, "integration not active, nothing to fetch", "integration_id", id, "status", in.Status)
		return []models.ExternalEvent{}, nil
	}
	if f.tokens != nil {
		fresh, err := f.tokens.EnsureFresh(ctx, id)
		switch {
		case err == nil:
			in = fresh
		case errors.Is(err, common.ErrTransient) && in.ExpiresAt != nil && in.ExpiresAt.After(f.clock.Now()):
			f.logger.Warn(ctx, "refresh failed, using current credentials", "integration_id", id, "expires_at", in.ExpiresAt, "error", err)
		default:
			return nil, err
		}
	}

	raws, err := f.source.ListEvents(ctx, in, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch events for %s: %w", id, err)
	}

	events := make([]models.ExternalEvent, 0, len(raws))
	for _, raw := range raws {
		ev, err := Parse(id, raw)
		if err != nil {
			f.logger.Warn(ctx, "skipping malformed event", "integration_id", id, "remote_id", raw.ID, "reason", err)
			continue
		}
		if ev.Status == StatusCancelled {
			continue
		}
		if !ev.Start.Before(end) || !ev.End.After(start) {
			continue
		}
		events = append(events, ev)
	}
	sortEvents(events)

	f.logger.Debug(ctx, "events fetched", "integration_id", id, "received", len(raws), "kept", len(events))
	return events, nil
}

// Result is the outcome of fetching every integration of a user.
type Result struct {
	Events   []models.ExternalEvent
	Failures []models.FetchFailure
	// Err combines the individual failures; nil when every fetch succeeded.
	Err error
}

// FetchAll fetches, in parallel, every active and sync-enabled integration
// of userID. A failing integration is recorded in the result and never
// fails the aggregate. Successful integrations get LastSyncedAt stamped.
func (f *Fetcher) FetchAll(ctx context.Context, userID string, start, end time.Time) (Result, error) {
	if !end.After(start) {
		return Result{}, fmt.Errorf("%w: %s is not after %s", common.ErrInvalidWindow, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	list, err := f.registry.ListByUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("list integrations: %w", err)
	}

	var (
		mu  sync.Mutex
		res = Result{Events: []models.ExternalEvent{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, in := range list {
		in := in
		if !in.Schedulable() {
			continue
		}
		g.Go(func() error {
			events, err := f.FetchEvents(gctx, in.ID, start, end)
			if err == nil {
				f.stampSynced(gctx, in.ID)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, models.FetchFailure{IntegrationID: in.ID, Reason: err.Error()})
				res.Err = multierr.Append(res.Err, err)
				return nil
			}
			res.Events = append(res.Events, events...)
			return nil
		})
	}
	_ = g.Wait()

	sortEvents(res.Events)
	sort.Slice(res.Failures, func(i, j int) bool {
		return res.Failures[i].IntegrationID < res.Failures[j].IntegrationID
	})
	if res.Err != nil {
		f.logger.Warn(ctx, "some integrations could not be fetched", "user_id", userID, "failed", len(res.Failures), "error", res.Err)
	}
	return res, nil
}

func (f *Fetcher) stampSynced(ctx context.Context, id string) {
	now := f.clock.Now()
	_, err := f.registry.Update(ctx, id, func(in *models.Integration) error {
		in.LastSyncedAt = &now
		return nil
	})
	if err != nil {
		f.logger.Warn(ctx, "could not record sync time", "integration_id", id, "error", err)
	}
}

func sortEvents(events []models.ExternalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].Key() < events[j].Key()
	})
}
