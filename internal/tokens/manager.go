// Package tokens keeps integration credentials usable. It refreshes each
// active, sync-enabled integration ahead of expiry on a per-integration
// timer, coalesces concurrent refreshes of the same integration, and marks
// integrations whose refresh token was rejected as errored.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/inflight"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/registry"
	"github.com/dmitrijs2005/calsync/internal/scheduler"
)

// DefaultLookahead is how long before expiry a refresh becomes due.
const DefaultLookahead = 5 * time.Minute

// DefaultMinInterval is the shortest gap between two timed refreshes of one
// integration.
const DefaultMinInterval = 30 * time.Second

// Registry is the subset of the integration registry the manager needs.
type Registry interface {
	List(ctx context.Context) ([]models.Integration, error)
	ListByUser(ctx context.Context, userID string) ([]models.Integration, error)
	Get(ctx context.Context, id string) (models.Integration, error)
	Update(ctx context.Context, id string, mutate func(*models.Integration) error) (models.Integration, error)
	Subscribe(fn func(registry.Event)) func()
}

type Manager struct {
	registry    Registry
	refresher   backend.Refresher
	clock       clock.Clock
	sched       *scheduler.Scheduler
	inflight    *inflight.Group[models.Integration]
	lookahead   time.Duration
	minInterval time.Duration
	concurrency int
	logger      logging.Logger

	mu        sync.Mutex
	baseCtx   context.Context
	unsub     func()
	closed    bool
	refreshed map[string]time.Time
	wg        sync.WaitGroup
}

// Option customizes a Manager.
type Option func(*Manager)

func WithLookahead(d time.Duration) Option { return func(m *Manager) { m.lookahead = d } }

func WithClock(c clock.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithMinInterval sets the shortest gap between timed refreshes of one
// integration, for credentials that come back already inside the lookahead.
func WithMinInterval(d time.Duration) Option { return func(m *Manager) { m.minInterval = d } }

// WithConcurrency bounds the parallel refreshes of RefreshAllDue.
func WithConcurrency(n int) Option { return func(m *Manager) { m.concurrency = n } }

func New(reg Registry, refresher backend.Refresher, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		registry:    reg,
		refresher:   refresher,
		clock:       clock.Real(),
		inflight:    inflight.New[models.Integration](),
		lookahead:   DefaultLookahead,
		minInterval: DefaultMinInterval,
		concurrency: 4,
		logger:      logger.With("module", "tokens"),
		baseCtx:     context.Background(),
		refreshed:   make(map[string]time.Time),
	}
	for _, o := range opts {
		o(m)
	}
	m.sched = scheduler.New(m.clock)
	return m
}

// NeedsRefresh reports whether the credential expires within the lookahead
// window of now, or already has. The boundary is inclusive. Integrations
// without an expiry never need a refresh.
func (m *Manager) NeedsRefresh(in models.Integration, now time.Time) bool {
	if in.ExpiresAt == nil {
		return false
	}
	return !in.ExpiresAt.After(now.Add(m.lookahead))
}

// Refresh renews the credentials of integration id. Concurrent calls for
// the same id share one remote call and its result.
func (m *Manager) Refresh(ctx context.Context, id string) (models.Integration, error) {
	in, shared, err := m.inflight.Do(ctx, id, func(ctx context.Context) (models.Integration, error) {
		return m.refresh(ctx, id)
	})
	if shared {
		m.logger.Debug(ctx, "refresh coalesced", "integration_id", id)
	}
	return in, err
}

func (m *Manager) refresh(ctx context.Context, id string) (models.Integration, error) {
	cur, err := m.registry.Get(ctx, id)
	if err != nil {
		return models.Integration{}, err
	}
	if cur.Status != models.StatusActive {
		return models.Integration{}, fmt.Errorf("%w: %s is %s", common.ErrIntegrationInactive, id, cur.Status)
	}

	fresh, err := m.refresher.Refresh(ctx, cur)
	if err != nil {
		if errors.Is(err, common.ErrInvalidGrant) {
			m.markUnrecoverable(ctx, id, err)
		} else {
			m.logger.Warn(ctx, "refresh failed", "integration_id", id, "transient", true, "error", err)
		}
		return models.Integration{}, fmt.Errorf("refresh %s: %w", id, err)
	}
	// recorded before Update, whose notification reschedules the timer
	m.mu.Lock()
	m.refreshed[id] = m.clock.Now()
	m.mu.Unlock()

	saved, err := m.registry.Update(ctx, id, func(in *models.Integration) error {
		if in.Status != models.StatusActive {
			return fmt.Errorf("%w: %s changed to %s during refresh", common.ErrIntegrationInactive, id, in.Status)
		}
		in.ExpiresAt = fresh.ExpiresAt
		in.Credentials = fresh.Credentials
		return nil
	})
	if err != nil {
		return models.Integration{}, err
	}
	m.logger.Info(ctx, "integration refreshed", "integration_id", id, "expires_at", saved.ExpiresAt)
	return saved, nil
}

// markUnrecoverable flips the integration to error and stops its timer
// until the user re-authorizes.
func (m *Manager) markUnrecoverable(ctx context.Context, id string, cause error) {
	m.sched.Cancel(id)
	_, err := m.registry.Update(ctx, id, func(in *models.Integration) error {
		in.Status = models.StatusError
		return nil
	})
	if err != nil {
		m.logger.Error(ctx, "could not mark integration as errored", "integration_id", id, "error", err)
	}
	m.logger.Error(ctx, "refresh token rejected", "integration_id", id, "transient", false, "error", cause)
}

// EnsureFresh returns the integration, refreshing it first when due.
func (m *Manager) EnsureFresh(ctx context.Context, id string) (models.Integration, error) {
	in, err := m.registry.Get(ctx, id)
	if err != nil {
		return models.Integration{}, err
	}
	if !m.NeedsRefresh(in, m.clock.Now()) {
		return in, nil
	}
	return m.Refresh(ctx, id)
}
