// Package authflow drives the interactive OAuth handshake: it opens an
// authorization window, waits for the user's answer, exchanges the code
// and registers the new integration. A flow always ends on success, error,
// cancellation or its hard timeout, and releases its window and timer on
// every path.
package authflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a whole flow.
const DefaultTimeout = 5 * time.Minute

// Registry is where successful flows register their integration.
type Registry interface {
	Get(ctx context.Context, id string) (models.Integration, error)
	Upsert(ctx context.Context, in models.Integration) (models.Integration, error)
}

// RefreshScheduler starts auto-refresh for a new integration.
type RefreshScheduler interface {
	ScheduleAutoRefresh(in models.Integration)
}

// HintFunc is invoked when a window asks the host to reload.
type HintFunc func(ctx context.Context, userID string)

type Coordinator struct {
	authorizer backend.Authorizer
	surface    Surface
	registry   Registry
	tokens     RefreshScheduler
	onHint     HintFunc
	clock      clock.Clock
	timeout    time.Duration
	registered bool
	logger     logging.Logger

	mu     sync.Mutex
	byUser map[string]*Flow
	byID   map[string]*Flow
	last   map[string]string
}

type Option func(*Coordinator)

func WithTokens(t RefreshScheduler) Option { return func(c *Coordinator) { c.tokens = t } }

func WithRefreshHint(fn HintFunc) Option { return func(c *Coordinator) { c.onHint = fn } }

func WithClock(cl clock.Clock) Option { return func(c *Coordinator) { c.clock = cl } }

func WithTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// WithRegisteredIntegrations accepts success messages that carry an
// integration the backend has already registered. Without it such payloads
// are ignored and the code is always exchanged.
func WithRegisteredIntegrations() Option { return func(c *Coordinator) { c.registered = true } }

func New(authorizer backend.Authorizer, surface Surface, reg Registry, logger logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		authorizer: authorizer,
		surface:    surface,
		registry:   reg,
		clock:      clock.Real(),
		timeout:    DefaultTimeout,
		logger:     logger.With("module", "authflow"),
		byUser:     make(map[string]*Flow),
		byID:       make(map[string]*Flow),
		last:       make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens a window and begins authorization for userID. It returns as
// soon as the window shows the provider's consent page. At most one flow
// per user runs at a time.
func (c *Coordinator) Start(ctx context.Context, userID string, provider models.Provider) (*Flow, error) {
	if !c.reserve(userID) {
		return nil, fmt.Errorf("%w for user %s", common.ErrFlowInProgress, userID)
	}
	started := false
	defer func() {
		if !started {
			c.unreserve(userID)
		}
	}()

	window, err := c.surface.Open(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open authorization window: %w", err)
	}
	auth, err := c.authorizer.BeginAuthorization(ctx, userID, provider)
	if err != nil {
		window.Close()
		return nil, fmt.Errorf("begin authorization: %w", err)
	}
	if err := window.Navigate(auth.URL, auth.State); err != nil {
		window.Close()
		return nil, fmt.Errorf("navigate authorization window: %w", err)
	}

	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &Flow{
		id:       uuid.NewString(),
		userID:   userID,
		provider: provider,
		url:      auth.URL,
		expected: auth.State,
		c:        c,
		window:   window,
		ctx:      fctx,
		cancel:   cancel,
		stop:     make(chan error, 1),
		state:    StateAwaitingConsent,
		done:     make(chan struct{}),
	}
	f.timer = c.clock.AfterFunc(c.timeout, func() { f.abort(common.ErrAuthorizationTimeout) })

	c.mu.Lock()
	c.byUser[userID] = f
	if prev, ok := c.last[userID]; ok {
		delete(c.byID, prev)
	}
	c.byID[f.id] = f
	c.last[userID] = f.id
	c.mu.Unlock()
	started = true

	c.logger.Info(ctx, "authorization started", "flow_id", f.id, "user_id", userID, "provider", provider)
	go f.run()
	return f, nil
}

// Authorize runs a whole flow and returns the registered integration.
func (c *Coordinator) Authorize(ctx context.Context, userID string, provider models.Provider) (models.Integration, error) {
	f, err := c.Start(ctx, userID, provider)
	if err != nil {
		return models.Integration{}, err
	}
	return f.Wait(ctx)
}

// Flow returns a running or the most recently finished flow by id.
func (c *Coordinator) Flow(id string) (*Flow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byID[id]
	return f, ok
}

// Active returns the running flow of userID.
func (c *Coordinator) Active(userID string) (*Flow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byUser[userID]
	return f, ok && f != nil
}

// CancelAll cancels every running flow.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	flows := make([]*Flow, 0, len(c.byUser))
	for _, f := range c.byUser {
		if f != nil {
			flows = append(flows, f)
		}
	}
	c.mu.Unlock()
	for _, f := range flows {
		f.Cancel()
	}
}

// reserve claims the per-user slot with a nil placeholder while the flow
// is being set up.
func (c *Coordinator) reserve(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.byUser[userID]; busy {
		return false
	}
	c.byUser[userID] = nil
	return true
}

func (c *Coordinator) unreserve(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byUser, userID)
}

func (c *Coordinator) release(f *Flow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byUser[f.userID] == f {
		delete(c.byUser, f.userID)
	}
}
