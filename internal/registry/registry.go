// Package registry is the single source of truth for integrations. Every
// mutation funnels through Upsert, Update or Remove, which are serialized
// per integration id and run concurrently for distinct ids. Reads never
// carry credentials.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/cryptox"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/repositories/repomanager"
)

// EventKind tags a lifecycle notification.
type EventKind int

const (
	Upserted EventKind = iota
	Removed
)

func (k EventKind) String() string {
	if k == Removed {
		return "removed"
	}
	return "upserted"
}

// Event is delivered to subscribers after a committed change. Integration
// is redacted; for Removed only ID and UserID are meaningful.
type Event struct {
	Kind        EventKind
	Integration models.Integration
}

// Registry holds the configured integrations.
type Registry struct {
	store  dbx.Store
	repos  repomanager.RepositoryManager
	sealer *cryptox.Sealer
	admin  backend.IntegrationAdmin
	clock  clock.Clock
	logger logging.Logger

	locks *keyedMutex

	subsMu sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// Option customizes a Registry.
type Option func(*Registry)

// WithSealer enables credential storage; without it credentials passed to
// Upsert are discarded, which is the portal-mode behavior.
func WithSealer(s *cryptox.Sealer) Option { return func(r *Registry) { r.sealer = s } }

// WithAdmin makes a remote system authoritative for integration records.
func WithAdmin(a backend.IntegrationAdmin) Option { return func(r *Registry) { r.admin = a } }

// WithClock sets the time source for timestamps.
func WithClock(c clock.Clock) Option { return func(r *Registry) { r.clock = c } }

func New(store dbx.Store, repos repomanager.RepositoryManager, logger logging.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		repos:  repos,
		clock:  clock.Real(),
		logger: logger.With("module", "registry"),
		locks:  newKeyedMutex(),
		subs:   make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func lockKey(id string) string { return "integration:" + id }

func redactAll(list []models.Integration) []models.Integration {
	out := make([]models.Integration, len(list))
	for i, in := range list {
		out[i] = in.Redacted()
	}
	return out
}

// List returns every integration.
func (r *Registry) List(ctx context.Context) ([]models.Integration, error) {
	list, err := r.repos.Integrations(r.store.Conn()).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	return redactAll(list), nil
}

// ListByUser returns the integrations owned by userID.
func (r *Registry) ListByUser(ctx context.Context, userID string) ([]models.Integration, error) {
	list, err := r.repos.Integrations(r.store.Conn()).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	return redactAll(list), nil
}

// Get returns one integration or common.ErrorNotFound.
func (r *Registry) Get(ctx context.Context, id string) (models.Integration, error) {
	in, err := r.repos.Integrations(r.store.Conn()).Get(ctx, id)
	if err != nil {
		return models.Integration{}, fmt.Errorf("get integration %s: %w", id, err)
	}
	return in.Redacted(), nil
}

// Subscribe registers fn for lifecycle events and returns a function that
// removes it. fn runs synchronously after the change is committed, while
// the integration is still locked; it must not block or write to the
// registry.
func (r *Registry) Subscribe(fn func(Event)) func() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) notify(ev Event) {
	r.subsMu.RLock()
	fns := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subsMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
