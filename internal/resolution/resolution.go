// Package resolution applies human decisions to sync conflicts. A decision
// is recorded on the conflict and in an append-only audit trail; neither
// the appointment nor the remote event is ever modified.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/calsync/internal/archive"
	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/repositories/repomanager"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	store       dbx.Store
	repos       repomanager.RepositoryManager
	reporter    backend.ConflictReporter
	archiver    archive.Archiver
	clock       clock.Clock
	concurrency int
	logger      logging.Logger
}

type Option func(*Engine)

// WithReporter tells the remote system about every decision before it is
// recorded locally.
func WithReporter(r backend.ConflictReporter) Option { return func(e *Engine) { e.reporter = r } }

// WithArchiver copies audit records to long-term storage.
func WithArchiver(a archive.Archiver) Option { return func(e *Engine) { e.archiver = a } }

func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

func New(store dbx.Store, repos repomanager.RepositoryManager, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		repos:       repos,
		archiver:    archive.Nop{},
		clock:       clock.Real(),
		concurrency: 4,
		logger:      logger.With("module", "resolution"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LockKey names the advisory lock that serializes writes to one conflict.
func LockKey(id string) string { return "conflict:" + id }

// errNoop signals, from inside the transaction, that the conflict already
// carries the requested action.
var errNoop = errors.New("already resolved with this action")

// Resolve records action on conflict id on behalf of actor. Repeating the
// recorded action is a no-op; a different action on a resolved conflict
// fails with common.ErrConflictAlreadyResolved.
func (e *Engine) Resolve(ctx context.Context, actor, id string, action models.ResolutionAction) (models.SyncConflict, error) {
	if !action.Valid() {
		return models.SyncConflict{}, fmt.Errorf("%w: %q", common.ErrInvalidResolution, action)
	}

	cur, err := e.repos.Conflicts(e.store.Conn()).Get(ctx, id)
	if err != nil {
		return models.SyncConflict{}, fmt.Errorf("conflict %s: %w", id, err)
	}
	if cur.Resolved() {
		if err := checkResolved(cur, action); err != nil {
			return models.SyncConflict{}, err
		}
		return *cur, nil
	}

	if e.reporter != nil {
		if err := e.reporter.ReportResolution(ctx, id, action); err != nil {
			return models.SyncConflict{}, fmt.Errorf("report resolution of %s: %w", id, err)
		}
	}

	res := models.Resolution{Action: action, ResolvedAt: e.clock.Now(), ResolvedBy: actor}
	var (
		saved models.SyncConflict
		rec   models.ResolutionRecord
	)
	err = e.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.LockKey(ctx, tx, LockKey(id)); err != nil {
			return err
		}
		repo := e.repos.Conflicts(tx)
		c, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.Resolved() {
			if err := checkResolved(c, action); err != nil {
				return err
			}
			saved = *c
			return errNoop
		}
		if err := repo.MarkResolved(ctx, id, res); err != nil {
			return err
		}
		rec = models.ResolutionRecord{
			ID:          uuid.NewString(),
			ConflictID:  id,
			Action:      action,
			ResolvedBy:  actor,
			ResolvedAt:  res.ResolvedAt,
			Fingerprint: c.Fingerprint,
		}
		if err := repo.AppendAudit(ctx, rec); err != nil {
			return err
		}
		c.Resolution = &res
		saved = *c
		return nil
	})
	if errors.Is(err, errNoop) {
		return saved, nil
	}
	if err != nil {
		return models.SyncConflict{}, fmt.Errorf("record resolution of %s: %w", id, err)
	}

	if err := e.archiver.Archive(ctx, rec); err != nil {
		e.logger.Warn(ctx, "audit archive failed", "conflict_id", id, "error", err)
	}
	e.logger.Info(ctx, "conflict resolved", "conflict_id", id, "action", action, "resolved_by", actor)
	return saved, nil
}

func checkResolved(c *models.SyncConflict, action models.ResolutionAction) error {
	if c.Resolution.Action == action {
		return nil
	}
	return fmt.Errorf("%w: %s is already %s", common.ErrConflictAlreadyResolved, c.ID, c.Resolution.Action)
}

// BatchResult is the outcome of ResolveAll.
type BatchResult struct {
	Resolved []models.SyncConflict
	Failed   map[string]error
}

// ResolveAll applies action to every id independently. A failing conflict
// never stops the others; the returned error combines every failure.
func (e *Engine) ResolveAll(ctx context.Context, actor string, ids []string, action models.ResolutionAction) (BatchResult, error) {
	if !action.Valid() {
		return BatchResult{}, fmt.Errorf("%w: %q", common.ErrInvalidResolution, action)
	}

	resolved := make([]*models.SyncConflict, len(ids))
	result := BatchResult{Failed: map[string]error{}}
	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			c, err := e.Resolve(gctx, actor, id, action)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err
				errs = multierr.Append(errs, err)
				return nil
			}
			resolved[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range resolved {
		if c != nil {
			result.Resolved = append(result.Resolved, *c)
		}
	}
	if errs != nil {
		e.logger.Warn(ctx, "bulk resolution incomplete", "requested", len(ids), "failed", len(result.Failed))
	}
	return result, errs
}

// Audit returns the recorded decisions for a conflict, oldest first.
func (e *Engine) Audit(ctx context.Context, id string) ([]models.ResolutionRecord, error) {
	return e.repos.Conflicts(e.store.Conn()).ListAudit(ctx, id)
}

// Conflict returns the stored conflict id.
func (e *Engine) Conflict(ctx context.Context, id string) (models.SyncConflict, error) {
	c, err := e.repos.Conflicts(e.store.Conn()).Get(ctx, id)
	if err != nil {
		return models.SyncConflict{}, err
	}
	return *c, nil
}
