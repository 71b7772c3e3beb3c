package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/models"
)

// Upsert creates or replaces an integration. It is the write path used by
// authorization and, through Update, by token refresh.
func (r *Registry) Upsert(ctx context.Context, in models.Integration) (models.Integration, error) {
	return r.write(ctx, in.ID, true, func(_ *models.Integration) (*models.Integration, error) {
		next := in
		return &next, nil
	})
}

// Update applies mutate to the current record under the per-id lock, so a
// refresh result cannot overwrite a concurrent manual edit.
func (r *Registry) Update(ctx context.Context, id string, mutate func(*models.Integration) error) (models.Integration, error) {
	return r.write(ctx, id, true, func(cur *models.Integration) (*models.Integration, error) {
		if cur == nil {
			return nil, common.ErrorNotFound
		}
		next := *cur
		if err := mutate(&next); err != nil {
			return nil, err
		}
		next.ID = cur.ID
		return &next, nil
	})
}

// write runs one serialized read-modify-write for id. Subscribers are
// notified before the per-id lock is released, so events for one id arrive
// in commit order. checkTransition is false
// only when mirroring records from the authoritative backend.
func (r *Registry) write(ctx context.Context, id string, checkTransition bool, build func(cur *models.Integration) (*models.Integration, error)) (models.Integration, error) {
	if id == "" {
		return models.Integration{}, fmt.Errorf("%w: empty id", common.ErrInvalidIntegration)
	}
	saved, err := r.writeLocked(ctx, id, checkTransition, build)
	if err != nil {
		return models.Integration{}, fmt.Errorf("write integration %s: %w", id, err)
	}
	return saved, nil
}

func (r *Registry) writeLocked(ctx context.Context, id string, checkTransition bool, build func(cur *models.Integration) (*models.Integration, error)) (models.Integration, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	var saved models.Integration
	err := r.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.LockKey(ctx, tx, lockKey(id)); err != nil {
			return err
		}
		repo := r.repos.Integrations(tx)

		cur, err := repo.Get(ctx, id)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if errors.Is(err, common.ErrorNotFound) {
			cur = nil
		}

		next, err := build(cur)
		if err != nil {
			return err
		}

		now := r.clock.Now()
		if cur != nil {
			if checkTransition && !cur.Status.CanTransition(next.Status) {
				return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, cur.Status, next.Status)
			}
			next.CreatedAt = cur.CreatedAt
		} else if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now

		if err := next.Validate(); err != nil {
			return err
		}
		if err := repo.Upsert(ctx, next); err != nil {
			return err
		}
		if !next.Credentials.Empty() && r.sealer != nil {
			blob, err := r.sealer.Seal(next.ID, next.Credentials)
			if err != nil {
				return fmt.Errorf("seal credentials: %w", err)
			}
			if err := r.repos.Credentials(tx).Save(ctx, next.ID, blob); err != nil {
				return err
			}
		}
		saved = next.Redacted()
		return nil
	})
	if err != nil {
		return models.Integration{}, err
	}
	r.notify(Event{Kind: Upserted, Integration: saved})
	return saved, nil
}

// Remove deletes the integration and its credentials. When a remote
// authority is configured it is told first; a record it no longer knows
// is still removed locally.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if r.admin != nil {
		if err := r.admin.DeleteIntegration(ctx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("remove integration %s: %w", id, err)
		}
	}
	_, err := r.removeLocal(ctx, id)
	return err
}

func (r *Registry) removeLocal(ctx context.Context, id string) (models.Integration, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	removed := models.Integration{ID: id}
	err := r.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.LockKey(ctx, tx, lockKey(id)); err != nil {
			return err
		}
		if cur, err := r.repos.Integrations(tx).Get(ctx, id); err == nil {
			removed = cur.Redacted()
		}
		if err := r.repos.Credentials(tx).Delete(ctx, id); err != nil {
			return err
		}
		return r.repos.Integrations(tx).Delete(ctx, id)
	})
	if err != nil {
		return models.Integration{}, fmt.Errorf("remove integration %s: %w", id, err)
	}
	r.notify(Event{Kind: Removed, Integration: removed})
	r.logger.Info(ctx, "integration removed", "integration_id", id)
	return removed, nil
}
