package registry

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
	"go.uber.org/multierr"
)

// SetSyncEnabled toggles synchronization. The remote authority, if any,
// is patched first and its answer wins.
func (r *Registry) SetSyncEnabled(ctx context.Context, id string, enabled bool) (models.Integration, error) {
	var remote *models.Integration
	if r.admin != nil {
		var err error
		remote, err = r.admin.PatchIntegration(ctx, id, backend.IntegrationPatch{SyncEnabled: &enabled})
		if err != nil {
			return models.Integration{}, fmt.Errorf("patch integration %s: %w", id, err)
		}
	}
	return r.Update(ctx, id, func(in *models.Integration) error {
		in.SyncEnabled = enabled
		if remote != nil && remote.ExpiresAt != nil {
			in.ExpiresAt = remote.ExpiresAt
		}
		return nil
	})
}

// Deactivate marks the integration inactive without removing it.
func (r *Registry) Deactivate(ctx context.Context, id string) (models.Integration, error) {
	return r.Update(ctx, id, func(in *models.Integration) error {
		in.Status = models.StatusInactive
		return nil
	})
}

// Reload mirrors the remote authority's view of userID's integrations into
// the local store and drops local records it no longer lists. Without a
// remote authority it just returns the local list.
func (r *Registry) Reload(ctx context.Context, userID string) ([]models.Integration, error) {
	if r.admin == nil {
		return r.ListByUser(ctx, userID)
	}
	remote, err := r.admin.ListIntegrations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload integrations: %w", err)
	}

	seen := make(map[string]struct{}, len(remote))
	var errs error
	for _, in := range remote {
		if in.UserID == "" {
			in.UserID = userID
		}
		seen[in.ID] = struct{}{}
		mirrored := in.Redacted()
		if _, err := r.write(ctx, in.ID, false, func(*models.Integration) (*models.Integration, error) {
			return &mirrored, nil
		}); err != nil {
			r.logger.Warn(ctx, "skipping integration on reload", "integration_id", in.ID, "error", err)
			errs = multierr.Append(errs, err)
		}
	}

	local, err := r.repos.Integrations(r.store.Conn()).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload integrations: %w", err)
	}
	for _, in := range local {
		if _, ok := seen[in.ID]; ok {
			continue
		}
		if _, err := r.removeLocal(ctx, in.ID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	list, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return list, errs
}

// Credentials returns the unsealed credentials of an integration. It is
// only available when a sealer is configured.
func (r *Registry) Credentials(ctx context.Context, id string) (models.Credentials, error) {
	if r.sealer == nil {
		return models.Credentials{}, fmt.Errorf("%w: credentials are held by the portal", common.ErrorNotFound)
	}
	blob, err := r.repos.Credentials(r.store.Conn()).Load(ctx, id)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("load credentials %s: %w", id, err)
	}
	var creds models.Credentials
	if err := r.sealer.Open(id, blob, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("open credentials %s: %w", id, err)
	}
	return creds, nil
}
