// Package conflicts persists sync conflicts and their append-only
// resolution audit trail.
package conflicts

import (
	"context"

	"github.com/dmitrijs2005/calsync/internal/models"
)

// Repository persists conflicts. Conflicts are never deleted; resolving
// one updates its resolution columns and appends an audit record.
type Repository interface {
	// Get returns the conflict or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.SyncConflict, error)

	// Save inserts the conflict or overwrites the stored row with the same id,
	// including its resolution columns. A resolved row is only overwritten
	// when the fingerprint differs.
	Save(ctx context.Context, c *models.SyncConflict) error

	// MarkResolved records the resolution on an existing conflict.
	MarkResolved(ctx context.Context, id string, res models.Resolution) error

	// AppendAudit adds one immutable audit record.
	AppendAudit(ctx context.Context, rec models.ResolutionRecord) error

	// ListAudit returns the audit trail of a conflict, oldest first.
	ListAudit(ctx context.Context, conflictID string) ([]models.ResolutionRecord, error)
}
