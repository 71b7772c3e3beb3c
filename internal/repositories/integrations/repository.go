// Package integrations declares the storage contract for integration
// records. Credentials are stored separately; see package credentials.
package integrations

import (
	"context"

	"github.com/dmitrijs2005/calsync/internal/models"
)

// Repository persists integrations.
type Repository interface {
	// List returns every stored integration ordered by creation time.
	List(ctx context.Context) ([]models.Integration, error)

	// ListByUser returns the integrations owned by userID.
	ListByUser(ctx context.Context, userID string) ([]models.Integration, error)

	// Get returns the integration with the given id or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Integration, error)

	// Upsert inserts the integration or replaces the stored row with the same id.
	Upsert(ctx context.Context, in *models.Integration) error

	// Delete removes the integration. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}
