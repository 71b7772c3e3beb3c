// Package credentials stores sealed OAuth credentials, one blob per
// integration. Sealing and opening happen in the caller.
package credentials

import "context"

type Repository interface {
	// Save stores or replaces the sealed blob for integrationID.
	Save(ctx context.Context, integrationID string, sealed []byte) error
	// Load returns the sealed blob or common.ErrorNotFound.
	Load(ctx context.Context, integrationID string) ([]byte, error)
	Delete(ctx context.Context, integrationID string) error
}
