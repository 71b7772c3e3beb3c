package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, integrationID string, sealed []byte) error {
	query := `
		INSERT INTO integration_credentials (integration_id, sealed, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (integration_id) DO UPDATE SET sealed = EXCLUDED.sealed, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, integrationID, sealed); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Load(ctx context.Context, integrationID string) ([]byte, error) {
	query := `
		SELECT sealed
		FROM integration_credentials
		WHERE integration_id = $1
	`
	var sealed []byte
	if err := r.db.QueryRowContext(ctx, query, integrationID).Scan(&sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sealed, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, integrationID string) error {
	query := `
		DELETE FROM integration_credentials
		WHERE integration_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, integrationID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
