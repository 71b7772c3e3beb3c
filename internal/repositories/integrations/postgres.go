package integrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/models"
)

const selectColumns = `id, user_id, provider, calendar_id, calendar_name, status, sync_enabled,
		       last_synced_at, expires_at, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(s rowScanner) (*models.Integration, error) {
	var (
		in         models.Integration
		provider   string
		status     string
		lastSynced sql.NullTime
		expires    sql.NullTime
	)
	err := s.Scan(&in.ID, &in.UserID, &provider, &in.CalendarID, &in.CalendarName, &status,
		&in.SyncEnabled, &lastSynced, &expires, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.Provider = models.Provider(provider)
	in.Status = models.Status(status)
	if lastSynced.Valid {
		t := lastSynced.Time
		in.LastSyncedAt = &t
	}
	if expires.Valid {
		t := expires.Time
		in.ExpiresAt = &t
	}
	return &in, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]models.Integration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// List returns all integrations.
func (r *PostgresRepository) List(ctx context.Context) ([]models.Integration, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM integrations
		ORDER BY created_at, id
	`
	return r.query(ctx, query)
}

// ListByUser returns integrations owned by userID.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Integration, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM integrations
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	return r.query(ctx, query, userID)
}

// Get returns one integration or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Integration, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM integrations
		WHERE id = $1
	`
	in, err := scanIntegration(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return in, nil
}

// Upsert writes every column of in; created_at is kept on update.
func (r *PostgresRepository) Upsert(ctx context.Context, in *models.Integration) error {
	query := `
		INSERT INTO integrations (id, user_id, provider, calendar_id, calendar_name, status,
			sync_enabled, last_synced_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			provider = EXCLUDED.provider,
			calendar_id = EXCLUDED.calendar_id,
			calendar_name = EXCLUDED.calendar_name,
			status = EXCLUDED.status,
			sync_enabled = EXCLUDED.sync_enabled,
			last_synced_at = EXCLUDED.last_synced_at,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, in.ID, in.UserID, string(in.Provider), in.CalendarID,
		in.CalendarName, string(in.Status), in.SyncEnabled, nullTime(in.LastSyncedAt),
		nullTime(in.ExpiresAt), in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// Delete removes the integration row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM integrations
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
