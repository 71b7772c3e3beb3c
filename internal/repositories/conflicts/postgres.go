package conflicts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/models"
)

const selectColumns = `id, integration_id, remote_event_id, appointment_id, kind, fingerprint, details,
		       detected_at, resolution_action, resolved_at, resolved_by`

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

func scanConflict(s rowScanner) (*models.SyncConflict, error) {
	var (
		c          models.SyncConflict
		kind       string
		details    []byte
		action     sql.NullString
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	err := s.Scan(&c.ID, &c.IntegrationID, &c.RemoteEventID, &c.AppointmentID, &kind, &c.Fingerprint,
		&details, &c.DetectedAt, &action, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, err
	}
	c.Kind = models.ConflictKind(kind)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &c.Details); err != nil {
			return nil, fmt.Errorf("decode details of %s: %w", c.ID, err)
		}
	}
	if action.Valid {
		c.Resolution = &models.Resolution{
			Action:     models.ResolutionAction(action.String),
			ResolvedAt: resolvedAt.Time,
			ResolvedBy: resolvedBy.String,
		}
	}
	return &c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.SyncConflict, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM conflicts
		WHERE id = $1
	`
	c, err := scanConflict(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Save(ctx context.Context, c *models.SyncConflict) error {
	details, err := json.Marshal(c.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}

	var (
		action     sql.NullString
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	if c.Resolution != nil {
		action = sql.NullString{String: string(c.Resolution.Action), Valid: true}
		resolvedAt = sql.NullTime{Time: c.Resolution.ResolvedAt, Valid: true}
		resolvedBy = sql.NullString{String: c.Resolution.ResolvedBy, Valid: true}
	}

	query := `
		INSERT INTO conflicts (id, integration_id, remote_event_id, appointment_id, kind, fingerprint,
			details, detected_at, resolution_action, resolved_at, resolved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			details = EXCLUDED.details,
			detected_at = EXCLUDED.detected_at,
			resolution_action = EXCLUDED.resolution_action,
			resolved_at = EXCLUDED.resolved_at,
			resolved_by = EXCLUDED.resolved_by
		WHERE conflicts.fingerprint <> EXCLUDED.fingerprint
			OR conflicts.resolution_action IS NULL
	`
	_, err = r.db.ExecContext(ctx, query, c.ID, c.IntegrationID, c.RemoteEventID, c.AppointmentID,
		string(c.Kind), c.Fingerprint, details, c.DetectedAt, action, resolvedAt, resolvedBy)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkResolved(ctx context.Context, id string, res models.Resolution) error {
	query := `
		UPDATE conflicts
		SET resolution_action = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, string(res.Action), res.ResolvedAt, res.ResolvedBy)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) AppendAudit(ctx context.Context, rec models.ResolutionRecord) error {
	query := `
		INSERT INTO conflict_resolutions (id, conflict_id, action, resolved_by, resolved_at, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.ConflictID, string(rec.Action), rec.ResolvedBy,
		rec.ResolvedAt, rec.Fingerprint)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAudit(ctx context.Context, conflictID string) ([]models.ResolutionRecord, error) {
	query := `
		SELECT id, conflict_id, action, resolved_by, resolved_at, fingerprint
		FROM conflict_resolutions
		WHERE conflict_id = $1
		ORDER BY resolved_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, conflictID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.ResolutionRecord
	for rows.Next() {
		var (
			rec    models.ResolutionRecord
			action string
		)
		if err := rows.Scan(&rec.ID, &rec.ConflictID, &action, &rec.ResolvedBy, &rec.ResolvedAt, &rec.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		rec.Action = models.ResolutionAction(action)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
