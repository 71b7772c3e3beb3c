package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/calsync/internal/api"
	"github.com/dmitrijs2005/calsync/internal/models"
)

type Client interface {
	Close() error
	SetSessionToken(token string)
	ListIntegrations(ctx context.Context, reload bool) ([]models.Integration, error)
	BeginAuthorization(ctx context.Context, provider models.Provider) (flowID, url string, err error)
	AwaitAuthorization(ctx context.Context, flowID string) (models.Integration, error)
	CancelAuthorization(ctx context.Context, flowID string) error
	SetSyncEnabled(ctx context.Context, integrationID string, enabled bool) (models.Integration, error)
	RemoveIntegration(ctx context.Context, integrationID string) error
	DeactivateIntegration(ctx context.Context, integrationID string) (models.Integration, error)
	RefreshIntegration(ctx context.Context, integrationID string) (models.Integration, error)
	SyncWindow(ctx context.Context, start, end time.Time) (models.CalendarView, error)
	ResolveConflict(ctx context.Context, conflictID string, action models.ResolutionAction) (models.SyncConflict, error)
	ResolveConflicts(ctx context.Context, conflictIDs []string, action models.ResolutionAction) (*api.ResolveConflictsResponse, error)
	ConflictAudit(ctx context.Context, conflictID string) ([]models.ResolutionRecord, error)
}
