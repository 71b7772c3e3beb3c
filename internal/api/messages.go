package api

import (
	"time"

	"github.com/dmitrijs2005/calsync/internal/models"
)

type Empty struct{}

type ListIntegrationsRequest struct {
	// Reload mirrors the backend's list before answering.
	Reload bool `json:"reload,omitempty"`
}

type ListIntegrationsResponse struct {
	Integrations []models.Integration `json:"integrations"`
}

type BeginAuthorizationRequest struct {
	Provider models.Provider `json:"provider"`
}

type BeginAuthorizationResponse struct {
	FlowID string `json:"flowId"`
	URL    string `json:"url"`
}

type FlowRequest struct {
	FlowID string `json:"flowId"`
}

type IntegrationRequest struct {
	IntegrationID string `json:"integrationId"`
}

type SetSyncEnabledRequest struct {
	IntegrationID string `json:"integrationId"`
	Enabled       bool   `json:"enabled"`
}

type IntegrationResponse struct {
	Integration models.Integration `json:"integration"`
}

type SyncWindowRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SyncWindowResponse struct {
	View models.CalendarView `json:"view"`
}

type ResolveConflictRequest struct {
	ConflictID string                  `json:"conflictId"`
	Action     models.ResolutionAction `json:"action"`
}

type ResolveConflictResponse struct {
	Conflict models.SyncConflict `json:"conflict"`
}

type ConflictRequest struct {
	ConflictID string `json:"conflictId"`
}

type ConflictAuditResponse struct {
	Records []models.ResolutionRecord `json:"records"`
}

type ResolveConflictsRequest struct {
	ConflictIDs []string                `json:"conflictIds"`
	Action      models.ResolutionAction `json:"action"`
}

type ResolveConflictsResponse struct {
	Resolved []models.SyncConflict `json:"resolved"`
	// Failed maps conflict ids to the reason they were not resolved.
	Failed map[string]string `json:"failed,omitempty"`
}
