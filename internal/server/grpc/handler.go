package grpc

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/api"
	"github.com/dmitrijs2005/calsync/internal/authflow"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ownIntegration loads id and checks that the caller owns it.
func (s *GRPCServer) ownIntegration(ctx context.Context, id string) (models.Integration, error) {
	in, err := s.svc.Integrations.Get(ctx, id)
	if err != nil {
		return models.Integration{}, err
	}
	if in.UserID != userIDFrom(ctx) {
		return models.Integration{}, fmt.Errorf("integration %s: %w", id, common.ErrorForbidden)
	}
	return in, nil
}

func (s *GRPCServer) ownConflict(ctx context.Context, id string) error {
	c, err := s.svc.Resolver.Conflict(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.ownIntegration(ctx, c.IntegrationID); err != nil {
		return fmt.Errorf("conflict %s: %w", id, common.ErrorForbidden)
	}
	return nil
}

func (s *GRPCServer) ownFlow(ctx context.Context, id string) (*authflow.Flow, error) {
	f, ok := s.svc.Authorizations.Flow(id)
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", id, common.ErrorNotFound)
	}
	if f.UserID() != userIDFrom(ctx) {
		return nil, fmt.Errorf("flow %s: %w", id, common.ErrorForbidden)
	}
	return f, nil
}

func (s *GRPCServer) ListIntegrations(ctx context.Context, req *api.ListIntegrationsRequest) (*api.ListIntegrationsResponse, error) {
	userID := userIDFrom(ctx)

	var (
		list []models.Integration
		err  error
	)
	if req.Reload {
		list, err = s.svc.Integrations.Reload(ctx, userID)
	} else {
		list, err = s.svc.Integrations.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, s.toStatus(ctx, "ListIntegrations", err)
	}
	if list == nil {
		list = []models.Integration{}
	}
	return &api.ListIntegrationsResponse{Integrations: list}, nil
}

func (s *GRPCServer) BeginAuthorization(ctx context.Context, req *api.BeginAuthorizationRequest) (*api.BeginAuthorizationResponse, error) {
	if req.Provider == "" {
		return nil, status.Error(codes.InvalidArgument, "provider is required")
	}

	f, err := s.svc.Authorizations.Start(ctx, userIDFrom(ctx), req.Provider)
	if err != nil {
		return nil, s.toStatus(ctx, "BeginAuthorization", err)
	}

	s.logger.Info(ctx, "authorization started", "flow_id", f.ID(), "provider", req.Provider)
	return &api.BeginAuthorizationResponse{FlowID: f.ID(), URL: f.URL()}, nil
}

// AwaitAuthorization blocks until the flow ends or the call's deadline
// passes. An expired call leaves the flow running.
func (s *GRPCServer) AwaitAuthorization(ctx context.Context, req *api.FlowRequest) (*api.IntegrationResponse, error) {
	f, err := s.ownFlow(ctx, req.FlowID)
	if err != nil {
		return nil, s.toStatus(ctx, "AwaitAuthorization", err)
	}

	in, err := f.Wait(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "AwaitAuthorization", err)
	}
	return &api.IntegrationResponse{Integration: in.Redacted()}, nil
}

func (s *GRPCServer) CancelAuthorization(ctx context.Context, req *api.FlowRequest) (*api.Empty, error) {
	f, err := s.ownFlow(ctx, req.FlowID)
	if err != nil {
		return nil, s.toStatus(ctx, "CancelAuthorization", err)
	}
	f.Cancel()
	return &api.Empty{}, nil
}

func (s *GRPCServer) SetSyncEnabled(ctx context.Context, req *api.SetSyncEnabledRequest) (*api.IntegrationResponse, error) {
	if _, err := s.ownIntegration(ctx, req.IntegrationID); err != nil {
		return nil, s.toStatus(ctx, "SetSyncEnabled", err)
	}

	in, err := s.svc.Integrations.SetSyncEnabled(ctx, req.IntegrationID, req.Enabled)
	if err != nil {
		return nil, s.toStatus(ctx, "SetSyncEnabled", err)
	}
	return &api.IntegrationResponse{Integration: in}, nil
}

func (s *GRPCServer) RemoveIntegration(ctx context.Context, req *api.IntegrationRequest) (*api.Empty, error) {
	if _, err := s.ownIntegration(ctx, req.IntegrationID); err != nil {
		return nil, s.toStatus(ctx, "RemoveIntegration", err)
	}

	if err := s.svc.Integrations.Remove(ctx, req.IntegrationID); err != nil {
		return nil, s.toStatus(ctx, "RemoveIntegration", err)
	}

	s.logger.Info(ctx, "integration removed", "integration_id", req.IntegrationID)
	return &api.Empty{}, nil
}

// DeactivateIntegration stops refreshing and syncing the integration but
// keeps its record and credentials.
func (s *GRPCServer) DeactivateIntegration(ctx context.Context, req *api.IntegrationRequest) (*api.IntegrationResponse, error) {
	if _, err := s.ownIntegration(ctx, req.IntegrationID); err != nil {
		return nil, s.toStatus(ctx, "DeactivateIntegration", err)
	}

	in, err := s.svc.Integrations.Deactivate(ctx, req.IntegrationID)
	if err != nil {
		return nil, s.toStatus(ctx, "DeactivateIntegration", err)
	}

	s.logger.Info(ctx, "integration deactivated", "integration_id", req.IntegrationID)
	return &api.IntegrationResponse{Integration: in.Redacted()}, nil
}

func (s *GRPCServer) RefreshIntegration(ctx context.Context, req *api.IntegrationRequest) (*api.IntegrationResponse, error) {
	if _, err := s.ownIntegration(ctx, req.IntegrationID); err != nil {
		return nil, s.toStatus(ctx, "RefreshIntegration", err)
	}

	in, err := s.svc.Refresher.Refresh(ctx, req.IntegrationID)
	if err != nil {
		return nil, s.toStatus(ctx, "RefreshIntegration", err)
	}
	return &api.IntegrationResponse{Integration: in.Redacted()}, nil
}

func (s *GRPCServer) SyncWindow(ctx context.Context, req *api.SyncWindowRequest) (*api.SyncWindowResponse, error) {
	view, err := s.svc.Syncer.SyncWindow(ctx, userIDFrom(ctx), req.Start, req.End)
	if err != nil {
		return nil, s.toStatus(ctx, "SyncWindow", err)
	}
	return &api.SyncWindowResponse{View: view}, nil
}

func (s *GRPCServer) ResolveConflict(ctx context.Context, req *api.ResolveConflictRequest) (*api.ResolveConflictResponse, error) {
	if err := s.ownConflict(ctx, req.ConflictID); err != nil {
		return nil, s.toStatus(ctx, "ResolveConflict", err)
	}

	c, err := s.svc.Resolver.Resolve(ctx, userIDFrom(ctx), req.ConflictID, req.Action)
	if err != nil {
		return nil, s.toStatus(ctx, "ResolveConflict", err)
	}
	return &api.ResolveConflictResponse{Conflict: c}, nil
}

// ResolveConflicts resolves every owned id; the others are reported as
// failed without being touched.
func (s *GRPCServer) ResolveConflicts(ctx context.Context, req *api.ResolveConflictsRequest) (*api.ResolveConflictsResponse, error) {
	if !req.Action.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "%v: %q", common.ErrInvalidResolution, req.Action)
	}

	resp := &api.ResolveConflictsResponse{Resolved: []models.SyncConflict{}, Failed: map[string]string{}}

	owned := make([]string, 0, len(req.ConflictIDs))
	for _, id := range req.ConflictIDs {
		if err := s.ownConflict(ctx, id); err != nil {
			resp.Failed[id] = err.Error()
			continue
		}
		owned = append(owned, id)
	}

	if len(owned) > 0 {
		res, _ := s.svc.Resolver.ResolveAll(ctx, userIDFrom(ctx), owned, req.Action)
		resp.Resolved = append(resp.Resolved, res.Resolved...)
		for id, err := range res.Failed {
			resp.Failed[id] = err.Error()
		}
	}

	return resp, nil
}

func (s *GRPCServer) ConflictAudit(ctx context.Context, req *api.ConflictRequest) (*api.ConflictAuditResponse, error) {
	if err := s.ownConflict(ctx, req.ConflictID); err != nil {
		return nil, s.toStatus(ctx, "ConflictAudit", err)
	}

	records, err := s.svc.Resolver.Audit(ctx, req.ConflictID)
	if err != nil {
		return nil, s.toStatus(ctx, "ConflictAudit", err)
	}
	if records == nil {
		records = []models.ResolutionRecord{}
	}
	return &api.ConflictAuditResponse{Records: records}, nil
}
