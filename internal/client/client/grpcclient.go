package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/api"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// calSyncAPI is the generated-style client surface; a seam for tests.
type calSyncAPI interface {
	ListIntegrations(ctx context.Context, in *api.ListIntegrationsRequest, opts ...grpc.CallOption) (*api.ListIntegrationsResponse, error)
	BeginAuthorization(ctx context.Context, in *api.BeginAuthorizationRequest, opts ...grpc.CallOption) (*api.BeginAuthorizationResponse, error)
	AwaitAuthorization(ctx context.Context, in *api.FlowRequest, opts ...grpc.CallOption) (*api.IntegrationResponse, error)
	CancelAuthorization(ctx context.Context, in *api.FlowRequest, opts ...grpc.CallOption) (*api.Empty, error)
	SetSyncEnabled(ctx context.Context, in *api.SetSyncEnabledRequest, opts ...grpc.CallOption) (*api.IntegrationResponse, error)
	RemoveIntegration(ctx context.Context, in *api.IntegrationRequest, opts ...grpc.CallOption) (*api.Empty, error)
	DeactivateIntegration(ctx context.Context, in *api.IntegrationRequest, opts ...grpc.CallOption) (*api.IntegrationResponse, error)
	RefreshIntegration(ctx context.Context, in *api.IntegrationRequest, opts ...grpc.CallOption) (*api.IntegrationResponse, error)
	SyncWindow(ctx context.Context, in *api.SyncWindowRequest, opts ...grpc.CallOption) (*api.SyncWindowResponse, error)
	ResolveConflict(ctx context.Context, in *api.ResolveConflictRequest, opts ...grpc.CallOption) (*api.ResolveConflictResponse, error)
	ResolveConflicts(ctx context.Context, in *api.ResolveConflictsRequest, opts ...grpc.CallOption) (*api.ResolveConflictsResponse, error)
	ConflictAudit(ctx context.Context, in *api.ConflictRequest, opts ...grpc.CallOption) (*api.ConflictAuditResponse, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      calSyncAPI

	mu           sync.RWMutex
	sessionToken string
}

var _ Client = (*GRPCClient)(nil)

func withSessionToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AuthorizationHeaderName)
	md.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) sessionTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	s.mu.RLock()
	token := s.sessionToken
	s.mu.RUnlock()

	if token != "" {
		ctx = withSessionToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewCalSyncClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {

	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(s.sessionTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewClient(conn)
	return nil
}

// SetSessionToken sets the portal session token sent with every call.
func (s *GRPCClient) SetSessionToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionToken = token
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) ListIntegrations(ctx context.Context, reload bool) ([]models.Integration, error) {
	resp, err := s.client.ListIntegrations(ctx, &api.ListIntegrationsRequest{Reload: reload})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Integrations, nil
}

func (s *GRPCClient) BeginAuthorization(ctx context.Context, provider models.Provider) (string, string, error) {
	resp, err := s.client.BeginAuthorization(ctx, &api.BeginAuthorizationRequest{Provider: provider})
	if err != nil {
		return "", "", s.mapError(err)
	}
	return resp.FlowID, resp.URL, nil
}

func (s *GRPCClient) AwaitAuthorization(ctx context.Context, flowID string) (models.Integration, error) {
	resp, err := s.client.AwaitAuthorization(ctx, &api.FlowRequest{FlowID: flowID})
	if err != nil {
		return models.Integration{}, s.mapError(err)
	}
	return resp.Integration, nil
}

func (s *GRPCClient) CancelAuthorization(ctx context.Context, flowID string) error {
	_, err := s.client.CancelAuthorization(ctx, &api.FlowRequest{FlowID: flowID})
	return s.mapError(err)
}

func (s *GRPCClient) SetSyncEnabled(ctx context.Context, integrationID string, enabled bool) (models.Integration, error) {
	resp, err := s.client.SetSyncEnabled(ctx, &api.SetSyncEnabledRequest{IntegrationID: integrationID, Enabled: enabled})
	if err != nil {
		return models.Integration{}, s.mapError(err)
	}
	return resp.Integration, nil
}

func (s *GRPCClient) RemoveIntegration(ctx context.Context, integrationID string) error {
	_, err := s.client.RemoveIntegration(ctx, &api.IntegrationRequest{IntegrationID: integrationID})
	return s.mapError(err)
}

func (s *GRPCClient) DeactivateIntegration(ctx context.Context, integrationID string) (models.Integration, error) {
	resp, err := s.client.DeactivateIntegration(ctx, &api.IntegrationRequest{IntegrationID: integrationID})
	if err != nil {
		return models.Integration{}, s.mapError(err)
	}
	return resp.Integration, nil
}

func (s *GRPCClient) RefreshIntegration(ctx context.Context, integrationID string) (models.Integration, error) {
	resp, err := s.client.RefreshIntegration(ctx, &api.IntegrationRequest{IntegrationID: integrationID})
	if err != nil {
		return models.Integration{}, s.mapError(err)
	}
	return resp.Integration, nil
}

func (s *GRPCClient) SyncWindow(ctx context.Context, start, end time.Time) (models.CalendarView, error) {
	resp, err := s.client.SyncWindow(ctx, &api.SyncWindowRequest{Start: start, End: end})
	if err != nil {
		return models.CalendarView{}, s.mapError(err)
	}
	return resp.View, nil
}

func (s *GRPCClient) ResolveConflict(ctx context.Context, conflictID string, action models.ResolutionAction) (models.SyncConflict, error) {
	resp, err := s.client.ResolveConflict(ctx, &api.ResolveConflictRequest{ConflictID: conflictID, Action: action})
	if err != nil {
		return models.SyncConflict{}, s.mapError(err)
	}
	return resp.Conflict, nil
}

func (s *GRPCClient) ResolveConflicts(ctx context.Context, conflictIDs []string, action models.ResolutionAction) (*api.ResolveConflictsResponse, error) {
	resp, err := s.client.ResolveConflicts(ctx, &api.ResolveConflictsRequest{ConflictIDs: conflictIDs, Action: action})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ConflictAudit(ctx context.Context, conflictID string) ([]models.ResolutionRecord, error) {
	resp, err := s.client.ConflictAudit(ctx, &api.ConflictRequest{ConflictID: conflictID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Records, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrForbidden, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Unknown:
		return fmt.Errorf("rpc error: %w", err)
	default:
		return fmt.Errorf("%s: %s", st.Code(), st.Message())
	}
}
