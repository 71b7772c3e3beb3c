package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/calsync/internal/api"
	"github.com/dmitrijs2005/calsync/internal/auth"
	"github.com/dmitrijs2005/calsync/internal/authflow"
	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/resolution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "secret"

// ---- fakes ----

type fakeIntegrations struct {
	mu      sync.Mutex
	items   map[string]models.Integration
	bearer  string
	removed []string
	listErr error
}

func (f *fakeIntegrations) ListByUser(ctx context.Context, userID string) ([]models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bearer, _ = backend.BearerFrom(ctx)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Integration
	for _, in := range f.items {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (f *fakeIntegrations) Get(ctx context.Context, id string) (models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.items[id]
	if !ok {
		return models.Integration{}, common.ErrorNotFound
	}
	return in, nil
}

func (f *fakeIntegrations) Reload(ctx context.Context, userID string) ([]models.Integration, error) {
	return f.ListByUser(ctx, userID)
}

func (f *fakeIntegrations) SetSyncEnabled(ctx context.Context, id string, enabled bool) (models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := f.items[id]
	in.SyncEnabled = enabled
	f.items[id] = in
	return in, nil
}

func (f *fakeIntegrations) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeIntegrations) Deactivate(ctx context.Context, id string) (models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := f.items[id]
	in.Status = models.StatusInactive
	in.Credentials = models.Credentials{AccessToken: "secret-access"}
	f.items[id] = in
	return in, nil
}

type fakeRefresher struct{ err error }

func (f fakeRefresher) Refresh(ctx context.Context, id string) (models.Integration, error) {
	if f.err != nil {
		return models.Integration{}, f.err
	}
	return models.Integration{
		ID:          id,
		UserID:      "u1",
		Status:      models.StatusActive,
		Credentials: models.Credentials{AccessToken: "secret-access"},
	}, nil
}

type fakeAuthorizations struct{ startErr error }

func (f fakeAuthorizations) Start(ctx context.Context, userID string, provider models.Provider) (*authflow.Flow, error) {
	return nil, f.startErr
}

func (f fakeAuthorizations) Flow(id string) (*authflow.Flow, bool) { return nil, false }

type fakeSyncer struct {
	view models.CalendarView
	err  error
}

func (f fakeSyncer) SyncWindow(ctx context.Context, userID string, start, end time.Time) (models.CalendarView, error) {
	return f.view, f.err
}

type fakeResolver struct {
	conflicts map[string]models.SyncConflict
	fail      map[string]error
	gotIDs    []string
	audit     map[string][]models.ResolutionRecord
}

func (f *fakeResolver) Conflict(ctx context.Context, id string) (models.SyncConflict, error) {
	c, ok := f.conflicts[id]
	if !ok {
		return models.SyncConflict{}, common.ErrorNotFound
	}
	return c, nil
}

func (f *fakeResolver) Resolve(ctx context.Context, actor, id string, action models.ResolutionAction) (models.SyncConflict, error) {
	if err := f.fail[id]; err != nil {
		return models.SyncConflict{}, err
	}
	c := f.conflicts[id]
	c.Resolution = &models.Resolution{Action: action, ResolvedBy: actor}
	return c, nil
}

func (f *fakeResolver) ResolveAll(ctx context.Context, actor string, ids []string, action models.ResolutionAction) (resolution.BatchResult, error) {
	f.gotIDs = ids
	res := resolution.BatchResult{Failed: map[string]error{}}
	for _, id := range ids {
		c, err := f.Resolve(ctx, actor, id, action)
		if err != nil {
			res.Failed[id] = err
			continue
		}
		res.Resolved = append(res.Resolved, c)
	}
	return res, nil
}

func (f *fakeResolver) Audit(ctx context.Context, id string) ([]models.ResolutionRecord, error) {
	return f.audit[id], nil
}

// ---- helpers ----

func newServices() Services {
	return Services{
		Integrations: &fakeIntegrations{items: map[string]models.Integration{
			"int-1": {ID: "int-1", UserID: "u1", Status: models.StatusActive},
			"int-2": {ID: "int-2", UserID: "u2", Status: models.StatusActive},
		}},
		Refresher:      fakeRefresher{},
		Authorizations: fakeAuthorizations{},
		Syncer:         fakeSyncer{},
		Resolver: &fakeResolver{conflicts: map[string]models.SyncConflict{
			"c-1": {ID: "c-1", IntegrationID: "int-1"},
			"c-2": {ID: "c-2", IntegrationID: "int-2"},
			"c-3": {ID: "c-3", IntegrationID: "int-1"},
		}},
	}
}

func startServer(t *testing.T, svc Services) *api.Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", logging.NopLogger{}, svc, testSecret).NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return api.NewClient(conn)
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return tok
}

func asUser(t *testing.T, userID string) context.Context {
	t.Helper()
	return metadata.AppendToOutgoingContext(context.Background(),
		common.AuthorizationHeaderName, common.BearerPrefix+tokenFor(t, userID))
}

// ---- tests ----

func TestInterceptor_RejectsMissingAndMalformedTokens(t *testing.T) {
	c := startServer(t, newServices())

	_, err := c.ListIntegrations(context.Background(), &api.ListIntegrationsRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "missing token", status.Convert(err).Message())

	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AuthorizationHeaderName, tokenFor(t, "u1"))
	_, err = c.ListIntegrations(ctx, &api.ListIntegrationsRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx = metadata.AppendToOutgoingContext(context.Background(), common.AuthorizationHeaderName, common.BearerPrefix+"not-a-jwt")
	_, err = c.ListIntegrations(ctx, &api.ListIntegrationsRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestListIntegrations_OnlyOwnAndForwardsBearer(t *testing.T) {
	svc := newServices()
	c := startServer(t, svc)

	ctx := asUser(t, "u1")
	resp, err := c.ListIntegrations(ctx, &api.ListIntegrationsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Integrations, 1)
	assert.Equal(t, "int-1", resp.Integrations[0].ID)

	fi := svc.Integrations.(*fakeIntegrations)
	fi.mu.Lock()
	defer fi.mu.Unlock()
	assert.NotEmpty(t, fi.bearer)
}

func TestListIntegrations_EmptyIsNotNil(t *testing.T) {
	c := startServer(t, newServices())

	resp, err := c.ListIntegrations(asUser(t, "nobody"), &api.ListIntegrationsRequest{Reload: true})
	require.NoError(t, err)
	assert.NotNil(t, resp.Integrations)
	assert.Empty(t, resp.Integrations)
}

func TestOwnership_ForeignIntegrationIsDenied(t *testing.T) {
	svc := newServices()
	c := startServer(t, svc)
	ctx := asUser(t, "u1")

	_, err := c.SetSyncEnabled(ctx, &api.SetSyncEnabledRequest{IntegrationID: "int-2", Enabled: false})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = c.RemoveIntegration(ctx, &api.IntegrationRequest{IntegrationID: "int-2"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Empty(t, svc.Integrations.(*fakeIntegrations).removed)

	_, err = c.RemoveIntegration(ctx, &api.IntegrationRequest{IntegrationID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestSetSyncEnabledAndRemove(t *testing.T) {
	svc := newServices()
	c := startServer(t, svc)
	ctx := asUser(t, "u1")

	resp, err := c.SetSyncEnabled(ctx, &api.SetSyncEnabledRequest{IntegrationID: "int-1", Enabled: true})
	require.NoError(t, err)
	assert.True(t, resp.Integration.SyncEnabled)

	_, err = c.RemoveIntegration(ctx, &api.IntegrationRequest{IntegrationID: "int-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"int-1"}, svc.Integrations.(*fakeIntegrations).removed)
}

func TestDeactivateIntegration(t *testing.T) {
	svc := newServices()
	c := startServer(t, svc)
	ctx := asUser(t, "u1")

	resp, err := c.DeactivateIntegration(ctx, &api.IntegrationRequest{IntegrationID: "int-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, resp.Integration.Status)
	assert.True(t, resp.Integration.Credentials.Empty())

	_, err = c.DeactivateIntegration(ctx, &api.IntegrationRequest{IntegrationID: "int-2"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	in, _ := svc.Integrations.Get(context.Background(), "int-2")
	assert.Equal(t, models.StatusActive, in.Status)
}

func TestRefreshIntegration_RedactsAndMapsErrors(t *testing.T) {
	svc := newServices()
	c := startServer(t, svc)
	ctx := asUser(t, "u1")

	resp, err := c.RefreshIntegration(ctx, &api.IntegrationRequest{IntegrationID: "int-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, resp.Integration.Status)
	assert.True(t, resp.Integration.Credentials.Empty())

	svc.Refresher = fakeRefresher{err: common.ErrInvalidGrant}
	c = startServer(t, svc)
	_, err = c.RefreshIntegration(ctx, &api.IntegrationRequest{IntegrationID: "int-1"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestBeginAuthorization(t *testing.T) {
	svc := newServices()
	c := startServer(t, svc)
	ctx := asUser(t, "u1")

	_, err := c.BeginAuthorization(ctx, &api.BeginAuthorizationRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	svc.Authorizations = fakeAuthorizations{startErr: common.ErrFlowInProgress}
	c = startServer(t, svc)
	_, err = c.BeginAuthorization(ctx, &api.BeginAuthorizationRequest{Provider: models.ProviderGoogle})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	svc.Authorizations = fakeAuthorizations{startErr: common.ErrSurfaceBlocked}
	c = startServer(t, svc)
	_, err = c.BeginAuthorization(ctx, &api.BeginAuthorizationRequest{Provider: models.ProviderGoogle})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestAwaitAndCancel_UnknownFlow(t *testing.T) {
	c := startServer(t, newServices())
	ctx := asUser(t, "u1")

	_, err := c.AwaitAuthorization(ctx, &api.FlowRequest{FlowID: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.CancelAuthorization(ctx, &api.FlowRequest{FlowID: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestSyncWindow(t *testing.T) {
	svc := newServices()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.Syncer = fakeSyncer{view: models.CalendarView{
		Appointments: []models.Appointment{{ID: "a1", PatientName: "Jane Doe"}},
	}}
	c := startServer(t, svc)

	resp, err := c.SyncWindow(asUser(t, "u1"), &api.SyncWindowRequest{Start: start, End: start.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, resp.View.Appointments, 1)
	assert.Equal(t, "a1", resp.View.Appointments[0].ID)

	svc.Syncer = fakeSyncer{err: common.ErrInvalidWindow}
	c = startServer(t, svc)
	_, err = c.SyncWindow(asUser(t, "u1"), &api.SyncWindowRequest{Start: start, End: start})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSyncWindow_UnknownErrorIsHidden(t *testing.T) {
	svc := newServices()
	svc.Syncer = fakeSyncer{err: errors.New("pq: connection reset")}
	c := startServer(t, svc)

	_, err := c.SyncWindow(asUser(t, "u1"), &api.SyncWindowRequest{})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "internal error", status.Convert(err).Message())
}

func TestResolveConflict(t *testing.T) {
	svc := newServices()
	c := startServer(t, svc)
	ctx := asUser(t, "u1")

	resp, err := c.ResolveConflict(ctx, &api.ResolveConflictRequest{ConflictID: "c-1", Action: models.KeepInternal})
	require.NoError(t, err)
	require.NotNil(t, resp.Conflict.Resolution)
	assert.Equal(t, "u1", resp.Conflict.Resolution.ResolvedBy)

	_, err = c.ResolveConflict(ctx, &api.ResolveConflictRequest{ConflictID: "c-2", Action: models.KeepInternal})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	svc.Resolver.(*fakeResolver).fail = map[string]error{"c-1": common.ErrConflictAlreadyResolved}
	_, err = c.ResolveConflict(ctx, &api.ResolveConflictRequest{ConflictID: "c-1", Action: models.Merge})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestResolveConflicts_SkipsForeignAndReportsFailures(t *testing.T) {
	svc := newServices()
	fr := svc.Resolver.(*fakeResolver)
	fr.fail = map[string]error{"c-3": common.ErrConflictAlreadyResolved}
	c := startServer(t, svc)

	resp, err := c.ResolveConflicts(asUser(t, "u1"), &api.ResolveConflictsRequest{
		ConflictIDs: []string{"c-1", "c-2", "c-3", "missing"},
		Action:      models.KeepExternal,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c-1", "c-3"}, fr.gotIDs)
	require.Len(t, resp.Resolved, 1)
	assert.Equal(t, "c-1", resp.Resolved[0].ID)
	assert.Len(t, resp.Failed, 3)
	assert.Contains(t, resp.Failed, "c-2")
	assert.Contains(t, resp.Failed, "missing")
	assert.Contains(t, resp.Failed["c-3"], common.ErrConflictAlreadyResolved.Error())
}

func TestConflictAudit(t *testing.T) {
	svc := newServices()
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.Resolver.(*fakeResolver).audit = map[string][]models.ResolutionRecord{
		"c-1": {{ID: "r1", ConflictID: "c-1", Action: models.KeepInternal, ResolvedBy: "u1", ResolvedAt: at}},
		"c-2": {{ID: "r2", ConflictID: "c-2", Action: models.Merge, ResolvedBy: "u2", ResolvedAt: at}},
	}
	c := startServer(t, svc)
	ctx := asUser(t, "u1")

	resp, err := c.ConflictAudit(ctx, &api.ConflictRequest{ConflictID: "c-1"})
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, models.KeepInternal, resp.Records[0].Action)
	assert.True(t, at.Equal(resp.Records[0].ResolvedAt))

	resp, err = c.ConflictAudit(ctx, &api.ConflictRequest{ConflictID: "c-3"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Records)
	assert.Empty(t, resp.Records)

	_, err = c.ConflictAudit(ctx, &api.ConflictRequest{ConflictID: "c-2"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestResolveConflicts_InvalidAction(t *testing.T) {
	c := startServer(t, newServices())

	_, err := c.ResolveConflicts(asUser(t, "u1"), &api.ResolveConflictsRequest{ConflictIDs: []string{"c-1"}, Action: "delete"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.NopLogger{}, newServices(), testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.NopLogger{}, newServices(), testSecret)
	require.Error(t, srv.Run(context.Background()))
}
