package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/api"
	"github.com/dmitrijs2005/calsync/internal/client/client"
	"github.com/dmitrijs2005/calsync/internal/client/config"
	"github.com/dmitrijs2005/calsync/internal/models"
)

type fakeClient struct {
	mu    sync.Mutex
	token string
	calls []string

	integrations []models.Integration
	view         models.CalendarView
	failed       map[string]string
	records      []models.ResolutionRecord
	blockAwait   bool
	err          error

	syncStart, syncEnd time.Time
	resolvedIDs        []string
}

var _ client.Client = (*fakeClient)(nil)

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) SetSessionToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeClient) ListIntegrations(ctx context.Context, reload bool) ([]models.Integration, error) {
	f.record("list")
	return f.integrations, f.err
}

func (f *fakeClient) BeginAuthorization(ctx context.Context, provider models.Provider) (string, string, error) {
	f.record("begin:" + string(provider))
	return "flow-1", "https://consent.example/auth", f.err
}

func (f *fakeClient) AwaitAuthorization(ctx context.Context, flowID string) (models.Integration, error) {
	f.record("await:" + flowID)
	if f.blockAwait {
		<-ctx.Done()
		return models.Integration{}, client.ErrUnavailable
	}
	return models.Integration{ID: "int-1", Provider: models.ProviderGoogle, CalendarName: "Work"}, f.err
}

func (f *fakeClient) CancelAuthorization(ctx context.Context, flowID string) error {
	f.record("cancel:" + flowID)
	return f.err
}

func (f *fakeClient) SetSyncEnabled(ctx context.Context, integrationID string, enabled bool) (models.Integration, error) {
	if enabled {
		f.record("enable:" + integrationID)
	} else {
		f.record("disable:" + integrationID)
	}
	return models.Integration{ID: integrationID, SyncEnabled: enabled}, f.err
}

func (f *fakeClient) RemoveIntegration(ctx context.Context, integrationID string) error {
	f.record("remove:" + integrationID)
	return f.err
}

func (f *fakeClient) DeactivateIntegration(ctx context.Context, integrationID string) (models.Integration, error) {
	f.record("deactivate:" + integrationID)
	return models.Integration{ID: integrationID, Status: models.StatusInactive}, f.err
}

func (f *fakeClient) RefreshIntegration(ctx context.Context, integrationID string) (models.Integration, error) {
	f.record("refresh:" + integrationID)
	return models.Integration{ID: integrationID}, f.err
}

func (f *fakeClient) SyncWindow(ctx context.Context, start, end time.Time) (models.CalendarView, error) {
	f.record("sync")
	f.syncStart, f.syncEnd = start, end
	return f.view, f.err
}

func (f *fakeClient) ResolveConflict(ctx context.Context, conflictID string, action models.ResolutionAction) (models.SyncConflict, error) {
	f.record("resolve:" + conflictID)
	f.resolvedIDs = []string{conflictID}
	return models.SyncConflict{ID: conflictID}, f.err
}

func (f *fakeClient) ResolveConflicts(ctx context.Context, conflictIDs []string, action models.ResolutionAction) (*api.ResolveConflictsResponse, error) {
	f.record("resolveAll")
	f.resolvedIDs = conflictIDs
	resp := &api.ResolveConflictsResponse{Failed: f.failed}
	for _, id := range conflictIDs {
		if _, bad := f.failed[id]; !bad {
			resp.Resolved = append(resp.Resolved, models.SyncConflict{ID: id})
		}
	}
	return resp, f.err
}

func (f *fakeClient) ConflictAudit(ctx context.Context, conflictID string) ([]models.ResolutionRecord, error) {
	f.record("audit:" + conflictID)
	return f.records, f.err
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.SessionToken = "tok"
	return c
}

// newTestApp returns an App logged in with a fake client, reading input and
// writing to the returned buffer.
func newTestApp(f *fakeClient, input string) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	a := newApp(testConfig(), f, strings.NewReader(input), out)
	a.location = time.UTC
	return a, out
}
