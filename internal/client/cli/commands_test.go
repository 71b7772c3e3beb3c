package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/calsync/internal/client/client"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApp_UsesConfiguredToken(t *testing.T) {
	f := &fakeClient{}
	a, _ := newTestApp(f, "")

	assert.True(t, a.isLoggedIn())
	assert.Equal(t, "tok", f.token)
}

func TestLogin_ReadsTokenWithoutEcho(t *testing.T) {
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) { return []byte("session-2\n"), nil }

	f := &fakeClient{}
	a, _ := newTestApp(f, "")
	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, "session-2", f.token)
	assert.Equal(t, []string{"list"}, f.calls)
}

func TestLogin_RejectedTokenLogsOut(t *testing.T) {
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) { return []byte("bad"), nil }

	f := &fakeClient{err: client.ErrUnauthorized}
	a, _ := newTestApp(f, "")
	require.ErrorIs(t, a.Login(context.Background()), client.ErrUnauthorized)
	assert.False(t, a.isLoggedIn())
	assert.Empty(t, f.token)

	readPassword = func(int) ([]byte, error) { return []byte("  "), nil }
	require.Error(t, a.Login(context.Background()))
}

func TestIntegrations_Prints(t *testing.T) {
	synced := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &fakeClient{integrations: []models.Integration{
		{ID: "int-1", Provider: models.ProviderGoogle, CalendarName: "Work", Status: models.StatusActive, SyncEnabled: true, LastSyncedAt: &synced},
		{ID: "int-2", Provider: models.ProviderMicrosoft, CalendarName: "Clinic", Status: models.StatusError},
	}}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Integrations(context.Background(), false))
	assert.Contains(t, out.String(), "int-1")
	assert.Contains(t, out.String(), "Clinic")
	assert.Contains(t, out.String(), "never")

	f.integrations = nil
	out.Reset()
	require.NoError(t, a.Integrations(context.Background(), true))
	assert.Contains(t, out.String(), "No integrations")
}

func TestConnect(t *testing.T) {
	f := &fakeClient{}
	a, out := newTestApp(f, "")

	require.Error(t, a.Connect(context.Background(), "yahoo"))
	assert.Empty(t, f.calls)

	require.NoError(t, a.Connect(context.Background(), "google"))
	assert.Equal(t, []string{"begin:google", "await:flow-1"}, f.calls)
	assert.Contains(t, out.String(), "https://consent.example/auth")
	assert.Contains(t, out.String(), `"Work"`)
}

func TestConnect_WaitExpiresLeavesFlowOpen(t *testing.T) {
	f := &fakeClient{blockAwait: true}
	a, out := newTestApp(f, "")
	a.config.AuthorizationWait = 20 * time.Millisecond

	require.NoError(t, a.Connect(context.Background(), "microsoft"))
	assert.Contains(t, out.String(), "still open")
	assert.NotContains(t, f.calls, "cancel:flow-1")
}

func TestRemove_AsksForConfirmation(t *testing.T) {
	f := &fakeClient{}
	a, out := newTestApp(f, "n\ny\n")

	require.NoError(t, a.Remove(context.Background(), "int-1"))
	assert.Empty(t, f.calls)
	assert.Contains(t, out.String(), "Aborted")

	require.NoError(t, a.Remove(context.Background(), "int-1"))
	assert.Equal(t, []string{"remove:int-1"}, f.calls)
}

func TestSync_BuildsWholeDayWindow(t *testing.T) {
	f := &fakeClient{view: models.CalendarView{
		Appointments: []models.Appointment{{
			ID:          "a1",
			PatientName: "Jane Doe",
			Start:       time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
			End:         time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC),
		}},
		Conflicts: []models.SyncConflict{{ID: "c-1", Kind: models.ConflictTimeOverlap, AppointmentID: "a1", RemoteEventID: "ev1"}},
		Failures:  []models.FetchFailure{{IntegrationID: "int-2", Reason: "transient remote failure"}},
	}}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Sync(context.Background(), "2026-06-01", "2026-06-03"))
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), f.syncStart)
	assert.Equal(t, time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC), f.syncEnd)
	assert.Contains(t, out.String(), "Jane Doe")
	assert.Contains(t, out.String(), "c-1")
	assert.Contains(t, out.String(), "UNAVAILABLE CALENDARS")

	require.NoError(t, a.Sync(context.Background(), "2026-06-05", ""))
	assert.Equal(t, time.Date(2026, 6, 6, 0, 0, 0, 0, time.UTC), f.syncEnd)

	require.Error(t, a.Sync(context.Background(), "06/01/2026", ""))
	require.Error(t, a.Sync(context.Background(), "2026-06-01", "tomorrow"))
}

func TestResolve(t *testing.T) {
	f := &fakeClient{}
	a, out := newTestApp(f, "")
	ctx := context.Background()

	require.Error(t, a.Resolve(ctx, "delete", []string{"c-1"}))

	require.NoError(t, a.Resolve(ctx, "merge", []string{"c-1"}))
	assert.Equal(t, []string{"resolve:c-1"}, f.calls)

	f.failed = map[string]string{"c-3": "forbidden"}
	err := a.Resolve(ctx, "keep_internal", []string{"c-2", "c-3"})
	require.Error(t, err)
	assert.Equal(t, []string{"c-2", "c-3"}, f.resolvedIDs)
	assert.Contains(t, out.String(), "Resolved c-2")
	assert.Contains(t, out.String(), "Failed c-3: forbidden")
}

func TestDeactivate(t *testing.T) {
	f := &fakeClient{}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Deactivate(context.Background(), "int-1"))
	assert.Equal(t, []string{"deactivate:int-1"}, f.calls)
	assert.Contains(t, out.String(), "inactive")
}

func TestAudit(t *testing.T) {
	f := &fakeClient{}
	a, out := newTestApp(f, "")
	ctx := context.Background()

	require.NoError(t, a.Audit(ctx, "c-1"))
	assert.Contains(t, out.String(), "No decisions recorded")

	f.records = []models.ResolutionRecord{
		{ID: "r1", ConflictID: "c-1", Action: models.KeepInternal, ResolvedBy: "u1", ResolvedAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		{ID: "r2", ConflictID: "c-1", Action: models.Merge, ResolvedBy: "u2", ResolvedAt: time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, a.Audit(ctx, "c-1"))
	assert.Contains(t, out.String(), "keep_internal")
	assert.Contains(t, out.String(), "merge")
	assert.Contains(t, out.String(), "u2")

	f.err = client.ErrForbidden
	assert.ErrorIs(t, a.Audit(ctx, "c-2"), client.ErrForbidden)
}

func TestRun_SingleCommand(t *testing.T) {
	f := &fakeClient{}
	a, _ := newTestApp(f, "")

	require.NoError(t, a.Run(context.Background(), []string{"refresh", "int-9"}))
	assert.Equal(t, []string{"refresh:int-9"}, f.calls)

	f.err = errors.New("boom")
	require.Error(t, a.Run(context.Background(), []string{"disable", "int-9"}))
}

func TestRun_REPL(t *testing.T) {
	f := &fakeClient{}
	a, out := newTestApp(f, "help\nenable int-1\nremove int-2\ny\nbogus\nexit\nrefresh int-3\n")

	require.NoError(t, a.Run(context.Background(), nil))
	assert.Equal(t, []string{"enable:int-1", "remove:int-2"}, f.calls)
	assert.Contains(t, out.String(), "unknown command: bogus")
	assert.Contains(t, out.String(), "Bye!")
}
