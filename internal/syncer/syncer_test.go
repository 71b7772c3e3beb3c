package syncer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/detector"
	"github.com/dmitrijs2005/calsync/internal/fetcher"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/repositories/conflicts"
	"github.com/dmitrijs2005/calsync/internal/repositories/memstore"
	"github.com/dmitrijs2005/calsync/internal/resolution"
	"github.com/dmitrijs2005/calsync/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	day   = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	start = day
	end   = day.Add(24 * time.Hour)
)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

type fakeTokens struct {
	calls int
	users []string
	err   error
}

func (f *fakeTokens) RefreshDueFor(_ context.Context, userID string, _ time.Time) (tokens.Report, error) {
	f.calls++
	f.users = append(f.users, userID)
	return tokens.Report{Failed: map[string]error{}}, f.err
}

type fakeFetcher struct {
	res fetcher.Result
	err error
}

func (f *fakeFetcher) FetchAll(context.Context, string, time.Time, time.Time) (fetcher.Result, error) {
	return f.res, f.err
}

type fakeAppointments struct {
	apps []models.Appointment
	err  error
}

func (f *fakeAppointments) ListAppointments(context.Context, string, time.Time, time.Time) ([]models.Appointment, error) {
	return f.apps, f.err
}

type fixture struct {
	store    *memstore.Manager
	clock    *clock.Fake
	tokens   *fakeTokens
	fetcher  *fakeFetcher
	apps     *fakeAppointments
	recorder *tracetest.SpanRecorder
	syncer   *Syncer
	engine   *resolution.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		clock:    clock.NewFake(at(8, 0)),
		tokens:   &fakeTokens{},
		recorder: tracetest.NewSpanRecorder(),
		fetcher: &fakeFetcher{res: fetcher.Result{Events: []models.ExternalEvent{
			{RemoteID: "e1", IntegrationID: "int-1", Title: "Jane Doe - Follow-up", Start: at(9, 15), End: at(9, 45)},
			{RemoteID: "e2", IntegrationID: "int-1", Title: "Board meeting", Start: at(13, 0), End: at(14, 0)},
		}}},
		apps: &fakeAppointments{apps: []models.Appointment{
			{ID: "a1", PatientName: "Jane Doe", Start: at(9, 0), Duration: 30 * time.Minute},
			{ID: "a2", PatientName: "Max Mustermann", Start: at(11, 0), Duration: time.Hour},
		}},
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.recorder))
	f.syncer = New(f.tokens, f.fetcher, f.apps, f.store, f.store, logging.NopLogger{},
		WithClock(f.clock), WithTracerProvider(tp))
	f.engine = resolution.New(f.store, f.store, logging.NopLogger{}, resolution.WithClock(f.clock))
	return f
}

func conflictIDs(cs []models.SyncConflict) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestSyncWindow_DetectsAndStores(t *testing.T) {
	f := newFixture(t)

	view, err := f.syncer.SyncWindow(context.Background(), "u1", start, end)
	require.NoError(t, err)

	overlap := detector.ConflictID("a1", "int-1", "e1", models.ConflictTimeOverlap)
	dup := detector.ConflictID("a1", "int-1", "e1", models.ConflictProbableDuplicate)
	assert.Equal(t, []string{overlap, dup}, conflictIDs(view.Conflicts))
	assert.Len(t, view.Events, 2)
	assert.Len(t, view.Appointments, 2)
	assert.Equal(t, 1, f.tokens.calls)
	assert.Equal(t, []string{"u1"}, f.tokens.users, "only the caller's credentials are refreshed")

	for _, id := range []string{overlap, dup} {
		c, err := f.store.Conflicts(f.store.Conn()).Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, at(8, 0), c.DetectedAt)
	}

	var names []string
	for _, s := range f.recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"RefreshDue", "FetchAll", "ListAppointments", "Detect", "MergeConflicts", "SyncWindow"}, names)
}

func TestSyncWindow_ResolvedConflictNotReemitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)

	overlap := detector.ConflictID("a1", "int-1", "e1", models.ConflictTimeOverlap)
	_, err = f.engine.Resolve(ctx, "u1", overlap, models.KeepInternal)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	view, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)

	assert.Empty(t, view.Conflicts, "the duplicate conflict refers to the hidden event")
	require.Len(t, view.Events, 1)
	assert.Equal(t, "e2", view.Events[0].RemoteID)

	stored, err := f.store.Conflicts(f.store.Conn()).Get(ctx, overlap)
	require.NoError(t, err)
	require.True(t, stored.Resolved())
	assert.Equal(t, models.KeepInternal, stored.Resolution.Action)
	assert.Equal(t, at(8, 0), stored.DetectedAt)
}

func TestSyncWindow_MergeShowsAcceptedOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)

	overlap := detector.ConflictID("a1", "int-1", "e1", models.ConflictTimeOverlap)
	dup := detector.ConflictID("a1", "int-1", "e1", models.ConflictProbableDuplicate)
	_, err = f.engine.ResolveAll(ctx, "u1", []string{overlap, dup}, models.Merge)
	require.NoError(t, err)

	view, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)
	assert.Empty(t, view.Conflicts)
	assert.Len(t, view.AcceptedOverlaps, 2)
	assert.Len(t, view.Events, 2)
	assert.Len(t, view.Appointments, 2)
}

func TestSyncWindow_ChangedRecordReopens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)

	overlap := detector.ConflictID("a1", "int-1", "e1", models.ConflictTimeOverlap)
	_, err = f.engine.Resolve(ctx, "u1", overlap, models.KeepExternal)
	require.NoError(t, err)

	f.fetcher.res.Events[0].End = at(10, 0)
	f.clock.Advance(time.Hour)
	view, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)

	assert.Contains(t, conflictIDs(view.Conflicts), overlap)
	stored, err := f.store.Conflicts(f.store.Conn()).Get(ctx, overlap)
	require.NoError(t, err)
	assert.False(t, stored.Resolved())
	assert.Equal(t, at(9, 0), stored.DetectedAt)
}

// lockingStore records the advisory locks taken inside transactions and the
// conflicts saved through them.
type lockingStore struct {
	*memstore.Manager
	locks []string
	saved []string
}

type lockingConn struct {
	dbx.DBTX
	s *lockingStore
}

func (c lockingConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if len(args) == 1 {
		if key, ok := args[0].(string); ok {
			c.s.locks = append(c.s.locks, key)
		}
	}
	return c.DBTX.ExecContext(ctx, query, args...)
}

func (s *lockingStore) InTx(ctx context.Context, fn dbx.TxFunc) error {
	return s.Manager.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, lockingConn{DBTX: tx, s: s})
	})
}

func (s *lockingStore) Conflicts(db dbx.DBTX) conflicts.Repository {
	return savingConflicts{Repository: s.Manager.Conflicts(db), s: s}
}

type savingConflicts struct {
	conflicts.Repository
	s *lockingStore
}

func (r savingConflicts) Save(ctx context.Context, c *models.SyncConflict) error {
	r.s.saved = append(r.s.saved, c.ID)
	return r.Repository.Save(ctx, c)
}

func TestSyncWindow_MergeLocksEachConflict(t *testing.T) {
	f := newFixture(t)
	ls := &lockingStore{Manager: f.store}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.recorder))
	f.syncer = New(f.tokens, f.fetcher, f.apps, ls, ls, logging.NopLogger{},
		WithClock(f.clock), WithTracerProvider(tp))
	ctx := context.Background()

	_, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)

	overlap := detector.ConflictID("a1", "int-1", "e1", models.ConflictTimeOverlap)
	dup := detector.ConflictID("a1", "int-1", "e1", models.ConflictProbableDuplicate)
	assert.Equal(t, []string{resolution.LockKey(overlap), resolution.LockKey(dup)}, ls.locks)
	assert.Equal(t, []string{overlap, dup}, ls.saved)

	ls.locks, ls.saved = nil, nil
	f.clock.Advance(time.Hour)
	view, err := f.syncer.SyncWindow(ctx, "u1", start, end)
	require.NoError(t, err)

	assert.Len(t, ls.locks, 2)
	assert.Empty(t, ls.saved, "unchanged open conflicts are not rewritten")
	assert.Equal(t, []string{overlap, dup}, conflictIDs(view.Conflicts))
	stored, err := f.store.Conflicts(f.store.Conn()).Get(ctx, overlap)
	require.NoError(t, err)
	assert.Equal(t, at(8, 0), stored.DetectedAt)
}

func TestSyncWindow_DegradesOnFailures(t *testing.T) {
	f := newFixture(t)
	f.tokens.err = common.ErrTransient
	f.fetcher.res.Failures = []models.FetchFailure{{IntegrationID: "int-2", Reason: "transient"}}

	view, err := f.syncer.SyncWindow(context.Background(), "u1", start, end)
	require.NoError(t, err)
	assert.Equal(t, []models.FetchFailure{{IntegrationID: "int-2", Reason: "transient"}}, view.Failures)
}

func TestSyncWindow_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.syncer.SyncWindow(context.Background(), "u1", end, start)
	assert.ErrorIs(t, err, common.ErrInvalidWindow)

	f.apps.err = errors.New("portal down")
	_, err = f.syncer.SyncWindow(context.Background(), "u1", start, end)
	assert.ErrorContains(t, err, "list appointments")

	f.apps.err = nil
	f.fetcher.err = errors.New("db gone")
	_, err = f.syncer.SyncWindow(context.Background(), "u1", start, end)
	assert.ErrorContains(t, err, "fetch events")
}
