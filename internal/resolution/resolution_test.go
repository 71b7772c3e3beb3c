package resolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/repositories/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeReporter struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{calls: map[string]int{}, errs: map[string]error{}}
}

func (f *fakeReporter) ReportResolution(_ context.Context, id string, _ models.ResolutionAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	return f.errs[id]
}

type fakeArchiver struct {
	mu   sync.Mutex
	recs []models.ResolutionRecord
	err  error
}

func (f *fakeArchiver) Archive(_ context.Context, rec models.ResolutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

type fixture struct {
	store    *memstore.Manager
	reporter *fakeReporter
	archiver *fakeArchiver
	engine   *Engine
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	store := memstore.New()
	for _, id := range ids {
		require.NoError(t, store.Conflicts(store.Conn()).Save(context.Background(), &models.SyncConflict{
			ID: id, IntegrationID: "int-1", RemoteEventID: "e-" + id, AppointmentID: "a-" + id,
			Kind: models.ConflictTimeOverlap, Fingerprint: "fp-" + id,
		}))
	}
	f := &fixture{store: store, reporter: newFakeReporter(), archiver: &fakeArchiver{}}
	f.engine = New(store, store, logging.NopLogger{},
		WithReporter(f.reporter), WithArchiver(f.archiver), WithClock(clock.NewFake(t0)))
	return f
}

func TestResolve_RecordsDecisionAndAudit(t *testing.T) {
	f := newFixture(t, "c1")

	got, err := f.engine.Resolve(context.Background(), "u1", "c1", models.KeepInternal)
	require.NoError(t, err)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, models.Resolution{Action: models.KeepInternal, ResolvedAt: t0, ResolvedBy: "u1"}, *got.Resolution)

	stored, err := f.store.Conflicts(f.store.Conn()).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, stored.Resolved())

	audit, err := f.engine.Audit(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "fp-c1", audit[0].Fingerprint)
	assert.Equal(t, "u1", audit[0].ResolvedBy)
	assert.NotEmpty(t, audit[0].ID)

	assert.Equal(t, 1, f.reporter.calls["c1"])
	require.Len(t, f.archiver.recs, 1)
	assert.Equal(t, audit[0], f.archiver.recs[0])
}

func TestResolve_SameActionIsNoop(t *testing.T) {
	f := newFixture(t, "c1")
	_, err := f.engine.Resolve(context.Background(), "u1", "c1", models.Merge)
	require.NoError(t, err)

	got, err := f.engine.Resolve(context.Background(), "u2", "c1", models.Merge)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Resolution.ResolvedBy)

	audit, err := f.engine.Audit(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, audit, 1)
	assert.Equal(t, 1, f.reporter.calls["c1"])
}

func TestResolve_DifferentActionRejected(t *testing.T) {
	f := newFixture(t, "c1")
	_, err := f.engine.Resolve(context.Background(), "u1", "c1", models.KeepInternal)
	require.NoError(t, err)

	_, err = f.engine.Resolve(context.Background(), "u1", "c1", models.KeepExternal)
	assert.ErrorIs(t, err, common.ErrConflictAlreadyResolved)
}

func TestResolve_InvalidAction(t *testing.T) {
	f := newFixture(t, "c1")
	_, err := f.engine.Resolve(context.Background(), "u1", "c1", "delete_both")
	assert.ErrorIs(t, err, common.ErrInvalidResolution)
	assert.Zero(t, f.reporter.calls["c1"])
}

func TestResolve_Unknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Resolve(context.Background(), "u1", "missing", models.Merge)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestResolve_ReportFailureLeavesUnresolved(t *testing.T) {
	f := newFixture(t, "c1")
	f.reporter.errs["c1"] = common.ErrTransient

	_, err := f.engine.Resolve(context.Background(), "u1", "c1", models.KeepInternal)
	require.ErrorIs(t, err, common.ErrTransient)

	stored, err := f.store.Conflicts(f.store.Conn()).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, stored.Resolved())
	assert.Empty(t, f.archiver.recs)
}

func TestResolve_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, "c1")
	f.archiver.err = errors.New("bucket missing")

	got, err := f.engine.Resolve(context.Background(), "u1", "c1", models.KeepExternal)
	require.NoError(t, err)
	assert.True(t, got.Resolved())
}

func TestResolveAll_CollectsFailures(t *testing.T) {
	f := newFixture(t, "c1", "c2", "c3")
	f.reporter.errs["c2"] = common.ErrTransient

	res, err := f.engine.ResolveAll(context.Background(), "u1", []string{"c1", "c2", "c3", "missing"}, models.Merge)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransient)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.Len(t, res.Resolved, 2)
	assert.Equal(t, "c1", res.Resolved[0].ID)
	assert.Equal(t, "c3", res.Resolved[1].ID)
	assert.Len(t, res.Failed, 2)
	assert.Contains(t, res.Failed, "c2")
	assert.Contains(t, res.Failed, "missing")
}

func TestResolveAll_InvalidAction(t *testing.T) {
	f := newFixture(t, "c1")
	_, err := f.engine.ResolveAll(context.Background(), "u1", []string{"c1"}, "")
	assert.ErrorIs(t, err, common.ErrInvalidResolution)
}
