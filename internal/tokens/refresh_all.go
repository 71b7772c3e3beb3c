package tokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/models"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Report is the outcome of a RefreshAllDue pass.
type Report struct {
	Refreshed []models.Integration
	Failed    map[string]error
}

// RefreshAllDue refreshes, in parallel, every active and sync-enabled
// integration whose credential is due at now. One failure never stops the
// others; the returned error combines every failure and is also broken
// down per integration in the report. The pass spans all users, so it runs
// on the service credentials even when ctx carries a caller's token.
func (m *Manager) RefreshAllDue(ctx context.Context, now time.Time) (Report, error) {
	ctx = backend.WithoutBearer(ctx)
	list, err := m.registry.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list integrations: %w", err)
	}
	return m.refreshDue(ctx, list, now)
}

// RefreshDueFor is RefreshAllDue restricted to the integrations of userID.
func (m *Manager) RefreshDueFor(ctx context.Context, userID string, now time.Time) (Report, error) {
	list, err := m.registry.ListByUser(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("list integrations of %s: %w", userID, err)
	}
	return m.refreshDue(ctx, list, now)
}

func (m *Manager) refreshDue(ctx context.Context, list []models.Integration, now time.Time) (Report, error) {
	var due []models.Integration
	for _, in := range list {
		if in.Schedulable() && m.NeedsRefresh(in, now) {
			due = append(due, in)
		}
	}

	report := Report{Failed: map[string]error{}}
	if len(due) == 0 {
		return report, nil
	}

	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, in := range due {
		in := in
		g.Go(func() error {
			saved, err := m.Refresh(gctx, in.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[in.ID] = err
				errs = multierr.Append(errs, err)
				return nil
			}
			report.Refreshed = append(report.Refreshed, saved)
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info(ctx, "due refresh pass finished",
		"due", len(due), "refreshed", len(report.Refreshed), "failed", len(report.Failed))
	return report, errs
}
