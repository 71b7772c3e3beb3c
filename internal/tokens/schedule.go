package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/registry"
)

// ScheduleAutoRefresh arms a one-shot timer at expiry minus lookahead,
// but never earlier than the minimum interval after the last refresh of
// the integration. A fire time already in the past triggers the refresh
// immediately. A successful timed refresh re-arms the timer from the new
// expiry.
func (m *Manager) ScheduleAutoRefresh(in models.Integration) {
	if !in.Schedulable() || in.ExpiresAt == nil {
		m.CancelAutoRefresh(in.ID)
		return
	}
	at := in.ExpiresAt.Add(-m.lookahead)
	m.mu.Lock()
	last, ok := m.refreshed[in.ID]
	m.mu.Unlock()
	if earliest := last.Add(m.minInterval); ok && at.Before(earliest) {
		at = earliest
	}
	if !at.After(m.clock.Now()) {
		m.sched.Cancel(in.ID)
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.fire(in.ID)
		}()
		return
	}
	m.sched.ScheduleAt(in.ID, at, func() { m.fire(in.ID) })
	m.logger.Debug(m.context(), "refresh scheduled", "integration_id", in.ID, "at", at)
}

// CancelAutoRefresh drops the pending timer for id, if any.
func (m *Manager) CancelAutoRefresh(id string) {
	if m.sched.Cancel(id) {
		m.logger.Debug(m.context(), "refresh timer cancelled", "integration_id", id)
	}
}

// Scheduled returns the pending timer's fire time for id.
func (m *Manager) Scheduled(id string) (time.Time, bool) {
	return m.sched.Pending(id)
}

func (m *Manager) fire(id string) {
	in, err := m.Refresh(m.context(), id)
	if err != nil {
		// transient failures are retried by the next RefreshAllDue tick
		return
	}
	if m.following() {
		// the registry's Upserted event re-arms the timer
		return
	}
	m.ScheduleAutoRefresh(in)
}

func (m *Manager) following() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsub != nil
}

func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseCtx
}

// Start arms timers for every schedulable integration and follows registry
// changes: new or re-activated integrations are scheduled, removed or
// deactivated ones have their timers cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.baseCtx = context.WithoutCancel(ctx)
	m.unsub = m.registry.Subscribe(m.onRegistryEvent)
	m.mu.Unlock()

	list, err := m.registry.List(ctx)
	if err != nil {
		return err
	}
	for _, in := range list {
		if in.Schedulable() {
			m.ScheduleAutoRefresh(in)
		}
	}
	m.logger.Info(ctx, "token manager started", "scheduled", m.sched.Len())
	return nil
}

func (m *Manager) onRegistryEvent(ev registry.Event) {
	switch ev.Kind {
	case registry.Removed:
		m.CancelAutoRefresh(ev.Integration.ID)
		m.mu.Lock()
		delete(m.refreshed, ev.Integration.ID)
		m.mu.Unlock()
	case registry.Upserted:
		m.ScheduleAutoRefresh(ev.Integration)
	}
}

// Close cancels every timer and waits for immediate refreshes to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	m.mu.Unlock()
	m.sched.Stop()
	m.wg.Wait()
}
