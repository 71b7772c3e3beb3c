// Package scheduler runs keyed one-shot jobs at absolute instants.
// At most one job is pending per key; scheduling a key again replaces the
// previous job.
package scheduler

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/clock"
)

type entry struct {
	timer clock.Timer
	gen   uint64
	at    time.Time
}

type Scheduler struct {
	clock   clock.Clock
	mu      sync.Mutex
	gen     uint64
	entries map[string]entry
	stopped bool
}

func New(c clock.Clock) *Scheduler {
	return &Scheduler{clock: c, entries: make(map[string]entry)}
}

// ScheduleAt arranges for fn to run at instant at. If at is not in the
// future fn runs immediately on its own goroutine (synchronously when the
// clock is virtual, because the fake clock fires zero-delay timers inside
// Advance). Returns false after Stop.
func (s *Scheduler) ScheduleAt(key string, at time.Time, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if prev, ok := s.entries[key]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	t := s.clock.AfterFunc(delay, func() {
		if !s.claim(key, gen) {
			return
		}
		fn()
	})
	s.entries[key] = entry{timer: t, gen: gen, at: at}
	return true
}

// claim removes the entry if it still belongs to generation gen. A timer
// that lost the race against Cancel or a reschedule must not run.
func (s *Scheduler) claim(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen {
		return false
	}
	delete(s.entries, key)
	return true
}

// Cancel drops the pending job for key, if any.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, key)
	return true
}

// Pending returns the fire time of the job scheduled for key.
func (s *Scheduler) Pending(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.at, ok
}

// Len returns the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every pending job and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, k)
	}
	s.stopped = true
}
