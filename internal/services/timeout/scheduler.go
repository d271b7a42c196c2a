// Package timeout provides cancellable countdowns owned by connection records.
package timeout

import (
	"sync"
	"time"

	"github.com/mcoot/partygate/internal/dependencies/clock"
	"github.com/mcoot/partygate/internal/model"
)

// TimerID identifies one scheduled countdown. Zero means "no timer".
type TimerID uint64

// FireFunc is called when a countdown expires. It receives the owner and the
// timer id so the receiver can tell a live timer from a stale one.
type FireFunc func(owner model.Handle, id TimerID)

type entry struct {
	owner model.Handle
	timer clock.Timer
}

// Scheduler tracks every outstanding countdown for one game instance
type Scheduler struct {
	clock clock.Clock

	mu     sync.Mutex
	nextID TimerID
	timers map[TimerID]entry
}

// New creates a Scheduler backed by the given clock
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clock:  clk,
		timers: make(map[TimerID]entry),
	}
}

// Schedule starts a countdown of d for owner. fire runs on the clock's goroutine.
func (s *Scheduler) Schedule(owner model.Handle, d time.Duration, fire FireFunc) TimerID {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	t := s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if live {
			fire(owner, id)
		}
	})

	s.mu.Lock()
	s.timers[id] = entry{owner: owner, timer: t}
	s.mu.Unlock()
	return id
}

// Cancel stops a countdown. It returns false if the id is unknown, already fired or cancelled.
func (s *Scheduler) Cancel(id TimerID) bool {
	if id == 0 {
		return false
	}
	s.mu.Lock()
	e, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	return true
}

// CancelAll stops every outstanding countdown and returns how many were stopped
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[TimerID]entry)
	s.mu.Unlock()

	for _, e := range timers {
		e.timer.Stop()
	}
	return len(timers)
}

// Pending returns the number of outstanding countdowns
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// PendingFor returns the number of outstanding countdowns owned by h
func (s *Scheduler) PendingFor(h model.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.timers {
		if e.owner == h {
			count++
		}
	}
	return count
}
