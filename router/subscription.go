package router

import (
	"context"
	"sync/atomic"
	"time"
)

// Handler processes one matched event. A returned error is logged but does
// not prevent other handlers (for this or other events) from running.
type Handler func(ctx context.Context, event Event) error

// Subscription is one registered caller interest: a filter, a handler, and
// a priority used to order concurrent matches for the same event.
// Mutable fields (active/fireCount/lastFired) are atomics since a single
// subscription may be matched by two events dispatched concurrently within
// the same batch.
type Subscription struct {
	ID        string
	Filter    SubscriptionFilter
	Priority  int
	CreatedAt time.Time

	handler   Handler
	active    atomic.Bool
	fireCount atomic.Int64
	lastFired atomic.Int64 // unix nano; 0 = never fired
}

// Active reports whether the subscription currently receives dispatch.
func (s *Subscription) Active() bool { return s.active.Load() }

// Pause deactivates the subscription without removing it.
func (s *Subscription) Pause() { s.active.Store(false) }

// Resume reactivates a paused subscription.
func (s *Subscription) Resume() { s.active.Store(true) }

// FireCount returns how many times this subscription's handler has run.
func (s *Subscription) FireCount() int64 { return s.fireCount.Load() }

// LastFired returns the last time the handler ran, or the zero Time if
// never.
func (s *Subscription) LastFired() time.Time {
	n := s.lastFired.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *Subscription) recordFire(at time.Time) {
	s.fireCount.Add(1)
	s.lastFired.Store(at.UnixNano())
}
