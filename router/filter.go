package router

import "time"

// Filter is a global or event-type-specific predicate applied before
// subscription matching; returning false drops the event for every
// subscriber.
type Filter func(Event) bool

// dropHeartbeats is installed by default: heartbeats are a supervisor
// liveness concern (C6), not a caller-facing event.
func dropHeartbeats(e Event) bool {
	return e.Type != "heartbeat"
}

// dropStale rejects events older than maxAge, installed by default with a
// five-minute threshold.
func dropStale(maxAge time.Duration) Filter {
	return func(e Event) bool {
		return time.Since(time.UnixMilli(e.Timestamp)) <= maxAge
	}
}

// SubscriptionFilter selects which events fire a given subscription's
// handler. A zero-value field is treated as "don't care."
type SubscriptionFilter struct {
	Type       string
	Source     string
	DataEquals map[string]string
	Predicate  func(Event) bool
}

// matches reports whether every configured criterion holds for e.
func (f SubscriptionFilter) matches(e Event) bool {
	if f.Type != "" && f.Type != e.Type {
		return false
	}
	if f.Source != "" && f.Source != e.Source {
		return false
	}
	for key, want := range f.DataEquals {
		got, ok := e.dataField(key)
		if !ok || got != want {
			return false
		}
	}
	if f.Predicate != nil && !f.Predicate(e) {
		return false
	}
	return true
}
