package gateway

import (
	"sync"
	"time"

	"github.com/jonwraymond/mt5gateway/gwerrors"
)

// loginGuard tracks consecutive authentication failures per principal and
// enforces security.maxLoginAttempts / lockoutDurationMs.
type loginGuard struct {
	maxAttempts int
	lockout     time.Duration

	mu    sync.Mutex
	state map[string]*attemptState
}

type attemptState struct {
	failures  int
	lockedAt  time.Time
	lockedTil time.Time
}

func newLoginGuard(maxAttempts int, lockout time.Duration) *loginGuard {
	return &loginGuard{
		maxAttempts: maxAttempts,
		lockout:     lockout,
		state:       make(map[string]*attemptState),
	}
}

// CheckLocked returns an authentication error if principal is currently
// locked out, else nil.
func (g *loginGuard) CheckLocked(principal string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.state[principal]
	if !ok || st.lockedTil.IsZero() {
		return nil
	}
	if time.Now().Before(st.lockedTil) {
		return gwerrors.New(gwerrors.KindAuthentication, "ACCOUNT_LOCKED", "account temporarily locked after repeated failed logins").
			WithDetails(map[string]any{"retryAfter": time.Until(st.lockedTil).String()})
	}
	// Lockout window elapsed; reset.
	delete(g.state, principal)
	return nil
}

// RecordFailure increments principal's failure count, locking it out once
// maxAttempts is reached.
func (g *loginGuard) RecordFailure(principal string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.state[principal]
	if !ok {
		st = &attemptState{}
		g.state[principal] = st
	}
	st.failures++
	if st.failures >= g.maxAttempts {
		st.lockedAt = time.Now()
		st.lockedTil = st.lockedAt.Add(g.lockout)
	}
}

// RecordSuccess clears principal's failure count.
func (g *loginGuard) RecordSuccess(principal string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.state, principal)
}
