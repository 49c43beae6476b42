package transport

import "sync"

// pendingResult is delivered to a waiting SendRequest call exactly once:
// either the broker's reply envelope, or a transport-level failure.
type pendingResult struct {
	env Envelope
	err error
}

// pendingRequest is one in-flight correlation-table entry.
type pendingRequest struct {
	id       string
	resultCh chan pendingResult
}

// pendingTable correlates outbound request ids to the goroutine awaiting
// the broker's reply. Deletion is the single point of truth for "has this
// request already been terminally resolved" — resolve, remove, and
// rejectAll all go through the same mutex-guarded map, so whichever side
// wins the race is the only one that delivers.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest)}
}

// register adds a new pending entry. Callers must not register the same id
// twice concurrently.
func (t *pendingTable) register(id string) *pendingRequest {
	pr := &pendingRequest{id: id, resultCh: make(chan pendingResult, 1)}
	t.mu.Lock()
	t.entries[id] = pr
	t.mu.Unlock()
	return pr
}

// resolve delivers a reply envelope to its waiting caller. Returns false if
// no pending entry matched id (already resolved, timed out, or cancelled).
func (t *pendingTable) resolve(env Envelope) bool {
	t.mu.Lock()
	pr, ok := t.entries[env.ID]
	if ok {
		delete(t.entries, env.ID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	pr.resultCh <- pendingResult{env: env}
	return true
}

// remove deletes the entry for id without delivering a result, used by the
// timeout and cancellation paths in SendRequest once they stop waiting.
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// rejectAll delivers err to every currently pending request and clears the
// table, used when the REQ connection is lost.
func (t *pendingTable) rejectAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingRequest)
	t.mu.Unlock()

	for _, pr := range entries {
		pr.resultCh <- pendingResult{err: err}
	}
}

// len reports the number of in-flight requests, exposed as a supervisor
// stat (spec: "pending-request count").
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
