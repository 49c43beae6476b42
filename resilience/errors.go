package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded names exhausted retry attempts. Retry does not
	// return it; it returns the last operation error instead.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrAborted is returned when a retry's AbortSignal fires mid-backoff.
	ErrAborted = errors.New("resilience: aborted")

	// ErrRuleNotFound is returned when a rate-limit rule id is unknown.
	ErrRuleNotFound = errors.New("resilience: rate limit rule not found")
)
