package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// VolumeThreshold is the number of trailing calls the failure ratio is
	// computed over. The circuit stays closed until at least this many calls
	// have completed, so a handful of early failures can't trip it.
	// Default: 10
	VolumeThreshold int

	// ErrorThresholdPercent opens the circuit once the failure ratio over the
	// trailing VolumeThreshold calls reaches this percentage (0-100).
	// Default: 50
	ErrorThresholdPercent int

	// ResetTimeout is how long to wait before attempting recovery.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the number of consecutive successful probes
	// required in half-open before the circuit closes again. A single
	// failed probe reopens it immediately.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

// CircuitBreaker implements the circuit breaker pattern over a trailing
// window of call outcomes: it opens once ErrorThresholdPercent of the last
// VolumeThreshold calls failed, rather than on a run of consecutive failures.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu               sync.Mutex
	state            State
	ring             []bool // true = failure
	ringPos          int
	ringFilled       int
	successes        int
	totalCalls       int64
	totalFailures    int64
	rejected         int64
	avgRespMs        float64
	lastFailure      time.Time
	lastStateChange  time.Time
	halfOpenInFlight int
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.VolumeThreshold <= 0 {
		config.VolumeThreshold = 10
	}
	if config.ErrorThresholdPercent <= 0 {
		config.ErrorThresholdPercent = 50
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		ring:            make([]bool, config.VolumeThreshold),
		lastStateChange: time.Now(),
	}
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	start := time.Now()
	err := op(ctx)
	cb.afterRequest(err, time.Since(start))
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset resets the circuit breaker to closed state, discarding its window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.ring = make([]bool, cb.config.VolumeThreshold)
	cb.ringPos = 0
	cb.ringFilled = 0
	cb.successes = 0
	cb.halfOpenInFlight = 0
	cb.lastStateChange = time.Now()

	if oldState != StateClosed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, StateClosed)
	}
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		cb.rejected++
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxRequests {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.halfOpenInFlight++
	}

	return nil
}

func (cb *CircuitBreaker) afterRequest(err error, respTime time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isFailure := cb.config.IsFailure(err)
	oldState := cb.state
	cb.totalCalls++
	if isFailure {
		cb.totalFailures++
	}
	cb.recordAvgRespLocked(respTime)

	switch cb.state {
	case StateClosed:
		cb.recordOutcomeLocked(isFailure)
		if isFailure {
			cb.lastFailure = time.Now()
		}
		if cb.ringFilled >= cb.config.VolumeThreshold && cb.failureRatioLocked() >= float64(cb.config.ErrorThresholdPercent) {
			cb.setStateLocked(StateOpen)
		}

	case StateHalfOpen:
		cb.halfOpenInFlight--
		if cb.halfOpenInFlight < 0 {
			cb.halfOpenInFlight = 0
		}
		if isFailure {
			cb.lastFailure = time.Now()
			cb.setStateLocked(StateOpen)
		} else {
			cb.successes++
			if cb.successes >= cb.config.HalfOpenMaxRequests {
				cb.ring = make([]bool, cb.config.VolumeThreshold)
				cb.ringPos = 0
				cb.ringFilled = 0
				cb.successes = 0
				cb.setStateLocked(StateClosed)
			}
		}
	}

	if oldState != cb.state && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, cb.state)
	}
}

// recordOutcomeLocked writes isFailure into the trailing ring buffer.
func (cb *CircuitBreaker) recordOutcomeLocked(isFailure bool) {
	cb.ring[cb.ringPos] = isFailure
	cb.ringPos = (cb.ringPos + 1) % len(cb.ring)
	if cb.ringFilled < len(cb.ring) {
		cb.ringFilled++
	}
}

// failureRatioLocked returns the failure percentage over the filled portion
// of the trailing window.
func (cb *CircuitBreaker) failureRatioLocked() float64 {
	if cb.ringFilled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < cb.ringFilled; i++ {
		if cb.ring[i] {
			failures++
		}
	}
	return float64(failures) / float64(cb.ringFilled) * 100
}

func (cb *CircuitBreaker) recordAvgRespLocked(d time.Duration) {
	const alpha = 0.2
	ms := float64(d.Microseconds()) / 1000
	if cb.avgRespMs == 0 {
		cb.avgRespMs = ms
		return
	}
	cb.avgRespMs = alpha*ms + (1-alpha)*cb.avgRespMs
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.setStateLocked(StateHalfOpen)
		cb.halfOpenInFlight = 0
		cb.successes = 0
		if cb.config.OnStateChange != nil {
			cb.config.OnStateChange(StateOpen, StateHalfOpen)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) setStateLocked(state State) {
	if cb.state == state {
		return
	}
	cb.state = state
	cb.lastStateChange = time.Now()
	if state == StateHalfOpen {
		cb.halfOpenInFlight = 0
	}
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:            cb.currentStateLocked(),
		TotalCalls:       cb.totalCalls,
		TotalFailures:    cb.totalFailures,
		Rejected:         cb.rejected,
		FailureRatio:     cb.failureRatioLocked(),
		AvgResponseTime:  time.Duration(cb.avgRespMs * float64(time.Millisecond)),
		LastFailure:      cb.lastFailure,
		SinceStateChange: time.Since(cb.lastStateChange),
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State            State
	TotalCalls       int64
	TotalFailures    int64
	Rejected         int64
	FailureRatio     float64
	AvgResponseTime  time.Duration
	LastFailure      time.Time
	SinceStateChange time.Duration
}
