package agent

import "github.com/jonwraymond/mt5gateway/resilience"

// Read and trade are the two permission names the facade's call pipeline
// checks; an Agent's own Permissions slice (or the "*" wildcard) must
// contain one to reach the corresponding call family.
const (
	PermissionRead  = "read"
	PermissionTrade = "trade"
)

// Config describes one logical caller: its identity, the account it trades
// against, and the permission set derived for it at creation time.
type Config struct {
	ID          string
	AccountID   string
	Permissions []string

	// Breaker configures the agent's own circuit breaker. Zero value uses
	// resilience.NewCircuitBreaker's defaults.
	Breaker resilience.CircuitBreakerConfig

	// Bulkhead bounds how many of this agent's calls may be in flight
	// concurrently, ahead of the breaker. Zero value uses
	// resilience.NewBulkhead's defaults.
	Bulkhead resilience.BulkheadConfig

	// OHLCRingSize is not read by New. The per-symbol OHLC history bound is
	// the ring size of the domain.MarketCache passed to New; the gateway
	// shares one cache built with the default of 500.
	OHLCRingSize int
}
