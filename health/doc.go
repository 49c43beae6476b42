// Package health provides health checking primitives for the gateway's own
// liveness and readiness surface.
//
// It implements a generic health checking framework: interfaces for
// defining checks, aggregating results from multiple checkers, and
// exposing health status via HTTP endpoints compatible with Kubernetes
// probes. The gateway registers three checkers — supervisor, breaker, and
// sessions — covering the broker connection, the agent pool's circuit
// breakers, and session-manager reachability.
//
// # Status Types
//
// The [Status] type represents component health:
//
//   - [StatusHealthy]: Component is functioning normally
//   - [StatusDegraded]: Component is functioning but with issues
//   - [StatusUnhealthy]: Component is not functioning properly
//
// # Core Components
//
//   - [Checker]: Interface for health checks (Name() + Check())
//   - [CheckerFunc]: Adapter for function-based checkers
//   - [Result]: Health check outcome with status, message, details, duration
//   - [Aggregator]: Combines multiple checkers into composite health
//   - [MemoryChecker]: Built-in checker for memory usage thresholds
//
// # Quick Start
//
// The gateway wires its checkers this way (see gateway.registerHealthCheckers):
//
//	agg := health.NewAggregator()
//	agg.Register("supervisor", health.NewCheckerFunc("supervisor", checkSupervisor))
//	agg.Register("breaker", health.NewCheckerFunc("breaker", checkBreakers))
//	agg.Register("sessions", health.NewCheckerFunc("sessions", checkSessions))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// # HTTP Endpoints
//
// The package provides Kubernetes-compatible HTTP handlers:
//
//   - [LivenessHandler]: Simple /healthz endpoint - always returns 200 if running
//   - [ReadinessHandler]: Runs all checks, returns 503 if any unhealthy
//   - [DetailedHandler]: Returns JSON with full check details
//   - [SingleCheckHandler]: Check a specific component by name
//   - [RegisterHandlers]: Convenience function to register all handlers
//
// The daemon entry point (cmd/mt5gatewayd) registers these on its own HTTP
// mux, separate from the broker connection itself:
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, gw.HealthAggregator())
//	// Registers: /healthz, /readyz, /health
//
// # Aggregation Behavior
//
// The [Aggregator] computes overall status using worst-case logic:
//
//   - If ANY check is Unhealthy → overall Unhealthy
//   - If ANY check is Degraded (and none Unhealthy) → overall Degraded
//   - If ALL checks are Healthy → overall Healthy
//
// Checks can run in parallel (default) or sequentially via [AggregatorConfig].
// The gateway's breaker checker reports Degraded when some but not all
// agent circuit breakers are open, and Unhealthy only once every agent's
// breaker has tripped.
//
// # Thread Safety
//
// All exported types are safe for concurrent use:
//
//   - [Aggregator]: sync.RWMutex protects registration and check execution
//   - [MemoryChecker]: Stateless, concurrent-safe
//   - [CheckerFunc]: Delegates to user function, ensure your function is safe
//   - [Result]: Immutable after creation
//
// # Error Handling
//
// Sentinel errors (use errors.Is for checking):
//
//   - [ErrCheckFailed]: Generic health check failure
//   - [ErrCheckTimeout]: Check exceeded timeout
//   - [ErrCheckerNotFound]: Named checker not registered
//   - [ErrNoCheckers]: No checkers registered in aggregator
package health
