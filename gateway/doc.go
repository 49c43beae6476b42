// Package gateway assembles the Connection Core into one caller-facing
// object: Gateway owns the supervisor, session manager, rate limiter,
// event router, market cache, and health aggregator, and hands out one
// Agent per CreateAgent call.
package gateway
