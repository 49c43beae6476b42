// Package agent implements the per-caller facade: an Agent binds a session,
// a breaker, a rate-limit identity, and a permission set, and runs every
// trading, market-data, and account call through
// validateActive -> checkPermission -> limiter.check -> bulkhead -> breaker
// -> translator -> transport.sendRequest.
package agent
