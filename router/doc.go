// Package router implements the gateway's inbound event fabric: a bounded
// FIFO queue fed by the transport's SUB socket, a batch scheduler that
// drains it on a fixed interval, a filter chain, and priority-ordered
// subscription dispatch.
//
// Each batch tick pops up to batchSize events and dispatches them with one
// goroutine per event (parallel across events) while guaranteeing handlers
// for the same event fire in order (serial within an event). Default
// filters installed at construction drop heartbeats and events older than
// five minutes, matching the broker's own heartbeat and staleness
// conventions. Sustained overflow surfaces a rate-limited "queueFull"
// signal as a synthetic router-sourced event rather than a return value,
// since the overflowing caller (the transport's read loop) has no result
// channel to receive one.
package router
