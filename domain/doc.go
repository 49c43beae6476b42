// Package domain holds the pure translators between broker wire payloads
// and the gateway's typed entities (ticks, OHLC bars, trades, orders,
// positions, accounts), plus the bounded per-symbol caches that sit on top
// of them. Nothing here does I/O or retries; a translator either returns a
// valid entity or a Validation error.
package domain
