package transport

import "errors"

// Sentinel errors surfaced by the multiplexer's send path. These are wrapped
// into *gwerrors.Error at the agent boundary rather than here, since
// transport has no opinion on the gateway-wide Kind taxonomy.
var (
	ErrNotConnected   = errors.New("transport: not connected")
	ErrClosed         = errors.New("transport: multiplexer closed")
	ErrRequestTimeout = errors.New("transport: request timed out")
	ErrConnectionLost = errors.New("transport: connection lost")
	ErrCancelled      = errors.New("transport: request cancelled")
)
