package supervisor

import (
	"time"

	"github.com/jonwraymond/mt5gateway/transport"
)

// Config governs socket addressing, retry/backoff bounds, and heartbeat
// timing. Ports P, P+1, P+2 are the request, subscribe, and push sockets
// respectively, per the wire layout.
type Config struct {
	Host string
	Port int

	DialTimeout time.Duration // per-socket dial timeout. Default 5s.

	ConnectMaxAttempts int           // retry attempts for the initial connect. Default 3.
	ConnectBaseDelay   time.Duration // Default 200ms.
	ConnectMaxDelay    time.Duration // Default 5s.

	HeartbeatInterval  time.Duration // Default 15s.
	HeartbeatTimeout   time.Duration // per-ping deadline. Default 5s.
	MaxHeartbeatMisses int           // consecutive misses before reconnect. Default 3.

	MaxReconnectAttempts int           // Default 10. Exceeding it -> Unreachable.
	ReconnectBaseDelay   time.Duration // Default 500ms.
	ReconnectMaxDelay    time.Duration // Default 30s.

	RequestTimeout time.Duration // forwarded to transport.Config. Default 30s.

	// Encryptor, if set, AEAD-wraps every frame on all three sockets.
	// Selected by security.encryptionEnabled; nil leaves frames in
	// plaintext.
	Encryptor transport.Encryptor

	// OnStateChange, if set, is invoked (from the supervisor's own
	// goroutines) on every state transition. Implementations must not
	// block.
	OnStateChange func(from, to State)
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ConnectMaxAttempts <= 0 {
		c.ConnectMaxAttempts = 3
	}
	if c.ConnectBaseDelay <= 0 {
		c.ConnectBaseDelay = 200 * time.Millisecond
	}
	if c.ConnectMaxDelay <= 0 {
		c.ConnectMaxDelay = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 5 * time.Second
	}
	if c.MaxHeartbeatMisses <= 0 {
		c.MaxHeartbeatMisses = 3
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}
