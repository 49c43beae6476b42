package gateway

import (
	"fmt"
	"time"

	"github.com/jonwraymond/mt5gateway/auth"
	"github.com/jonwraymond/mt5gateway/resilience"
)

// SecurityMethod selects how CreateAgent's credentials are verified.
type SecurityMethod string

const (
	SecurityMethodPassword SecurityMethod = "password"
	SecurityMethodAPIKey   SecurityMethod = "apiKey"
	SecurityMethodToken    SecurityMethod = "token"
)

// ConnectionConfig addresses the broker and bounds the supervisor's dial
// and reconnect behavior.
type ConnectionConfig struct {
	Host                 string
	Port                 int
	Timeout              time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}

// SecurityConfig governs transport encryption and session authentication.
// ServerKey/ClientKey are resolved through secret.Resolver before use, so
// they may be literal values or "secretref:"-prefixed references.
type SecurityConfig struct {
	EncryptionEnabled bool
	ServerKey         string
	ClientKey         string
	AuthEnabled       bool
	Method            SecurityMethod
	TokenExpiration   time.Duration
	SessionTimeout    time.Duration
	MaxLoginAttempts  int
	LockoutDuration   time.Duration

	// Roles and DefaultRole configure a SimpleRBACAuthorizer consulted as
	// a fallback whenever a session's own flat permission list doesn't
	// already grant a request. Leave Roles empty to fall back to
	// DenyAllAuthorizer (no behavior change beyond today's flat check).
	// Both apply only when AuthEnabled is set; with auth disabled the
	// fallback is AllowAllAuthorizer.
	Roles       map[string]auth.RoleConfig
	DefaultRole string

	// AuthenticatorName, if set, selects an authenticator registered in
	// auth.DefaultRegistry (e.g. "jwt", "api_key") built
	// from AuthenticatorConfig instead of the built-in JWT/API-key pair
	// buildAuthenticator otherwise constructs from Method.
	AuthenticatorName   string
	AuthenticatorConfig map[string]any

	// AuthorizerName, if set, selects an authorizer registered in
	// auth.DefaultRegistry (e.g. "allow_all", "deny_all", "simple_rbac")
	// built from AuthorizerConfig instead of the Roles-driven default
	// buildAuthorizer otherwise constructs.
	AuthorizerName   string
	AuthorizerConfig map[string]any
}

// RateLimitingConfig enables C3 and seeds its rule set.
type RateLimitingConfig struct {
	Enabled bool
	Rules   []resilience.Rule
}

// PerformanceConfig bounds request timeouts, router batching, and the
// default per-agent concurrency bulkhead.
type PerformanceConfig struct {
	RequestTimeout          time.Duration
	MaxConcurrentPerAgent   int
	HeartbeatInterval       time.Duration
	EventBatchSize          int
	EventProcessingInterval time.Duration
	MaxEventQueueSize       int
}

// LoggingConfig selects the structured logger's verbosity.
type LoggingConfig struct {
	Level string // debug|info|warn|error
}

// Config is the gateway's full recognized options object.
type Config struct {
	ServiceName  string
	Connection   ConnectionConfig
	Security     SecurityConfig
	RateLimiting RateLimitingConfig
	Performance  PerformanceConfig
	Logging      LoggingConfig

	// TokenSigningKey signs and validates self-issued session tokens. For
	// SecurityMethodToken it also validates externally presented JWTs.
	TokenSigningKey []byte
}

// Validate checks the recognized fields the way observe.Config.Validate
// checks its own: explicit per-field comparisons returning a plain error.
func (c Config) Validate() error {
	if c.Connection.Host == "" {
		return fmt.Errorf("gateway: connection.host is required")
	}
	if c.Connection.Port <= 0 {
		return fmt.Errorf("gateway: connection.port must be positive")
	}
	if c.Security.EncryptionEnabled && len(c.Security.ServerKey) == 0 {
		return fmt.Errorf("gateway: security.serverKey is required when encryption is enabled")
	}
	if c.Security.AuthEnabled {
		switch c.Security.Method {
		case SecurityMethodPassword, SecurityMethodAPIKey, SecurityMethodToken:
		default:
			return fmt.Errorf("gateway: unknown security.method %q", c.Security.Method)
		}
		if len(c.TokenSigningKey) == 0 {
			return fmt.Errorf("gateway: tokenSigningKey is required when auth is enabled")
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Connection.Timeout <= 0 {
		c.Connection.Timeout = 5 * time.Second
	}
	if c.Connection.ReconnectInterval <= 0 {
		c.Connection.ReconnectInterval = 500 * time.Millisecond
	}
	if c.Connection.MaxReconnectAttempts <= 0 {
		c.Connection.MaxReconnectAttempts = 10
	}
	if c.Connection.HeartbeatInterval <= 0 {
		c.Connection.HeartbeatInterval = 15 * time.Second
	}
	if c.Security.SessionTimeout <= 0 {
		c.Security.SessionTimeout = 30 * time.Minute
	}
	if c.Security.MaxLoginAttempts <= 0 {
		c.Security.MaxLoginAttempts = 5
	}
	if c.Security.LockoutDuration <= 0 {
		c.Security.LockoutDuration = time.Minute
	}
	if c.Performance.RequestTimeout <= 0 {
		c.Performance.RequestTimeout = 30 * time.Second
	}
	if c.Performance.MaxConcurrentPerAgent <= 0 {
		c.Performance.MaxConcurrentPerAgent = 10
	}
	if c.Performance.EventBatchSize <= 0 {
		c.Performance.EventBatchSize = 50
	}
	if c.Performance.EventProcessingInterval <= 0 {
		c.Performance.EventProcessingInterval = 100 * time.Millisecond
	}
	if c.Performance.MaxEventQueueSize <= 0 {
		c.Performance.MaxEventQueueSize = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return c
}
