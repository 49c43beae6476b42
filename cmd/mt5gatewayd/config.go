package main

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/jonwraymond/mt5gateway/auth"
	"github.com/jonwraymond/mt5gateway/gateway"
	"github.com/jonwraymond/mt5gateway/observe"
	"github.com/jonwraymond/mt5gateway/resilience"
)

// fileConfig is the on-disk shape of the daemon's config file: a thin YAML
// projection of gateway.Config plus the observe.Config the binary needs for
// its own telemetry bootstrap. Fields mirror the recognized options object
// field-for-field; durations are plain seconds/milliseconds so the file
// stays free of Go-specific duration syntax.
type fileConfig struct {
	ServiceName string `yaml:"serviceName"`

	Connection struct {
		Host                 string `yaml:"host"`
		Port                 int    `yaml:"port"`
		TimeoutSec           int    `yaml:"timeoutSec"`
		ReconnectIntervalMs  int    `yaml:"reconnectIntervalMs"`
		MaxReconnectAttempts int    `yaml:"maxReconnectAttempts"`
		HeartbeatIntervalSec int    `yaml:"heartbeatIntervalSec"`
	} `yaml:"connection"`

	Security struct {
		EncryptionEnabled bool   `yaml:"encryptionEnabled"`
		ServerKey         string `yaml:"serverKey"`
		ClientKey         string `yaml:"clientKey"`
		AuthEnabled       bool   `yaml:"authEnabled"`
		Method            string `yaml:"method"`
		SessionTimeoutMin int    `yaml:"sessionTimeoutMin"`
		MaxLoginAttempts  int    `yaml:"maxLoginAttempts"`
		LockoutDurationMs int    `yaml:"lockoutDurationMs"`
		TokenSigningKey   string `yaml:"tokenSigningKey"`

		// DefaultRole and Roles configure the session-level RBAC
		// authorizer consulted once an agent's own permission list
		// doesn't already grant a request. Roles is keyed by role name.
		DefaultRole string `yaml:"defaultRole"`
		Roles       map[string]struct {
			Permissions       []string `yaml:"permissions"`
			Inherits          []string `yaml:"inherits"`
			AllowedOperations []string `yaml:"allowedOperations"`
			DeniedOperations  []string `yaml:"deniedOperations"`
			AllowedActions    []string `yaml:"allowedActions"`
		} `yaml:"roles"`
	} `yaml:"security"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`
		Rules   []struct {
			ID           string  `yaml:"id"`
			Resource     string  `yaml:"resource"`
			MaxRequests  int     `yaml:"maxRequests"`
			Burst        int     `yaml:"burst"`
			RefillPerSec float64 `yaml:"refillPerSec"`
			WindowSec    int     `yaml:"windowSec"`
		} `yaml:"rules"`
	} `yaml:"rateLimiting"`

	Performance struct {
		RequestTimeoutSec       int `yaml:"requestTimeoutSec"`
		MaxConcurrentPerAgent   int `yaml:"maxConcurrentPerAgent"`
		EventBatchSize          int `yaml:"eventBatchSize"`
		EventProcessingIntervalMs int `yaml:"eventProcessingIntervalMs"`
		MaxEventQueueSize       int `yaml:"maxEventQueueSize"`
	} `yaml:"performance"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Observability struct {
		TracingEnabled bool    `yaml:"tracingEnabled"`
		TracingExporter string `yaml:"tracingExporter"`
		SamplePct      float64 `yaml:"samplePct"`
		MetricsEnabled bool    `yaml:"metricsEnabled"`
		MetricsExporter string `yaml:"metricsExporter"`
	} `yaml:"observability"`
}

// loadFileConfig reads and parses path into a fileConfig.
func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return &fc, nil
}

// toGatewayConfig projects the on-disk shape onto gateway.Config.
func (fc *fileConfig) toGatewayConfig() gateway.Config {
	cfg := gateway.Config{
		ServiceName: fc.ServiceName,
		Connection: gateway.ConnectionConfig{
			Host:                 fc.Connection.Host,
			Port:                 fc.Connection.Port,
			Timeout:              time.Duration(fc.Connection.TimeoutSec) * time.Second,
			ReconnectInterval:    time.Duration(fc.Connection.ReconnectIntervalMs) * time.Millisecond,
			MaxReconnectAttempts: fc.Connection.MaxReconnectAttempts,
			HeartbeatInterval:    time.Duration(fc.Connection.HeartbeatIntervalSec) * time.Second,
		},
		Security: gateway.SecurityConfig{
			EncryptionEnabled: fc.Security.EncryptionEnabled,
			ServerKey:         fc.Security.ServerKey,
			ClientKey:         fc.Security.ClientKey,
			AuthEnabled:       fc.Security.AuthEnabled,
			Method:            gateway.SecurityMethod(fc.Security.Method),
			SessionTimeout:    time.Duration(fc.Security.SessionTimeoutMin) * time.Minute,
			MaxLoginAttempts:  fc.Security.MaxLoginAttempts,
			LockoutDuration:   time.Duration(fc.Security.LockoutDurationMs) * time.Millisecond,
			DefaultRole:       fc.Security.DefaultRole,
		},
		RateLimiting: gateway.RateLimitingConfig{
			Enabled: fc.RateLimiting.Enabled,
		},
		Performance: gateway.PerformanceConfig{
			RequestTimeout:          time.Duration(fc.Performance.RequestTimeoutSec) * time.Second,
			MaxConcurrentPerAgent:   fc.Performance.MaxConcurrentPerAgent,
			EventBatchSize:          fc.Performance.EventBatchSize,
			EventProcessingInterval: time.Duration(fc.Performance.EventProcessingIntervalMs) * time.Millisecond,
			MaxEventQueueSize:       fc.Performance.MaxEventQueueSize,
		},
		Logging: gateway.LoggingConfig{
			Level: fc.Logging.Level,
		},
		TokenSigningKey: []byte(fc.Security.TokenSigningKey),
	}

	for _, r := range fc.RateLimiting.Rules {
		cfg.RateLimiting.Rules = append(cfg.RateLimiting.Rules, resilience.Rule{
			ID:           r.ID,
			Resource:     r.Resource,
			MaxRequests:  r.MaxRequests,
			Burst:        r.Burst,
			RefillPerSec: r.RefillPerSec,
			Window:       time.Duration(r.WindowSec) * time.Second,
		})
	}

	if len(fc.Security.Roles) > 0 {
		cfg.Security.Roles = make(map[string]auth.RoleConfig, len(fc.Security.Roles))
		for name, r := range fc.Security.Roles {
			cfg.Security.Roles[name] = auth.RoleConfig{
				Permissions:       r.Permissions,
				Inherits:          r.Inherits,
				AllowedOperations: r.AllowedOperations,
				DeniedOperations:  r.DeniedOperations,
				AllowedActions:    r.AllowedActions,
			}
		}
	}

	return cfg
}

// toObserveConfig projects the on-disk shape onto observe.Config.
func (fc *fileConfig) toObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: fc.ServiceName,
		Version:     "dev",
		Tracing: observe.TracingConfig{
			Enabled:   fc.Observability.TracingEnabled,
			Exporter:  fc.Observability.TracingExporter,
			SamplePct: fc.Observability.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  fc.Observability.MetricsEnabled,
			Exporter: fc.Observability.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   fc.Logging.Level,
		},
	}
}
