package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonwraymond/mt5gateway/agent"
	"github.com/jonwraymond/mt5gateway/auth"
	"github.com/jonwraymond/mt5gateway/cache"
	"github.com/jonwraymond/mt5gateway/domain"
	"github.com/jonwraymond/mt5gateway/gwerrors"
	"github.com/jonwraymond/mt5gateway/health"
	"github.com/jonwraymond/mt5gateway/observe"
	"github.com/jonwraymond/mt5gateway/resilience"
	"github.com/jonwraymond/mt5gateway/router"
	"github.com/jonwraymond/mt5gateway/secret"
	"github.com/jonwraymond/mt5gateway/supervisor"
	"github.com/jonwraymond/mt5gateway/transport"
)

// Gateway is the caller-facing assembly of the Connection Core: one
// supervisor watching the broker's three sockets, one session manager,
// one rate limiter, one event router, and a pool of per-caller Agents
// multiplexed over all of it.
type Gateway struct {
	cfg    Config
	logger observe.Logger
	tracer observe.Tracer

	supervisor     *supervisor.Supervisor
	sessionManager *auth.SessionManager
	limiter        *resilience.Limiter
	router         *router.Router
	marketCache    *domain.MarketCache
	healthAgg      *health.Aggregator
	resolver       *secret.Resolver
	apiKeyStore    *auth.MemoryAPIKeyStore
	logins         *loginGuard

	mu     sync.RWMutex
	agents map[string]*agent.Agent
}

// New builds a Gateway from cfg without dialing any sockets; call
// Initialize then Connect to bring it up.
func New(cfg Config, logger observe.Logger, tracer observe.Tracer) (*Gateway, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observe.NewNoopLogger()
	}
	if tracer == nil {
		tracer = observe.NewNoopTracer()
	}

	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
		agents: make(map[string]*agent.Agent),
	}
	return g, nil
}

// Initialize resolves secrets, builds the session layer, rate limiter,
// event router, market cache, health surface, and supervisor. It does not
// dial any broker socket; call Connect for that.
func (g *Gateway) Initialize(ctx context.Context, resolver *secret.Resolver) error {
	g.resolver = resolver

	var encryptor transport.Encryptor
	if g.cfg.Security.EncryptionEnabled {
		serverKey, err := g.resolveSecret(ctx, g.cfg.Security.ServerKey)
		if err != nil {
			return fmt.Errorf("gateway: resolve security.serverKey: %w", err)
		}
		enc, err := transport.NewChaCha20Poly1305Encryptor([]byte(serverKey))
		if err != nil {
			return fmt.Errorf("gateway: build encryptor: %w", err)
		}
		encryptor = enc
	}

	authenticator, store, err := buildAuthenticator(g.cfg.Security, g.cfg.TokenSigningKey)
	if err != nil {
		return fmt.Errorf("gateway: build authenticator: %w", err)
	}
	g.apiKeyStore = store

	if g.cfg.RateLimiting.Enabled {
		g.limiter = resilience.NewLimiter(resilience.LimiterConfig{})
		for _, rule := range g.cfg.RateLimiting.Rules {
			if err := g.limiter.AddRule(rule); err != nil {
				return fmt.Errorf("gateway: add rate limit rule %q: %w", rule.ID, err)
			}
		}
	}

	g.sessionManager = auth.NewSessionManager(auth.SessionManagerConfig{
		SessionTTL:      g.cfg.Security.SessionTimeout,
		TokenSigningKey: g.cfg.TokenSigningKey,
		TokenIssuer:     "mt5gateway",
		Authorizer:      buildAuthorizer(g.cfg.Security),
	}, authenticator, g.limiter, g.logger, g.tracer)

	g.logins = newLoginGuard(g.cfg.Security.MaxLoginAttempts, g.cfg.Security.LockoutDuration)

	g.router = router.New(router.Config{
		MaxQueueSize:       g.cfg.Performance.MaxEventQueueSize,
		BatchSize:          g.cfg.Performance.EventBatchSize,
		ProcessingInterval: g.cfg.Performance.EventProcessingInterval,
	}, g.logger, g.tracer)

	g.marketCache = domain.NewMarketCache(cache.NewMemoryCache(cache.DefaultPolicy()), cache.DefaultPolicy(), 0)

	g.supervisor = supervisor.New(supervisor.Config{
		Host:                 g.cfg.Connection.Host,
		Port:                 g.cfg.Connection.Port,
		DialTimeout:          g.cfg.Connection.Timeout,
		HeartbeatInterval:    g.cfg.Connection.HeartbeatInterval,
		ReconnectBaseDelay:   g.cfg.Connection.ReconnectInterval,
		MaxReconnectAttempts: g.cfg.Connection.MaxReconnectAttempts,
		RequestTimeout:       g.cfg.Performance.RequestTimeout,
		Encryptor:            encryptor,
	}, g.logger, g.tracer)

	g.healthAgg = health.NewAggregator()
	g.registerHealthCheckers()

	return nil
}

func (g *Gateway) resolveSecret(ctx context.Context, value string) (string, error) {
	if g.resolver == nil || value == "" {
		return value, nil
	}
	return g.resolver.ResolveValue(ctx, value)
}

// Connect dials the broker's three sockets and starts the heartbeat.
func (g *Gateway) Connect(ctx context.Context) error {
	return g.supervisor.Connect(ctx)
}

// Disconnect closes the broker sockets without tearing down sessions or
// agents. A subsequent Connect resumes service.
func (g *Gateway) Disconnect(ctx context.Context) error {
	return g.supervisor.Disconnect(ctx)
}

// Shutdown disconnects, deactivates every agent, and stops the router and
// session sweep loops. It is the terminal call; the Gateway cannot be
// reused afterward.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	agents := make([]*agent.Agent, 0, len(g.agents))
	for _, a := range g.agents {
		agents = append(agents, a)
	}
	g.agents = make(map[string]*agent.Agent)
	g.mu.Unlock()

	for _, a := range agents {
		a.Deactivate()
	}

	if g.limiter != nil {
		g.limiter.Close()
	}
	if g.sessionManager != nil {
		g.sessionManager.Shutdown()
	}
	routerErr := g.router.Shutdown(ctx)
	superErr := g.supervisor.Shutdown(ctx)
	return errors.Join(routerErr, superErr)
}

// CreateAgent authenticates secret under cfg.ID's identity and hands back
// a ready-to-use Agent. For SecurityMethodToken, secret is a pre-issued
// bearer token; otherwise it is a shared secret the gateway registers
// under cfg.ID.
func (g *Gateway) CreateAgent(ctx context.Context, cfg agent.Config, secret string, peer auth.PeerInfo) (*agent.Agent, error) {
	g.mu.RLock()
	_, exists := g.agents[cfg.ID]
	g.mu.RUnlock()
	if exists {
		return nil, gwerrors.New(gwerrors.KindValidation, "AGENT_EXISTS", "agent id already in use: "+cfg.ID)
	}

	if cfg.Bulkhead.MaxConcurrent <= 0 {
		cfg.Bulkhead.MaxConcurrent = g.cfg.Performance.MaxConcurrentPerAgent
	}

	if err := g.logins.CheckLocked(cfg.ID); err != nil {
		return nil, err
	}

	if g.apiKeyStore != nil {
		if err := g.apiKeyStore.Add(&auth.APIKeyInfo{
			ID:        cfg.ID,
			KeyHash:   auth.HashAPIKey(secret),
			Principal: cfg.ID,
			Roles:     cfg.Permissions,
		}); err != nil {
			return nil, gwerrors.Wrap(err, gwerrors.KindInternal, gwerrors.CodeInternal)
		}
	}

	a := agent.New(cfg, g.sessionManager, g.limiter, agent.FromSupervisorMultiplexer(g.supervisor.Multiplexer), g.router, g.marketCache, g.logger, g.tracer)

	creds := auth.Credentials{Principal: cfg.ID, Secret: secret, Method: authMethodFor(g.cfg.Security.Method)}
	if err := a.Initialize(ctx, creds, peer); err != nil {
		g.logins.RecordFailure(cfg.ID)
		return nil, err
	}
	g.logins.RecordSuccess(cfg.ID)

	g.mu.Lock()
	g.agents[cfg.ID] = a
	g.mu.Unlock()

	return a, nil
}

// GetAgent returns the agent registered under id, if any.
func (g *Gateway) GetAgent(id string) (*agent.Agent, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.agents[id]
	return a, ok
}

// RemoveAgent deactivates and unregisters the agent, if present.
func (g *Gateway) RemoveAgent(id string) {
	g.mu.Lock()
	a, ok := g.agents[id]
	if ok {
		delete(g.agents, id)
	}
	g.mu.Unlock()

	if ok {
		a.Deactivate()
	}
}

// Status reports the supervisor's current connection statistics.
func (g *Gateway) Status() supervisor.Stats {
	return g.supervisor.Stats()
}

// Health runs every registered health check and returns the results.
func (g *Gateway) Health(ctx context.Context) map[string]health.Result {
	return g.healthAgg.CheckAll(ctx)
}

// HealthAggregator exposes the underlying aggregator so callers can wire
// health.RegisterHandlers onto their own HTTP mux.
func (g *Gateway) HealthAggregator() *health.Aggregator {
	return g.healthAgg
}
