package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/mt5gateway/auth"
	"github.com/jonwraymond/mt5gateway/cache"
	"github.com/jonwraymond/mt5gateway/domain"
	"github.com/jonwraymond/mt5gateway/gwerrors"
	"github.com/jonwraymond/mt5gateway/observe"
	"github.com/jonwraymond/mt5gateway/resilience"
	"github.com/jonwraymond/mt5gateway/router"
	"github.com/jonwraymond/mt5gateway/transport"
)

// transportClient is the slice of *transport.Multiplexer an Agent needs.
// Narrowing to an interface keeps Agent testable against a fake without
// standing up real sockets.
type transportClient interface {
	SendRequest(ctx context.Context, msgType, action string, data any) (transport.Envelope, error)
	Subscribe(topics []string) error
	Unsubscribe(topics []string) error
}

// MultiplexerFunc returns the gateway's current live transport, or nil with
// a connection error if the supervisor is not connected. It is a func
// rather than a stored pointer because the supervisor swaps the
// multiplexer out from under callers on every reconnect.
type MultiplexerFunc func() (transportClient, error)

// FromSupervisorMultiplexer adapts a func returning *transport.Multiplexer
// (e.g. supervisor.Supervisor.Multiplexer) into a MultiplexerFunc, mapping
// a nil multiplexer onto a NotConnected error.
func FromSupervisorMultiplexer(fn func() *transport.Multiplexer) MultiplexerFunc {
	return func() (transportClient, error) {
		mux := fn()
		if mux == nil {
			return nil, gwerrors.New(gwerrors.KindConnection, gwerrors.CodeNotConnected, "gateway is not connected")
		}
		return mux, nil
	}
}

// Agent is the public object a caller holds: a session-bound, rate-limited,
// breaker-protected facade over the broker's trading, market-data, and
// account operations.
type Agent struct {
	id          string
	accountID   string
	permissions []string

	sessionManager *auth.SessionManager
	limiter        *resilience.Limiter
	breaker        *resilience.CircuitBreaker
	bulkhead       *resilience.Bulkhead
	muxFn          MultiplexerFunc
	events         *router.Router
	marketCache    *domain.MarketCache
	symbolCache    *cache.CacheMiddleware
	logger         observe.Logger
	tracer         observe.Tracer

	mu           sync.RWMutex
	status       Status
	sessionID    string
	lastActivity time.Time

	subsMu sync.Mutex
	subs   map[string]*router.Subscription
}

// New builds an Agent in StatusUnauthenticated. Call Initialize to obtain a
// session before issuing any call.
func New(cfg Config, sessionManager *auth.SessionManager, limiter *resilience.Limiter, muxFn MultiplexerFunc, events *router.Router, marketCache *domain.MarketCache, logger observe.Logger, tracer observe.Tracer) *Agent {
	if logger == nil {
		logger = observe.NewNoopLogger()
	}
	if tracer == nil {
		tracer = observe.NewNoopTracer()
	}
	symbolPolicy := cache.DefaultPolicy()
	a := &Agent{
		id:             cfg.ID,
		accountID:      cfg.AccountID,
		permissions:    cfg.Permissions,
		sessionManager: sessionManager,
		limiter:        limiter,
		muxFn:          muxFn,
		events:         events,
		marketCache:    marketCache,
		symbolCache:    cache.NewCacheMiddleware(cache.NewMemoryCache(symbolPolicy), cache.NewDefaultKeyer(), symbolPolicy, nil),
		logger:         logger,
		tracer:         tracer,
		status:         StatusUnauthenticated,
		subs:           make(map[string]*router.Subscription),
	}

	breakerCfg := cfg.Breaker
	breakerCfg.OnStateChange = a.onBreakerStateChange
	a.breaker = resilience.NewCircuitBreaker(breakerCfg)
	a.bulkhead = resilience.NewBulkhead(cfg.Bulkhead)

	return a
}

// ID returns the agent's identity, used as the rate limiter's client id.
func (a *Agent) ID() string { return a.id }

// Status reports the agent's current authorization state.
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Initialize authenticates the agent's credentials and lazily obtains its
// session, per the "session obtained in initialize()" binding.
func (a *Agent) Initialize(ctx context.Context, creds auth.Credentials, peer auth.PeerInfo) error {
	sess, _, err := a.sessionManager.Authenticate(ctx, creds, peer)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.sessionID = sess.ID
	a.status = StatusActive
	a.lastActivity = time.Now()
	a.mu.Unlock()
	return nil
}

// BreakerState reports this agent's circuit breaker's current position,
// for external health surfaces.
func (a *Agent) BreakerState() resilience.State {
	return a.breaker.State()
}

// Deactivate marks the agent permanently disabled; it will reject every
// subsequent call. Any live subscriptions are removed.
func (a *Agent) Deactivate() {
	a.mu.Lock()
	a.status = StatusDisabled
	sessionID := a.sessionID
	a.mu.Unlock()

	if sessionID != "" {
		a.sessionManager.InvalidateSession(sessionID)
	}

	a.subsMu.Lock()
	for topic, sub := range a.subs {
		a.events.Unsubscribe(sub.ID)
		delete(a.subs, topic)
	}
	a.subsMu.Unlock()
}

func (a *Agent) touch() {
	a.mu.Lock()
	a.lastActivity = time.Now()
	a.mu.Unlock()
}

// validateActive implements the pipeline's first gate: the agent must not
// be disabled and must hold a currently valid session. A session that has
// expired or been invalidated flips the agent to Unauthenticated.
func (a *Agent) validateActive() (string, error) {
	a.mu.RLock()
	status := a.status
	sessionID := a.sessionID
	a.mu.RUnlock()

	if status == StatusDisabled {
		return "", gwerrors.New(gwerrors.KindAuthentication, "AGENT_DISABLED", "agent has been removed")
	}
	if status != StatusActive || sessionID == "" {
		return "", gwerrors.New(gwerrors.KindAuthentication, gwerrors.CodeSessionExpired, "agent has no active session")
	}

	if _, err := a.sessionManager.ValidateSession(sessionID, ""); err != nil {
		a.mu.Lock()
		a.status = StatusUnauthenticated
		a.mu.Unlock()
		return "", err
	}

	a.touch()
	return sessionID, nil
}

// checkPermission is the pipeline's authorization gate. The agent's own
// flat permissions slice (including the "*" wildcard) is checked first; if
// it doesn't grant perm, the gate falls back to the session's own
// permission/authorizer check so that an operator-configured RBAC policy
// can still grant access an agent wasn't statically provisioned with.
func (a *Agent) checkPermission(ctx context.Context, sessionID, perm, op string) error {
	for _, p := range a.permissions {
		if p == perm || p == "*" {
			return nil
		}
	}
	ctx = auth.WithIdentity(ctx, &auth.Identity{Principal: a.id, Roles: a.permissions})
	if a.sessionManager.CheckPermission(ctx, sessionID, perm, op) {
		return nil
	}
	return gwerrors.New(gwerrors.KindAuthorization, "PERMISSION_DENIED", "agent lacks required permission: "+perm)
}

// call runs the full pipeline for one operation and returns its reply
// envelope: validateActive -> checkPermission -> limiter.check -> bulkhead
// -> breaker -> build(request envelope send).
func (a *Agent) call(ctx context.Context, perm, op string, send func(ctx context.Context, mux transportClient) (transport.Envelope, error)) (transport.Envelope, error) {
	sessionID, err := a.validateActive()
	if err != nil {
		return transport.Envelope{}, err
	}
	if err := a.checkPermission(ctx, sessionID, perm, op); err != nil {
		return transport.Envelope{}, err
	}
	return a.dispatch(ctx, op, send)
}

// dispatch runs the pipeline's lower half (limiter -> bulkhead -> breaker ->
// send) without the validateActive/checkPermission gates, for callers that
// already ran their own gate ahead of a cache lookup (see GetSymbolInfo).
func (a *Agent) dispatch(ctx context.Context, op string, send func(ctx context.Context, mux transportClient) (transport.Envelope, error)) (transport.Envelope, error) {
	if a.limiter != nil {
		decision := a.limiter.Check(a.id, op, 1)
		if !decision.Allowed {
			a.emitEvent("error", map[string]any{
				"reason":     "rate_limited",
				"op":         op,
				"retryAfter": decision.RetryAfter.String(),
			})
			return transport.Envelope{}, gwerrors.New(gwerrors.KindRateLimited, gwerrors.CodeRateLimited, "rate limit exceeded for "+op).
				WithDetails(map[string]any{"retryAfter": decision.RetryAfter.String()})
		}
	}

	mux, err := a.muxFn()
	if err != nil {
		return transport.Envelope{}, err
	}

	var env transport.Envelope
	runErr := a.bulkhead.Execute(ctx, func(ctx context.Context) error {
		return a.breaker.Execute(ctx, func(ctx context.Context) error {
			e, sendErr := send(ctx, mux)
			if sendErr != nil {
				return sendErr
			}
			if e.IsError() {
				return gwerrors.FromWireCode(e.ErrorCode, e.Error)
			}
			env = e
			return nil
		})
	})
	if runErr != nil {
		if runErr == resilience.ErrCircuitOpen {
			a.emitEvent("error", map[string]any{"reason": "circuit_open", "op": op})
			return transport.Envelope{}, gwerrors.New(gwerrors.KindCircuitOpen, gwerrors.CodeCircuitOpen, "circuit breaker open for "+op)
		}
		if runErr == resilience.ErrBulkheadFull {
			a.emitEvent("error", map[string]any{"reason": "bulkhead_full", "op": op})
			return transport.Envelope{}, gwerrors.New(gwerrors.KindInternal, gwerrors.CodeInternal, "too many concurrent calls for "+op)
		}
		return transport.Envelope{}, runErr
	}
	return env, nil
}

func (a *Agent) onBreakerStateChange(from, to resilience.State) {
	a.emitEvent("circuit_state", map[string]any{"from": from.String(), "to": to.String()})
}

func (a *Agent) emitEvent(eventType string, data map[string]any) {
	if a.events == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	a.events.Submit(router.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Source:    "agent:" + a.id,
		Data:      payload,
	})
}

// ExecuteTrade submits a new trade. Requires the trade permission.
func (a *Agent) ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.Trade, error) {
	if err := req.Validate(); err != nil {
		return domain.Trade{}, err
	}
	env, err := a.call(ctx, PermissionTrade, "executeTrade", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "TRADE_REQUEST", "executeTrade", req.ToPayload())
	})
	if err != nil {
		return domain.Trade{}, err
	}
	return domain.FromTradePayload(env.Data)
}

// ClosePosition closes an open position by id. Requires the trade
// permission.
func (a *Agent) ClosePosition(ctx context.Context, positionID string) (domain.Trade, error) {
	env, err := a.call(ctx, PermissionTrade, "closePosition", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "TRADE_REQUEST", "closePosition", map[string]any{"positionId": positionID})
	})
	if err != nil {
		return domain.Trade{}, err
	}
	return domain.FromTradePayload(env.Data)
}

// CancelOrder cancels a pending order by id. Requires the trade permission.
func (a *Agent) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.call(ctx, PermissionTrade, "cancelOrder", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "TRADE_REQUEST", "cancelOrder", map[string]any{"orderId": orderID})
	})
	return err
}

// ModifyOrder changes a pending order's price/volume. Requires the trade
// permission.
func (a *Agent) ModifyOrder(ctx context.Context, req domain.ModifyOrderRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}
	env, err := a.call(ctx, PermissionTrade, "modifyOrder", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "TRADE_REQUEST", "modifyOrder", req.ToPayload())
	})
	if err != nil {
		return domain.Order{}, err
	}
	return domain.FromOrderPayload(env.Data)
}

// GetPositions lists the account's open positions. Requires the read
// permission.
func (a *Agent) GetPositions(ctx context.Context) ([]domain.Position, error) {
	env, err := a.call(ctx, PermissionRead, "getPositions", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "TRADE_REQUEST", "getPositions", map[string]any{"accountId": a.accountID})
	})
	if err != nil {
		return nil, err
	}
	return domain.FromPositionListPayload(env.Data)
}

// GetOrders lists the account's pending orders. Requires the read
// permission.
func (a *Agent) GetOrders(ctx context.Context) ([]domain.Order, error) {
	env, err := a.call(ctx, PermissionRead, "getOrders", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "TRADE_REQUEST", "getOrders", map[string]any{"accountId": a.accountID})
	})
	if err != nil {
		return nil, err
	}
	return domain.FromOrderListPayload(env.Data)
}

// GetAccountInfo fetches the account summary. Requires the read permission.
func (a *Agent) GetAccountInfo(ctx context.Context) (domain.Account, error) {
	env, err := a.call(ctx, PermissionRead, "getAccountInfo", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "ACCOUNT_REQUEST", "getInfo", map[string]any{"accountId": a.accountID})
	})
	if err != nil {
		return domain.Account{}, err
	}
	return domain.FromAccountPayload(env.Data)
}

// GetSymbolInfo fetches static instrument properties. Requires the read
// permission. Results are cached per symbol under the cache package's
// default policy, since instrument properties change rarely and repeated
// lookups (e.g. before every trade) would otherwise round-trip the broker
// each time.
func (a *Agent) GetSymbolInfo(ctx context.Context, symbol string) (domain.SymbolInfo, error) {
	sessionID, err := a.validateActive()
	if err != nil {
		return domain.SymbolInfo{}, err
	}
	if err := a.checkPermission(ctx, sessionID, PermissionRead, "getSymbolInfo"); err != nil {
		return domain.SymbolInfo{}, err
	}

	data, err := a.symbolCache.Execute(ctx, "getSymbolInfo", symbol, nil, func(ctx context.Context, _ string, _ any) ([]byte, error) {
		env, dispatchErr := a.dispatch(ctx, "getSymbolInfo", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
			return mux.SendRequest(ctx, "MARKET_REQUEST", "getSymbolInfo", map[string]any{"symbol": symbol})
		})
		if dispatchErr != nil {
			return nil, dispatchErr
		}
		return env.Data, nil
	})
	if err != nil {
		return domain.SymbolInfo{}, err
	}
	return domain.FromSymbolInfoPayload(data)
}

// GetOHLC fetches historical bars, caching the series for the symbol on
// success. Requires the read permission.
func (a *Agent) GetOHLC(ctx context.Context, req domain.OHLCRequest) ([]domain.OHLC, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	env, err := a.call(ctx, PermissionRead, "getOHLC", func(ctx context.Context, mux transportClient) (transport.Envelope, error) {
		return mux.SendRequest(ctx, "MARKET_REQUEST", "getOHLC", req.ToPayload())
	})
	if err != nil {
		return nil, err
	}
	bars, err := domain.FromOHLCListPayload(env.Data)
	if err != nil {
		return nil, err
	}
	if a.marketCache != nil {
		for _, bar := range bars {
			a.marketCache.AppendOHLC(bar.Symbol, bar)
		}
	}
	return bars, nil
}

// SubscribeToMarketData opens a tick subscription for the given symbols:
// it subscribes the transport's SUB channel to each symbol's topic and
// registers a router subscription that translates and caches incoming
// ticks before invoking handler. Requires the read permission.
func (a *Agent) SubscribeToMarketData(ctx context.Context, symbols []string, handler router.Handler) error {
	sessionID, err := a.validateActive()
	if err != nil {
		return err
	}
	if err := a.checkPermission(ctx, sessionID, PermissionRead, "subscribe"); err != nil {
		return err
	}
	mux, err := a.muxFn()
	if err != nil {
		return err
	}
	if err := mux.Subscribe(symbols); err != nil {
		return err
	}

	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, symbol := range symbols {
		sym := symbol
		sub := a.events.Subscribe(router.SubscriptionFilter{Type: "tick", Source: sym}, 0, func(ctx context.Context, e router.Event) error {
			tick, err := domain.FromTickPayload(e.Data)
			if err != nil {
				return err
			}
			if a.marketCache != nil {
				_ = a.marketCache.PutTick(ctx, tick)
			}
			if handler != nil {
				return handler(ctx, e)
			}
			return nil
		})
		a.subs[sym] = sub
	}
	return nil
}

// UnsubscribeFromMarketData tears down both the transport subscription and
// the router registration for the given symbols, and invalidates their
// cached market data.
func (a *Agent) UnsubscribeFromMarketData(ctx context.Context, symbols []string) error {
	mux, err := a.muxFn()
	if err != nil {
		return err
	}
	if err := mux.Unsubscribe(symbols); err != nil {
		return err
	}

	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, symbol := range symbols {
		if sub, ok := a.subs[symbol]; ok {
			a.events.Unsubscribe(sub.ID)
			delete(a.subs, symbol)
		}
		if a.marketCache != nil {
			a.marketCache.Invalidate(ctx, symbol)
		}
	}
	return nil
}
