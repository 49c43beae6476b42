package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/mt5gateway/gwerrors"
	"github.com/jonwraymond/mt5gateway/observe"
	"github.com/jonwraymond/mt5gateway/resilience"
)

// Risk tags an audit entry by how concerning it is.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// AuditEntry is one append-only record of an authentication, session, or
// authorization event.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Event     string
	UserID    string
	SessionID string
	Peer      string
	Success   bool
	Risk      Risk
	Details   map[string]any
}

// Credentials carries what a caller presents to authenticate. Method picks
// which Authenticator sees it: AuthMethodAPIKey synthesizes an X-API-Key
// header, AuthMethodJWT a Bearer Authorization header, so the existing
// header-oriented Authenticator implementations need no changes.
type Credentials struct {
	Principal string
	Secret    string
	Method    AuthMethod
}

// PeerInfo describes the caller's transport-level identity, used for the
// auth-rate-limit key and recorded on the session for audit purposes.
type PeerInfo struct {
	Address   string
	UserAgent string
}

// Session is a first-class authenticated session bound to a peer.
type Session struct {
	ID           string
	UserID       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Permissions  []string
	PeerAddress  string
	AgentUA      string

	mu           sync.RWMutex
	active       bool
	lastActivity time.Time
}

// Valid reports whether the session is active and unexpired. Per the
// invariant, any use of an invalid session must invalidate it.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active && time.Now().Before(s.ExpiresAt)
}

// HasPermission reports whether perm is granted, including via the "*"
// wildcard.
func (s *Session) HasPermission(perm string) bool {
	for _, p := range s.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}

// LastActivity returns the last time this session was touched.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) invalidate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// SessionManagerConfig governs session lifetime, sweep cadence, audit
// retention, and the key used to sign self-issued session tokens.
type SessionManagerConfig struct {
	SessionTTL     time.Duration // Default 30m.
	SweepInterval  time.Duration // Default 1m.
	AuditRetention time.Duration // Default 24h.
	TokenSigningKey []byte
	TokenIssuer     string

	// Authorizer is consulted by CheckPermission when a session's flat
	// Permissions list doesn't already grant the request. Nil disables
	// the fallback, so CheckPermission behaves as a plain permission-list
	// lookup.
	Authorizer Authorizer
}

func (c SessionManagerConfig) withDefaults() SessionManagerConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 24 * time.Hour
	}
	if c.TokenIssuer == "" {
		c.TokenIssuer = "mt5gateway"
	}
	return c
}

// SessionManager implements authenticate/validateSession/checkPermission
// over an Authenticator, minting and verifying a self-issued JWT that binds
// a peer to its session, and keeping an append-only, risk-tagged audit log.
type SessionManager struct {
	cfg           SessionManagerConfig
	authenticator Authenticator
	limiter       *resilience.Limiter
	logger        observe.Logger
	tracer        observe.Tracer

	mu       sync.RWMutex
	sessions map[string]*Session

	auditMu sync.Mutex
	audit   []AuditEntry

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionManager builds a SessionManager and starts its background
// sweep of expired sessions and stale audit entries.
func NewSessionManager(cfg SessionManagerConfig, authenticator Authenticator, limiter *resilience.Limiter, logger observe.Logger, tracer observe.Tracer) *SessionManager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observe.NewNoopLogger()
	}
	if tracer == nil {
		tracer = observe.NewNoopTracer()
	}
	sm := &SessionManager{
		cfg:           cfg,
		authenticator: authenticator,
		limiter:       limiter,
		logger:        logger,
		tracer:        tracer,
		sessions:      make(map[string]*Session),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go sm.sweepLoop()
	return sm
}

// Authenticate validates credentials under the "auth:peer" rate-limit rule,
// mints a session and a bearer token binding the peer to it on success,
// and appends an audit entry regardless of outcome.
func (sm *SessionManager) Authenticate(ctx context.Context, creds Credentials, peer PeerInfo) (*Session, string, error) {
	if sm.limiter != nil {
		decision := sm.limiter.Check(peer.Address, "auth:peer", 1)
		if !decision.Allowed {
			sm.appendAudit(AuditEntry{
				Event:   "authenticate",
				Peer:    peer.Address,
				Success: false,
				Risk:    RiskMedium,
				Details: map[string]any{"reason": "rate_limited", "retry_after": decision.RetryAfter.String()},
			})
			return nil, "", gwerrors.New(gwerrors.KindRateLimited, gwerrors.CodeRateLimited, "authentication rate limit exceeded")
		}
	}

	req := buildAuthRequest(creds)
	result, err := sm.authenticator.Authenticate(ctx, req)
	if err != nil {
		sm.appendAudit(AuditEntry{
			Event:   "authenticate",
			UserID:  creds.Principal,
			Peer:    peer.Address,
			Success: false,
			Risk:    RiskHigh,
			Details: map[string]any{"reason": "internal_error", "error": err.Error()},
		})
		return nil, "", gwerrors.Wrap(err, gwerrors.KindInternal, gwerrors.CodeInternal)
	}
	if !result.Authenticated {
		sm.appendAudit(AuditEntry{
			Event:   "authenticate",
			UserID:  creds.Principal,
			Peer:    peer.Address,
			Success: false,
			Risk:    RiskHigh,
			Details: map[string]any{"reason": result.Error.Error()},
		})
		return nil, "", gwerrors.New(gwerrors.KindAuthentication, "AUTH_FAILED", result.Error.Error())
	}

	sessionID, err := newOpaqueID()
	if err != nil {
		return nil, "", gwerrors.Wrap(err, gwerrors.KindInternal, gwerrors.CodeInternal)
	}
	now := time.Now()
	sess := &Session{
		ID:           sessionID,
		UserID:       result.Identity.Principal,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sm.cfg.SessionTTL),
		Permissions:  derivePermissions(result.Identity),
		PeerAddress:  peer.Address,
		AgentUA:      peer.UserAgent,
		active:       true,
		lastActivity: now,
	}

	sm.mu.Lock()
	sm.sessions[sessionID] = sess
	sm.mu.Unlock()

	token, err := sm.signToken(sess)
	if err != nil {
		sm.invalidateLocked(sessionID)
		return nil, "", gwerrors.Wrap(err, gwerrors.KindInternal, gwerrors.CodeInternal)
	}

	sm.appendAudit(AuditEntry{
		Event:     "authenticate",
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Peer:      peer.Address,
		Success:   true,
		Risk:      RiskLow,
	})
	return sess, token, nil
}

// ValidateSession requires the session to be active and unexpired and, if
// a token is supplied, that the token's embedded session id matches.
func (sm *SessionManager) ValidateSession(sessionID, token string) (*Session, error) {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if !ok || !sess.Valid() {
		sm.appendAudit(AuditEntry{
			Event:     "validate_session",
			SessionID: sessionID,
			Success:   false,
			Risk:      RiskHigh,
			Details:   map[string]any{"reason": "not_found_or_expired"},
		})
		if ok {
			sm.invalidateLocked(sessionID)
		}
		return nil, gwerrors.New(gwerrors.KindAuthentication, gwerrors.CodeSessionExpired, "session expired or inactive")
	}

	if token != "" {
		boundID, err := sm.parseToken(token)
		if err != nil || boundID != sessionID {
			sm.appendAudit(AuditEntry{
				Event:     "validate_session",
				SessionID: sessionID,
				Success:   false,
				Risk:      RiskHigh,
				Details:   map[string]any{"reason": "token_mismatch"},
			})
			return nil, gwerrors.New(gwerrors.KindAuthentication, "TOKEN_MISMATCH", "token does not bind to this session")
		}
	}

	sess.touch()
	return sess, nil
}

// CheckPermission reports whether the session holds perm. If the session's
// flat Permissions list doesn't grant it and an Authorizer is configured,
// CheckPermission falls back to it, building an AuthzRequest for the named
// op (resource "op:"+op, action perm) against the identity carried on ctx
// (see WithIdentity) or, absent one, an identity synthesized from the
// session itself. Denials are audited at medium risk.
func (sm *SessionManager) CheckPermission(ctx context.Context, sessionID, perm, op string) bool {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if !ok || !sess.Valid() {
		return false
	}
	if sess.HasPermission(perm) {
		return true
	}
	if sm.cfg.Authorizer != nil {
		subject := IdentityFromContext(ctx)
		if subject == nil {
			subject = &Identity{Principal: sess.UserID, Roles: sess.Permissions}
		}
		req := &AuthzRequest{
			Subject:      subject,
			Resource:     "op:" + op,
			Action:       perm,
			ResourceType: "operation",
		}
		if err := sm.cfg.Authorizer.Authorize(ctx, req); err == nil {
			return true
		}
	}
	sm.appendAudit(AuditEntry{
		Event:     "check_permission",
		SessionID: sessionID,
		UserID:    sess.UserID,
		Success:   false,
		Risk:      RiskMedium,
		Details:   map[string]any{"permission": perm, "op": op},
	})
	return false
}

// InvalidateSession marks a session inactive immediately.
func (sm *SessionManager) InvalidateSession(sessionID string) {
	sm.invalidateLocked(sessionID)
	sm.appendAudit(AuditEntry{Event: "invalidate_session", SessionID: sessionID, Success: true, Risk: RiskLow})
}

func (sm *SessionManager) invalidateLocked(sessionID string) {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if ok {
		sess.invalidate()
	}
}

// AuditLog returns a snapshot of the current audit entries.
func (sm *SessionManager) AuditLog() []AuditEntry {
	sm.auditMu.Lock()
	defer sm.auditMu.Unlock()
	out := make([]AuditEntry, len(sm.audit))
	copy(out, sm.audit)
	return out
}

// Shutdown stops the background sweep.
func (sm *SessionManager) Shutdown() {
	sm.stopOnce.Do(func() { close(sm.stopCh) })
	<-sm.doneCh
}

func (sm *SessionManager) appendAudit(entry AuditEntry) {
	entry.Timestamp = time.Now()
	if id, err := newOpaqueID(); err == nil {
		entry.ID = id
	}
	sm.auditMu.Lock()
	sm.audit = append(sm.audit, entry)
	sm.auditMu.Unlock()
}

func (sm *SessionManager) sweepLoop() {
	defer close(sm.doneCh)
	ticker := time.NewTicker(sm.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stopCh:
			return
		case <-ticker.C:
			sm.sweep()
		}
	}
}

func (sm *SessionManager) sweep() {
	now := time.Now()

	sm.mu.Lock()
	for id, sess := range sm.sessions {
		if !sess.Valid() || now.After(sess.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	cutoff := now.Add(-sm.cfg.AuditRetention)
	sm.auditMu.Lock()
	kept := sm.audit[:0]
	for _, e := range sm.audit {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	sm.audit = kept
	sm.auditMu.Unlock()
}

func (sm *SessionManager) signToken(sess *Session) (string, error) {
	claims := jwt.MapClaims{
		"sid": sess.ID,
		"sub": sess.UserID,
		"iss": sm.cfg.TokenIssuer,
		"iat": sess.CreatedAt.Unix(),
		"exp": sess.ExpiresAt.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(sm.cfg.TokenSigningKey)
}

func (sm *SessionManager) parseToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return sm.cfg.TokenSigningKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrTokenMalformed
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", ErrTokenMalformed
	}
	return sid, nil
}

func buildAuthRequest(creds Credentials) *AuthRequest {
	headers := make(map[string][]string)
	switch creds.Method {
	case AuthMethodJWT:
		headers["Authorization"] = []string{"Bearer " + creds.Secret}
	default:
		headers["X-API-Key"] = []string{creds.Secret}
	}
	return &AuthRequest{Headers: headers, Metadata: map[string]any{"principal": creds.Principal}}
}

func derivePermissions(id *Identity) []string {
	if len(id.Permissions) > 0 {
		return id.Permissions
	}
	perms := make([]string, 0, len(id.Roles))
	perms = append(perms, id.Roles...)
	return perms
}

func newOpaqueID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
