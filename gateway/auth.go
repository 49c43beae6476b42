package gateway

import (
	"github.com/jonwraymond/mt5gateway/auth"
)

// authMethodFor maps the gateway's recognized security.method onto the
// Credentials.Method the session layer dispatches on: everything except
// SecurityMethodToken is presented as an X-API-Key lookup.
func authMethodFor(m SecurityMethod) auth.AuthMethod {
	if m == SecurityMethodToken {
		return auth.AuthMethodJWT
	}
	return auth.AuthMethodAPIKey
}

// buildAuthenticator resolves the Authenticator CreateAgent's credential
// checks run against. When sec.AuthenticatorName names a factory
// registered in auth.DefaultRegistry, that takes precedence, letting an
// operator swap in a registry-built authenticator (or reconfigure "jwt"/
// "api_key" with different factory config) without a code change. Absent
// that, the builtin path always constructs both an API-key and a JWT
// authenticator and combines them with auth.CompositeAuthenticator so
// either credential kind is accepted; sec.Method only decides which one
// is tried first. store is non-nil only when the builtin API-key
// authenticator was built, since it's the only kind CreateAgent ever
// pre-populates keys into.
func buildAuthenticator(sec SecurityConfig, signingKey []byte) (auth.Authenticator, *auth.MemoryAPIKeyStore, error) {
	if sec.AuthenticatorName != "" {
		a, err := auth.DefaultRegistry.CreateAuthenticator(sec.AuthenticatorName, sec.AuthenticatorConfig)
		if err != nil {
			return nil, nil, err
		}
		return a, nil, nil
	}

	store := auth.NewMemoryAPIKeyStore()
	apiKeyAuth := auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{}, store)
	jwtAuth := auth.NewJWTAuthenticator(auth.JWTConfig{Issuer: "mt5gateway"}, auth.NewStaticKeyProvider(signingKey))

	primary, secondary := auth.Authenticator(apiKeyAuth), auth.Authenticator(jwtAuth)
	if sec.Method == SecurityMethodToken {
		primary, secondary = secondary, primary
	}
	return auth.NewCompositeAuthenticator(primary, secondary), store, nil
}

// buildAuthorizer resolves the fallback Authorizer SessionManager.
// CheckPermission consults once a session's own flat permission list
// doesn't already grant a request. sec.AuthorizerName, when set, takes
// precedence and is resolved from auth.DefaultRegistry. Otherwise:
// AllowAllAuthorizer is used when auth is disabled entirely, matching
// today's no-op behavior; DenyAllAuthorizer is the default once auth is
// enabled but no RBAC roles are configured (the fallback never has
// anything to positively grant in that case, so denying it is
// behaviorally identical to having no fallback at all); Roles opts into a
// SimpleRBACAuthorizer. A registry lookup failure falls back to
// DenyAllAuthorizer rather than failing gateway construction, since a
// misconfigured fallback authorizer should not block a session's flat
// permission checks from still working.
func buildAuthorizer(sec SecurityConfig) auth.Authorizer {
	if sec.AuthorizerName != "" {
		if a, err := auth.DefaultRegistry.CreateAuthorizer(sec.AuthorizerName, sec.AuthorizerConfig); err == nil {
			return a
		}
		return auth.DenyAllAuthorizer{}
	}
	if !sec.AuthEnabled {
		return auth.AllowAllAuthorizer{}
	}
	if len(sec.Roles) == 0 {
		return auth.DenyAllAuthorizer{}
	}
	return auth.NewSimpleRBACAuthorizer(auth.RBACConfig{
		Roles:       sec.Roles,
		DefaultRole: sec.DefaultRole,
	})
}
