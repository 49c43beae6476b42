// Package auth implements session authentication and permission
// authorization for the MT5 connection gateway.
//
// An Authenticator validates credentials presented over the gateway's API
// (JWT bearer tokens, API keys, or a CompositeAuthenticator trying several
// kinds in sequence) and returns the caller's Identity. SessionManager
// wraps an Authenticator: it mints a session bound to the caller's peer
// address on success, signs a token binding the two together, and audits
// every authenticate/validate/permission event. An Authorizer then governs
// what an authenticated session may do beyond its own flat permission
// list — SimpleRBACAuthorizer evaluates role-based allow/deny rules,
// AllowAllAuthorizer and DenyAllAuthorizer are the fixed extremes, and
// Registry/DefaultRegistry let an operator select an authenticator or
// authorizer by name from configuration.
package auth
