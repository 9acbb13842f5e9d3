package middleware

import "net/http"

// Set bundles the configured middleware handed to route modules.
type Set struct {
	Auth          func(http.Handler) http.Handler
	OptionalAuth  func(http.Handler) http.Handler
	WebSocketAuth func(http.Handler) http.Handler
	Tenant        func(http.Handler) http.Handler
	Cron          func(http.Handler) http.Handler
	// RateLimit may be nil.
	RateLimit func(http.Handler) http.Handler
}

// NewSet wires the token manager, tenant validator and cron guard together.
func NewSet(tokens *TokenManager, tenant TenantValidator, cron func(http.Handler) http.Handler) *Set {
	return &Set{
		Auth:          tokens.AuthMiddleware,
		OptionalAuth:  tokens.OptionalAuth,
		WebSocketAuth: tokens.WebSocketAuthMiddleware,
		Tenant:        TenantSession(tenant),
		Cron:          cron,
	}
}
