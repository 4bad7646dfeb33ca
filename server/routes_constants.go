package server

// Route path constants
const (
	// OAuth2 / OIDC Routes
	RouteToken         = "/connect/token"
	RouteUserInfo      = "/connect/userinfo"
	RouteWellKnownJWKS = "/.well-known/jwks"

	// Operational Routes
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
