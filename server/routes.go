package server

func (s *Server) initRoutes() {
	// OAuth2 / OIDC API routes
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteToken, ChainMiddleware(s.Preflight(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))

	// Protected endpoints (require a valid access token)
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware(s.RequireBearerToken())...))
	s.RegisterRouteHandler("POST "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware(s.RequireBearerToken())...))

	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.Health(), s.RecoverMiddleware))
	if s.deps.Metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, ChainMiddleware(s.deps.Metrics.ServeHTTP, s.RecoverMiddleware))
	}
}
