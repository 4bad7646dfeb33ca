package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-server/auth"
	"github.com/jrsteele09/go-token-server/clientauth"
	"github.com/jrsteele09/go-token-server/internal/config"
	"github.com/jrsteele09/go-token-server/profile"
	"github.com/jrsteele09/go-token-server/token/jwt"
	"github.com/jrsteele09/go-token-server/token/keys"
	"github.com/jrsteele09/go-token-server/token/refresh"
	"github.com/rs/zerolog/log"
)

// Dependencies are the services the HTTP layer delegates to.
type Dependencies struct {
	Tokens    *auth.TokenService
	Inspector *jwt.Inspector
	Augmenter *profile.Augmenter
	Keys      *keys.Provider
	Metrics   http.Handler // Served on RouteMetrics when set
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	deps   Dependencies

	replay clientauth.ReplayCache // Cleaned by RunMaintenance
	purger refresh.Purger         // Expired refresh grants, cleaned by RunMaintenance
}

func New(config config.Config, deps Dependencies) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if deps.Tokens == nil || deps.Inspector == nil || deps.Augmenter == nil || deps.Keys == nil {
		return nil, fmt.Errorf("[Server New] token service, inspector, augmenter and key provider are required")
	}

	s := &Server{
		env:    config.GetEnv(),
		mux:    http.NewServeMux(),
		config: config,
		deps:   deps,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Routes returns the registered route patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
