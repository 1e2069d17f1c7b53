package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-bridge/auth"
	"github.com/jrsteele09/go-identity-bridge/internal/config"
	"github.com/jrsteele09/go-identity-bridge/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Server exposes the identity bridge over HTTP. It carries no UI; every
// route speaks JSON.
type Server struct {
	env       string // Environment (e.g., "DEV", "production")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.Service
	inspector *token.Inspector
	logger    zerolog.Logger
}

func New(cfg config.Config, authService *auth.Service, inspector *token.Inspector, logger zerolog.Logger) (*Server, error) {
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}
	if inspector == nil {
		return nil, errors.New("[Server New] token inspector is required")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    cfg,
		auth:      authService,
		inspector: inspector,
		logger:    logger,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		} else {
			s.logger.Debug().Str("path", parts[0]).Msg("route registered")
		}
	}
}
