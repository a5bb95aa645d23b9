package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/jrsteele09/minis-web/api"
	"github.com/jrsteele09/minis-web/identity"
	"github.com/jrsteele09/minis-web/internal/config"
	"github.com/jrsteele09/minis-web/relation"
	"github.com/jrsteele09/minis-web/session"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the server is wired with.
type Deps struct {
	API       *api.Client
	Resolver  *identity.Resolver
	Durable   *scs.SessionManager
	Ephemeral *scs.SessionManager
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	handler  http.Handler
	routes   []string
	config   config.Config
	api      *api.Client
	resolver *identity.Resolver
	store    *session.Store
	flash    *session.Flasher
	policy   relation.Policy
	pages    *pages
	assets   *assets
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.API == nil || deps.Resolver == nil || deps.Durable == nil || deps.Ephemeral == nil {
		return nil, fmt.Errorf("[Server New] api client, resolver and both session managers are required")
	}
	policy, err := relation.ParsePolicy(cfg.GetReconcilePolicy())
	if err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}
	p, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}
	a, err := loadAssets(StaticFilesFS())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to load static files: %w", err)
	}

	ephemeral := session.NewManagerStorage(deps.Ephemeral)
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		api:      deps.API,
		resolver: deps.Resolver,
		store:    session.NewStore(session.NewManagerStorage(deps.Durable), ephemeral),
		flash:    session.NewFlasher(ephemeral),
		policy:   policy,
		pages:    p,
		assets:   a,
	}
	s.handler = deps.Durable.LoadAndSave(deps.Ephemeral.LoadAndSave(s.mux))

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
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
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}
