package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// Home is open to every signed-in user
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.HomeHandler(), s.HTMLMiddleWare(s.RequireSession)...))

	// Master data and planning need a privileged role
	s.RegisterRouteHandler("GET "+RouteStammdaten, ChainMiddleware(s.StammdatenHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequirePrivileged)...))
	s.RegisterRouteHandler("GET "+RouteEinteilung, ChainMiddleware(s.EinteilungHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequirePrivileged)...))
	s.RegisterRouteHandler("POST "+RouteEinteilungEvents, ChainMiddleware(s.CreateEventHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequirePrivileged)...))
	s.RegisterRouteHandler("POST "+RouteEinteilungAssign, ChainMiddleware(s.AssignHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequirePrivileged)...))
	s.RegisterRouteHandler("POST "+RouteEinteilungAutoAssign, ChainMiddleware(s.AutoAssignHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequirePrivileged)...))
	s.RegisterRouteHandler("GET "+RouteEinteilungPDF, ChainMiddleware(s.PlanPDFHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequirePrivileged)...))

	// Settings: own user for everyone, any user for privileged roles
	s.RegisterRouteHandler("GET "+RouteUserSettings, ChainMiddleware(s.SettingsHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequireSelfOrPrivileged)...))
	s.RegisterRouteHandler("POST "+RouteUserSettingsGeneral, ChainMiddleware(s.SettingsGeneralHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequireSelfOrPrivileged)...))
	s.RegisterRouteHandler("POST "+RouteUserSettingsPassword, ChainMiddleware(s.SettingsPasswordHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequireSelfOrPrivileged)...))
	s.RegisterRouteHandler("POST "+RouteUserSettingsBan, ChainMiddleware(s.BanDatesHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequireSelfOrPrivileged)...))
	s.RegisterRouteHandler("POST "+RouteUserSettingsWeekdays, ChainMiddleware(s.WeekdaysHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequireSelfOrPrivileged)...))
	s.RegisterRouteHandler("POST "+RouteUserSettingsPartners, ChainMiddleware(s.PartnersHandler(), s.HTMLMiddleWare(s.RequireSession, s.RequireSelfOrPrivileged)...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteStaticJS, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := strings.TrimPrefix(r.URL.Path, "/")
		if filePath == "" {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		err := s.assets.serve(w, r, filePath)
		if err != nil {
			log.Warn().Str("method", r.Method).Str("path", filePath).Err(err).Msg("static file")
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
	}
}

// HealthHandler answers liveness probes.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}
