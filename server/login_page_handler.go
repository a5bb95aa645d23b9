package server

import (
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/minis-web/internal/errors"
	"github.com/jrsteele09/minis-web/session"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	pageData
	Username string // Preserve username on error
	Remember bool
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, http.StatusOK, pageLogin, LoginPageData{pageData: s.basePage(r, "Anmelden")})
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		remember := checkbox(r, "remember")

		if username == "" || password == "" {
			s.renderLoginError(w, r, http.StatusUnprocessableEntity, "Bitte Benutzername und Passwort eingeben", username, remember)
			return
		}

		ctx := r.Context()
		token, err := s.api.Login(ctx, username, password)
		if apperrors.Is(err, apperrors.ErrInvalidCredentials) {
			s.renderLoginError(w, r, http.StatusUnauthorized, "Benutzername oder Passwort falsch", username, remember)
			return
		}
		if err != nil {
			log.Ctx(ctx).Err(err).Msg("login call failed")
			s.renderLoginError(w, r, http.StatusBadGateway, msgUnreachable, username, remember)
			return
		}

		// a token left over from an earlier login must not survive in the other scope
		if old, ok := s.store.GetToken(ctx); ok {
			s.resolver.Forget(old)
		}
		if err := s.store.SetToken(ctx, token.AccessToken, remember); err != nil {
			log.Ctx(ctx).Err(err).Msg("storing token")
			s.renderLoginError(w, r, http.StatusInternalServerError, "Anmeldung konnte nicht gespeichert werden", username, remember)
			return
		}

		if id, err := s.resolver.Resolve(ctx, token.AccessToken); err == nil {
			s.flash.Flash(ctx, session.FlashInfo, "Hallo "+id.Name)
		}
		redirectSuccess(w, r, RouteHome)
	}
}

func (s *Server) renderLoginError(w http.ResponseWriter, r *http.Request, status int, msg, username string, remember bool) {
	data := LoginPageData{
		pageData: s.basePage(r, "Anmelden"),
		Username: username,
		Remember: remember,
	}
	data.Error = msg
	s.renderPage(w, r, status, pageLogin, data)
}

// LogoutHandler clears the token from both scopes and forgets its identity
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := s.store.GetToken(r.Context())
		s.endSession(r, token)
		s.flash.Flash(r.Context(), session.FlashInfo, "Abgemeldet")
		redirectSuccess(w, r, RouteLogin)
	}
}
