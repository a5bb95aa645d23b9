package server

import (
	"net/http"

	apperrors "github.com/jrsteele09/minis-web/internal/errors"
	"github.com/jrsteele09/minis-web/navigation"
	"github.com/jrsteele09/minis-web/session"
	"github.com/rs/zerolog/log"
)

const (
	msgSessionExpired = "Sitzung abgelaufen, bitte erneut anmelden"
	msgForbidden      = "Keine Berechtigung"
)

// RequireSession loads the token of the browser, resolves the identity behind
// it and attaches the resulting session to the request context. Browsers
// without a valid token are sent to the login page.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, ok := s.store.GetToken(ctx)
		if !ok {
			redirectSuccess(w, r, RouteLogin)
			return
		}

		id, err := s.resolver.Resolve(ctx, token)
		if apperrors.Is(err, apperrors.ErrInvalidSession) {
			s.endSession(r, token)
			redirectWithError(w, r, RouteLogin, msgSessionExpired)
			return
		}
		if err != nil {
			log.Ctx(ctx).Err(err).Msg("resolving identity")
			s.renderError(w, r, http.StatusBadGateway, msgUnreachable)
			return
		}

		next(w, r.WithContext(session.WithSession(ctx, session.New(token, id))))
	}
}

// RequirePrivileged gates the master data and planning sections. Must be
// chained after RequireSession.
func (s *Server) RequirePrivileged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess == nil || !navigation.Allowed(sess.Identity.Role, r.URL.Path) {
			s.forbidden(w, r)
			return
		}
		next(w, r)
	}
}

// RequireSelfOrPrivileged lets users open their own settings and privileged
// roles open anyone's.
func (s *Server) RequireSelfOrPrivileged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(r, "id")
		if !ok {
			http.NotFound(w, r)
			return
		}
		if !session.FromContext(r.Context()).CanEdit(userID) {
			s.forbidden(w, r)
			return
		}
		next(w, r)
	}
}

func (s *Server) forbidden(w http.ResponseWriter, r *http.Request) {
	if isHTMXRequest(r) {
		http.Error(w, msgForbidden, http.StatusForbidden)
		return
	}
	s.flash.Flash(r.Context(), session.FlashWarning, msgForbidden)
	http.Redirect(w, r, RouteHome, http.StatusSeeOther)
}

// endSession clears the token from both scopes and drops its identity.
func (s *Server) endSession(r *http.Request, token string) {
	s.store.ClearToken(r.Context())
	if token != "" {
		s.resolver.Forget(token)
	}
}
