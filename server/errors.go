package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/minis-web/api"
	apperrors "github.com/jrsteele09/minis-web/internal/errors"
	"github.com/jrsteele09/minis-web/session"
	"github.com/rs/zerolog/log"
)

const msgUnreachable = "Der Server ist gerade nicht erreichbar. Bitte später erneut versuchen."

// sessionLost reports whether err means the token is no longer valid.
func sessionLost(err error) bool {
	return apperrors.Is(err, apperrors.ErrUnauthorized) || apperrors.Is(err, apperrors.ErrInvalidSession)
}

// forceLogin ends the session and sends the browser to the login page.
func (s *Server) forceLogin(w http.ResponseWriter, r *http.Request) {
	token := ""
	if sess := session.FromContext(r.Context()); sess != nil {
		token = sess.Token
	}
	s.endSession(r, token)
	redirectWithError(w, r, RouteLogin, msgSessionExpired)
}

// notice turns the outcome of a user action into the notification shown for
// it. ok is false when the session is gone and the caller must forceLogin.
func notice(err error, success string) (f session.Flash, ok bool) {
	switch {
	case err == nil:
		return session.Flash{Level: session.FlashSuccess, Message: success}, true
	case sessionLost(err):
		return session.Flash{}, false
	case apperrors.Is(err, apperrors.ErrBoundsViolation), apperrors.Is(err, apperrors.ErrValidationFailed):
		return session.Flash{Level: session.FlashWarning, Message: err.Error()}, true
	}
	if status := api.StatusOf(err); status != 0 {
		return session.Flash{Level: session.FlashError, Message: fmt.Sprintf("Speichern fehlgeschlagen (Status %d)", status)}, true
	}
	return session.Flash{Level: session.FlashError, Message: msgUnreachable}, true
}

// finishAction flashes the outcome of a form post and redirects back.
func (s *Server) finishAction(w http.ResponseWriter, r *http.Request, err error, success, back string) {
	f, ok := notice(err, success)
	if !ok {
		s.forceLogin(w, r)
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("action failed")
	}
	s.flash.Flash(r.Context(), f.Level, f.Message)
	redirectSuccess(w, r, back)
}

// loadFailed handles a failed read while building a page.
func (s *Server) loadFailed(w http.ResponseWriter, r *http.Request, err error) {
	if sessionLost(err) {
		s.forceLogin(w, r)
		return
	}
	log.Ctx(r.Context()).Err(err).Str("path", r.URL.Path).Msg("loading page data")
	if apperrors.Is(err, apperrors.ErrNotFound) || api.StatusOf(err) == http.StatusNotFound {
		s.renderError(w, r, http.StatusNotFound, "Nicht gefunden")
		return
	}
	s.renderError(w, r, http.StatusBadGateway, msgUnreachable)
}
