package server

import (
	"bytes"
	"net/http"

	"github.com/jrsteele09/minis-web/navigation"
	"github.com/jrsteele09/minis-web/session"
	"github.com/rs/zerolog/log"
)

const contentTypeHTML = "text/html; charset=utf-8"

// pageData is what the layout needs on every page.
type pageData struct {
	AppName string
	Title   string
	Active  string
	Session *session.Session
	Flash   *session.Flash
	Error   string
}

func (s *Server) basePage(r *http.Request, title string) pageData {
	p := pageData{
		AppName: s.config.GetAppName(),
		Title:   title,
		Active:  navigation.Active(r.URL.Path),
		Session: session.FromContext(r.Context()),
		Error:   r.URL.Query().Get("error"),
	}
	if f, ok := s.flash.Pop(r.Context()); ok {
		p.Flash = &f
	}
	return p
}

// render executes block of page into a buffer first so a template failure
// never leaves a half written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page, block string, data any) {
	var buf bytes.Buffer
	if err := s.pages.execute(&buf, page, block, data); err != nil {
		log.Ctx(r.Context()).Err(err).Str("page", page).Str("block", block).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	s.render(w, r, status, page, "layout", data)
}

type errorPage struct {
	pageData
	Status  int
	Message string
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.renderPage(w, r, status, pageError, errorPage{
		pageData: s.basePage(r, "Fehler"),
		Status:   status,
		Message:  message,
	})
}
