package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/minis-web/api"
	"github.com/jrsteele09/minis-web/session"
)

const (
	viewCalendar = "calendar"
	viewTable    = "table"
)

type homeRow struct {
	Name     string
	Date     string
	Weekday  string
	Time     string
	Location string
}

type HomePageData struct {
	pageData
	View     string
	Calendar calendarMonth
	Rows     []homeRow
	Empty    bool
}

// HomeHandler shows the events the signed-in user is assigned to, as a month
// calendar or as a table.
func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		events, err := s.api.EventsForUser(r.Context(), sess.Token, sess.Identity.UserID)
		if err != nil {
			s.loadFailed(w, r, err)
			return
		}
		sortEvents(events)

		view := r.URL.Query().Get("view")
		if view != viewTable {
			view = viewCalendar
		}

		data := HomePageData{
			pageData: s.basePage(r, "Home"),
			View:     view,
			Empty:    len(events) == 0,
		}
		now := time.Now()
		if view == viewCalendar {
			data.Calendar = buildMonth(parseMonth(r.URL.Query().Get("month"), now), nil, eventsByDate(events), now)
		} else {
			for _, ev := range events {
				data.Rows = append(data.Rows, homeRow{
					Name:     ev.Name,
					Date:     germanDate(ev.DateBegin),
					Weekday:  api.WeekdayOf(ev.Date()).Label(),
					Time:     ev.ShortTime(),
					Location: ev.Location,
				})
			}
		}
		s.renderPage(w, r, http.StatusOK, pageHome, data)
	}
}
