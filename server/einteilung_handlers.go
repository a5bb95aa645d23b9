package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/minis-web/api"
	"github.com/jrsteele09/minis-web/relation"
	"github.com/jrsteele09/minis-web/session"
	"golang.org/x/sync/errgroup"
)

const defaultRangeDays = 13

type eventCard struct {
	ID            int
	Name          string
	DateBegin     string
	Date          string
	Weekday       string
	Time          string
	Location      string
	MinimalUser   int
	Missing       int
	Assigned      []int
	AssignedNames []string
	Options       []userOption
	From          string
	To            string
	Notice        *session.Flash
}

type newEventForm struct {
	Name        string
	Date        string
	Time        string
	LocationID  int
	MinimalUser string
	Errors      map[string]string
}

type EinteilungPageData struct {
	pageData
	From      string
	To        string
	Events    []eventCard
	Locations []api.Location
	Form      newEventForm
	FormOpen  bool
}

// planRange reads from/to ("YYYY-MM-DD"). Missing or broken values fall back
// to two weeks starting this Monday; a reversed range is swapped.
func planRange(q url.Values, now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	from, errFrom := time.Parse(api.DateLayout, q.Get("from"))
	to, errTo := time.Parse(api.DateLayout, q.Get("to"))
	switch {
	case errFrom != nil && errTo != nil:
		return monday, monday.AddDate(0, 0, defaultRangeDays)
	case errFrom != nil:
		from = to.AddDate(0, 0, -defaultRangeDays)
	case errTo != nil:
		to = from.AddDate(0, 0, defaultRangeDays)
	}
	if to.Before(from) {
		from, to = to, from
	}
	return from, to
}

func einteilungURL(from, to string) string {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	return RouteEinteilung + "?" + q.Encode()
}

// planData loads users, locations and events of the range in parallel.
func (s *Server) planData(ctx context.Context, token string, from, to time.Time) ([]api.User, []api.Location, []api.Event, error) {
	var (
		users     []api.User
		locations []api.Location
		events    []api.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.api.Users(gctx, token)
		return err
	})
	g.Go(func() (err error) {
		locations, err = s.api.Locations(gctx, token)
		return err
	})
	g.Go(func() (err error) {
		events, err = s.api.Events(gctx, token, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	sortEvents(events)
	return users, locations, events, nil
}

func newEventCard(ev api.Event, users []api.User, assigned []int, from, to string) eventCard {
	missing := ev.MinimalUser - len(assigned)
	if missing < 0 {
		missing = 0
	}
	return eventCard{
		ID:            ev.ID,
		Name:          ev.Name,
		DateBegin:     ev.DateBegin,
		Date:          germanDate(ev.DateBegin),
		Weekday:       api.WeekdayOf(ev.Date()).Label(),
		Time:          ev.ShortTime(),
		Location:      ev.Location,
		MinimalUser:   ev.MinimalUser,
		Missing:       missing,
		Assigned:      assigned,
		AssignedNames: userNames(users, assigned),
		Options:       userOptions(users, assigned, 0),
		From:          from,
		To:            to,
	}
}

func (s *Server) renderEinteilung(w http.ResponseWriter, r *http.Request, status int, from, to time.Time, form newEventForm, formOpen bool) {
	sess := session.FromContext(r.Context())
	users, locations, events, err := s.planData(r.Context(), sess.Token, from, to)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}

	data := EinteilungPageData{
		pageData:  s.basePage(r, "Einteilung"),
		From:      from.Format(api.DateLayout),
		To:        to.Format(api.DateLayout),
		Locations: locations,
		Form:      form,
		FormOpen:  formOpen,
	}
	for _, ev := range events {
		data.Events = append(data.Events, newEventCard(ev, users, ev.AssignedUserIDs, data.From, data.To))
	}
	s.renderPage(w, r, status, pageEinteilung, data)
}

// EinteilungHandler shows the events of a date range with their assignments.
func (s *Server) EinteilungHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to := planRange(r.URL.Query(), time.Now())
		s.renderEinteilung(w, r, http.StatusOK, from, to, newEventForm{}, false)
	}
}

// parseNewEvent validates the "Neue Messe" form. Nothing is sent while it
// has errors.
func parseNewEvent(r *http.Request) (newEventForm, api.NewEvent, bool) {
	form := newEventForm{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Date:        strings.TrimSpace(r.FormValue("date")),
		Time:        strings.TrimSpace(r.FormValue("time")),
		MinimalUser: strings.TrimSpace(r.FormValue("minimalUser")),
		Errors:      make(map[string]string),
	}
	form.LocationID, _ = strconv.Atoi(r.FormValue("locationId"))

	if form.Name == "" {
		form.Errors["name"] = "Bitte Name eingeben"
	}
	if _, err := time.Parse(api.DateLayout, form.Date); err != nil {
		form.Errors["date"] = "Bitte Datum wählen"
	}
	start, err := time.Parse("15:04", form.Time)
	if err != nil {
		form.Errors["time"] = "Bitte Uhrzeit wählen"
	}
	if form.LocationID <= 0 {
		form.Errors["locationId"] = "Bitte Ort auswählen"
	}
	minimal, err := strconv.Atoi(form.MinimalUser)
	if err != nil || minimal < 0 {
		form.Errors["minimalUser"] = "Bitte Anzahl eingeben"
	}
	if len(form.Errors) > 0 {
		return form, api.NewEvent{}, false
	}

	return form, api.NewEvent{
		Name:        form.Name,
		DateBegin:   form.Date,
		TimeBegin:   start.Format("15:04:05"),
		LocationID:  form.LocationID,
		MinimalUser: minimal,
	}, true
}

// CreateEventHandler creates a new event ("Neue Messe").
func (s *Server) CreateEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		from, to := planRange(r.Form, time.Now())
		form, ev, ok := parseNewEvent(r)
		if !ok {
			s.renderEinteilung(w, r, http.StatusUnprocessableEntity, from, to, form, true)
			return
		}

		sess := session.FromContext(r.Context())
		err := s.api.CreateEvent(r.Context(), sess.Token, ev)
		s.finishAction(w, r, err, "Messe angelegt", einteilungURL(from.Format(api.DateLayout), to.Format(api.DateLayout)))
	}
}

// AssignHandler applies a new assignment selection for one event. The form
// carries the set it was rendered with ("current"), the new selection
// ("member") and the event's date, which is checked before anything is sent.
func (s *Server) AssignHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, ok := pathID(r, "id")
		if !ok {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		current, errCur := formInts(r.Form["current"])
		proposed, errProp := formInts(r.Form["member"])
		date := r.FormValue("date")
		if errCur != nil || errProp != nil {
			http.Error(w, "Invalid member ids", http.StatusBadRequest)
			return
		}
		day, err := time.Parse(api.DateLayout, date)
		if err != nil {
			http.Error(w, "Invalid event date", http.StatusBadRequest)
			return
		}
		from, to := planRange(r.Form, time.Now())
		back := einteilungURL(from.Format(api.DateLayout), to.Format(api.DateLayout))

		sess := session.FromContext(r.Context())
		ed := relation.EventAssignments(s.api, sess.Token, eventID, date).Editor(current, s.policy)
		err = ed.Apply(r.Context(), proposed)

		if !isHTMXRequest(r) {
			s.finishAction(w, r, err, "Einteilung gespeichert", back)
			return
		}
		s.renderAssignFragment(w, r, err, eventID, day, ed.Members(), from, to)
	}
}

// renderAssignFragment re-renders one event card from the editor's local
// set, so the new selection shows before anything is reloaded.
func (s *Server) renderAssignFragment(w http.ResponseWriter, r *http.Request, applyErr error, eventID int, day time.Time, members []int, from, to time.Time) {
	f, ok := notice(applyErr, "Einteilung gespeichert")
	if !ok {
		s.forceLogin(w, r)
		return
	}

	sess := session.FromContext(r.Context())
	users, _, events, err := s.planData(r.Context(), sess.Token, day, day)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	for _, ev := range events {
		if ev.ID != eventID {
			continue
		}
		card := newEventCard(ev, users, members, from.Format(api.DateLayout), to.Format(api.DateLayout))
		card.Notice = &f
		s.render(w, r, http.StatusOK, pageEinteilung, "event-card", card)
		return
	}
	http.NotFound(w, r)
}

// AutoAssignHandler asks the API to fill the event up to its minimum.
func (s *Server) AutoAssignHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, ok := pathID(r, "id")
		if !ok {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		from, to := planRange(r.Form, time.Now())

		sess := session.FromContext(r.Context())
		err := s.api.AutoAssign(r.Context(), sess.Token, eventID)
		s.finishAction(w, r, err, "Automatisch zugewiesen", einteilungURL(from.Format(api.DateLayout), to.Format(api.DateLayout)))
	}
}

// PlanPDFHandler streams the printable plan of the range.
func (s *Server) PlanPDFHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to := planRange(r.URL.Query(), time.Now())
		sess := session.FromContext(r.Context())

		data, err := s.api.PlanPDF(r.Context(), sess.Token, from, to)
		if err != nil {
			if sessionLost(err) {
				s.forceLogin(w, r)
				return
			}
			s.finishAction(w, r, err, "", einteilungURL(from.Format(api.DateLayout), to.Format(api.DateLayout)))
			return
		}

		name := fmt.Sprintf("einteilung_%s_%s.pdf", from.Format(api.DateLayout), to.Format(api.DateLayout))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}
}
