package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/minis-web/api"
	"github.com/jrsteele09/minis-web/relation"
	"github.com/jrsteele09/minis-web/session"
	"golang.org/x/sync/errgroup"
)

const (
	tabGeneral  = "general"
	tabPassword = "password"
	tabBan      = "ban"
	tabWeekdays = "weekdays"
	tabPartners = "partners"
)

type settingsTab struct {
	Key   string
	Label string
}

var settingsTabs = []settingsTab{
	{tabGeneral, "Allgemein"},
	{tabPassword, "Passwort"},
	{tabBan, "Sperrtage"},
	{tabWeekdays, "Wochentage"},
	{tabPartners, "Partner"},
}

type weekdayOption struct {
	Code     api.Weekday
	Label    string
	Selected bool
}

type SettingsPageData struct {
	pageData
	User          api.User
	Tab           string
	Tabs          []settingsTab
	CanEditMaster bool
	FormErrors    map[string]string

	BanMonth   calendarMonth
	BanCurrent []string

	Weekdays        []weekdayOption
	WeekdaysCurrent []api.Weekday

	Partners        []userOption
	PartnersCurrent []int
	PartnerMax      int

	Notice *session.Flash
}

func settingsURL(userID int, tab string) string {
	return fmt.Sprintf("/users/%d/settings?tab=%s", userID, tab)
}

func validTab(tab string) string {
	for _, t := range settingsTabs {
		if t.Key == tab {
			return tab
		}
	}
	return tabGeneral
}

func weekdayOptions(selected []api.Weekday) []weekdayOption {
	chosen := make(map[api.Weekday]bool, len(selected))
	for _, d := range selected {
		chosen[d] = true
	}
	out := make([]weekdayOption, 0, len(api.Weekdays))
	for _, d := range api.Weekdays {
		out = append(out, weekdayOption{Code: d, Label: d.Label(), Selected: chosen[d]})
	}
	return out
}

func dateSet(dates []string) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set
}

// settingsData loads the user and all three preference sets in parallel.
func (s *Server) settingsData(ctx context.Context, r *http.Request, userID int) (SettingsPageData, error) {
	sess := session.FromContext(ctx)
	var (
		user     api.User
		users    []api.User
		bans     []string
		weekdays []api.Weekday
		partners []int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		user, err = s.api.User(gctx, sess.Token, userID)
		return err
	})
	g.Go(func() (err error) {
		users, err = s.api.Users(gctx, sess.Token)
		return err
	})
	g.Go(func() (err error) {
		bans, err = s.api.BanDates(gctx, sess.Token, userID)
		return err
	})
	g.Go(func() (err error) {
		weekdays, err = s.api.Weekdays(gctx, sess.Token, userID)
		return err
	})
	g.Go(func() (err error) {
		partners, err = s.api.PreferredPartners(gctx, sess.Token, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return SettingsPageData{}, err
	}

	now := time.Now()
	return SettingsPageData{
		pageData:        s.basePage(r, "Einstellungen"),
		User:            user,
		Tab:             validTab(r.FormValue("tab")),
		Tabs:            settingsTabs,
		CanEditMaster:   sess.Privileged(),
		BanMonth:        buildMonth(parseMonth(r.FormValue("month"), now), dateSet(bans), nil, now),
		BanCurrent:      bans,
		Weekdays:        weekdayOptions(weekdays),
		WeekdaysCurrent: weekdays,
		Partners:        userOptions(users, partners, userID),
		PartnersCurrent: partners,
		PartnerMax:      relation.PreferredPartners.MaxMembers,
	}, nil
}

// SettingsHandler shows the tabbed user settings.
func (s *Server) SettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := pathID(r, "id")
		data, err := s.settingsData(r.Context(), r, userID)
		if err != nil {
			s.loadFailed(w, r, err)
			return
		}
		s.renderPage(w, r, http.StatusOK, pageSettings, data)
	}
}

// SettingsGeneralHandler saves the master data of a user. Only privileged
// roles may change the active and incense flags.
func (s *Server) SettingsGeneralHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := pathID(r, "id")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		firstname := strings.TrimSpace(r.FormValue("firstname"))
		lastname := strings.TrimSpace(r.FormValue("lastname"))

		errs := make(map[string]string)
		if firstname == "" {
			errs["firstname"] = "Bitte Vorname eingeben"
		}
		if lastname == "" {
			errs["lastname"] = "Bitte Nachname eingeben"
		}
		if len(errs) > 0 {
			s.renderSettingsInvalid(w, r, userID, tabGeneral, errs)
			return
		}

		ctx := r.Context()
		sess := session.FromContext(ctx)
		user, err := s.api.User(ctx, sess.Token, userID)
		if err != nil {
			s.finishAction(w, r, err, "", settingsURL(userID, tabGeneral))
			return
		}
		update := api.UserUpdate{
			Firstname: firstname,
			Lastname:  lastname,
			Username:  user.Username,
			RoleID:    user.RoleID,
			Active:    user.Active,
			Incense:   user.Incense,
		}
		if sess.Privileged() {
			update.Active = boolInt(checkbox(r, "active"))
			update.Incense = boolInt(checkbox(r, "incense"))
		}
		err = s.api.UpdateUser(ctx, sess.Token, userID, update)
		s.finishAction(w, r, err, "Änderungen gespeichert", settingsURL(userID, tabGeneral))
	}
}

// SettingsPasswordHandler changes the password. Both fields must match.
func (s *Server) SettingsPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := pathID(r, "id")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		password := r.FormValue("password")
		repeat := r.FormValue("passwordRepeat")

		errs := make(map[string]string)
		switch {
		case password == "":
			errs["password"] = "Bitte Passwort eingeben"
		case repeat == "":
			errs["passwordRepeat"] = "Bitte Passwort wiederholen"
		case password != repeat:
			errs["passwordRepeat"] = "Die Passwörter stimmen nicht überein"
		}
		if len(errs) > 0 {
			s.renderSettingsInvalid(w, r, userID, tabPassword, errs)
			return
		}

		sess := session.FromContext(r.Context())
		err := s.api.UpdatePassword(r.Context(), sess.Token, userID, password)
		s.finishAction(w, r, err, "Passwort geändert", settingsURL(userID, tabPassword))
	}
}

func (s *Server) renderSettingsInvalid(w http.ResponseWriter, r *http.Request, userID int, tab string, errs map[string]string) {
	data, err := s.settingsData(r.Context(), r, userID)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	data.Tab = tab
	data.FormErrors = errs
	if tab == tabGeneral {
		data.User.Firstname = strings.TrimSpace(r.FormValue("firstname"))
		data.User.Lastname = strings.TrimSpace(r.FormValue("lastname"))
	}
	s.renderPage(w, r, http.StatusUnprocessableEntity, pageSettings, data)
}

// BanDatesHandler toggles one day ("toggle") or applies a whole selection
// ("member") against the rendered set ("current").
func (s *Server) BanDatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := pathID(r, "id")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		current := formStrings(r.Form["current"])
		for _, d := range append(formStrings(r.Form["member"]), formStrings(r.Form["toggle"])...) {
			if _, err := time.Parse(api.DateLayout, d); err != nil {
				http.Error(w, "Invalid date", http.StatusBadRequest)
				return
			}
		}

		sess := session.FromContext(r.Context())
		ed := relation.UserBanDates(s.api, sess.Token, userID).Editor(current, s.policy)
		var err error
		if toggle := strings.TrimSpace(r.FormValue("toggle")); toggle != "" {
			err = ed.Toggle(r.Context(), toggle)
		} else {
			err = ed.Apply(r.Context(), formStrings(r.Form["member"]))
		}

		back := settingsURL(userID, tabBan) + "&month=" + parseMonth(r.FormValue("month"), time.Now()).Format(monthLayout)
		if !isHTMXRequest(r) {
			s.finishAction(w, r, err, "Änderung gespeichert", back)
			return
		}
		s.renderSettingsFragment(w, r, err, "Änderung gespeichert", userID, tabBan, func(d *SettingsPageData) {
			members := ed.Members()
			d.BanCurrent = members
			d.BanMonth = buildMonth(parseMonth(r.FormValue("month"), time.Now()), dateSet(members), nil, time.Now())
		})
	}
}

// WeekdaysHandler toggles or applies preferred weekdays.
func (s *Server) WeekdaysHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := pathID(r, "id")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		current, err := parseWeekdays(r.Form["current"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sess := session.FromContext(r.Context())
		ed := relation.UserWeekdays(s.api, sess.Token, userID).Editor(current, s.policy)
		if toggle := r.FormValue("toggle"); toggle != "" {
			day := api.Weekday(toggle)
			if !day.Valid() {
				http.Error(w, "Invalid weekday", http.StatusBadRequest)
				return
			}
			err = ed.Toggle(r.Context(), day)
		} else {
			proposed, perr := parseWeekdays(r.Form["member"])
			if perr != nil {
				http.Error(w, perr.Error(), http.StatusBadRequest)
				return
			}
			err = ed.Apply(r.Context(), proposed)
		}

		if !isHTMXRequest(r) {
			s.finishAction(w, r, err, "Änderung gespeichert", settingsURL(userID, tabWeekdays))
			return
		}
		s.renderSettingsFragment(w, r, err, "Änderung gespeichert", userID, tabWeekdays, func(d *SettingsPageData) {
			d.WeekdaysCurrent = ed.Members()
			d.Weekdays = weekdayOptions(d.WeekdaysCurrent)
		})
	}
}

// PartnersHandler applies the preferred partner selection. More than the
// allowed number of partners is rejected before anything is sent.
func (s *Server) PartnersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := pathID(r, "id")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		current, errCur := formInts(r.Form["current"])
		proposed, errProp := formInts(r.Form["member"])
		if errCur != nil || errProp != nil {
			http.Error(w, "Invalid member ids", http.StatusBadRequest)
			return
		}

		sess := session.FromContext(r.Context())
		ed := relation.UserPartners(s.api, sess.Token, userID).Editor(current, s.policy)
		added, _ := relation.Diff(current, proposed)
		success := "Entfernt"
		if len(added) > 0 {
			success = "Hinzugefügt"
		}
		err := ed.Apply(r.Context(), proposed)

		if !isHTMXRequest(r) {
			s.finishAction(w, r, err, success, settingsURL(userID, tabPartners))
			return
		}
		s.renderSettingsFragment(w, r, err, success, userID, tabPartners, func(d *SettingsPageData) {
			members := ed.Members()
			d.PartnersCurrent = members
			selected := make(map[int]bool, len(members))
			for _, id := range members {
				selected[id] = true
			}
			for i := range d.Partners {
				d.Partners[i].Selected = selected[d.Partners[i].ID]
			}
		})
	}
}

// renderSettingsFragment renders a single tab from the editor's local set
// together with the outcome notice.
func (s *Server) renderSettingsFragment(w http.ResponseWriter, r *http.Request, applyErr error, success string, userID int, tab string, local func(*SettingsPageData)) {
	f, ok := notice(applyErr, success)
	if !ok {
		s.forceLogin(w, r)
		return
	}
	data, err := s.settingsData(r.Context(), r, userID)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	data.Tab = tab
	local(&data)
	data.Notice = &f
	s.render(w, r, http.StatusOK, pageSettings, "tab-"+tab, data)
}

func parseWeekdays(values []string) ([]api.Weekday, error) {
	out := make([]api.Weekday, 0, len(values))
	for _, v := range formStrings(values) {
		d := api.Weekday(v)
		if !d.Valid() {
			return nil, fmt.Errorf("invalid weekday %q", v)
		}
		out = append(out, d)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
