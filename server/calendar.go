package server

import (
	"fmt"
	"sort"
	"time"

	"github.com/jrsteele09/minis-web/api"
)

const monthLayout = "2006-01"

var germanMonths = [...]string{
	"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}

// Mo..So header of the month grid.
var weekdayShort = [...]string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}

type calendarDay struct {
	Date     string
	Day      int
	InMonth  bool
	Today    bool
	Selected bool
	Events   []api.Event
}

type calendarMonth struct {
	Label    string
	Month    string
	Prev     string
	Next     string
	Weekdays []string
	Weeks    [][]calendarDay
}

// parseMonth reads "YYYY-MM", falling back to the month of now.
func parseMonth(value string, now time.Time) time.Time {
	if m, err := time.ParseInLocation(monthLayout, value, now.Location()); err == nil {
		return m
	}
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// buildMonth lays out the month of first as full Monday-first weeks.
func buildMonth(first time.Time, selected map[string]bool, events map[string][]api.Event, now time.Time) calendarMonth {
	first = time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, first.Location())
	today := now.Format(api.DateLayout)

	start := first.AddDate(0, 0, -((int(first.Weekday()) + 6) % 7))
	last := first.AddDate(0, 1, -1)
	end := last.AddDate(0, 0, 6-((int(last.Weekday())+6)%7))

	m := calendarMonth{
		Label:    fmt.Sprintf("%s %d", germanMonths[first.Month()-1], first.Year()),
		Month:    first.Format(monthLayout),
		Prev:     first.AddDate(0, -1, 0).Format(monthLayout),
		Next:     first.AddDate(0, 1, 0).Format(monthLayout),
		Weekdays: weekdayShort[:],
	}
	var week []calendarDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(api.DateLayout)
		week = append(week, calendarDay{
			Date:     date,
			Day:      d.Day(),
			InMonth:  d.Month() == first.Month(),
			Today:    date == today,
			Selected: selected[date],
			Events:   events[date],
		})
		if len(week) == 7 {
			m.Weeks = append(m.Weeks, week)
			week = nil
		}
	}
	return m
}

// eventsByDate groups events by DateBegin, each day ordered by start time.
func eventsByDate(events []api.Event) map[string][]api.Event {
	out := make(map[string][]api.Event)
	for _, ev := range events {
		out[ev.DateBegin] = append(out[ev.DateBegin], ev)
	}
	for _, day := range out {
		sort.Slice(day, func(i, j int) bool { return day[i].TimeBegin < day[j].TimeBegin })
	}
	return out
}

func sortEvents(events []api.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].DateBegin != events[j].DateBegin {
			return events[i].DateBegin < events[j].DateBegin
		}
		return events[i].TimeBegin < events[j].TimeBegin
	})
}

// germanDate renders "2026-11-01" as "01.11.2026".
func germanDate(date string) string {
	d, err := time.Parse(api.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02.01.2006")
}
