package api

import "time"

// Weekday is the weekday code the API stores for preferred weekdays.
type Weekday string

const (
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
	Sunday    Weekday = "SUN"
)

// Weekdays in display order, Monday first.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayLabels = map[Weekday]string{
	Monday:    "Montag",
	Tuesday:   "Dienstag",
	Wednesday: "Mittwoch",
	Thursday:  "Donnerstag",
	Friday:    "Freitag",
	Saturday:  "Samstag",
	Sunday:    "Sonntag",
}

func (w Weekday) Label() string {
	return weekdayLabels[w]
}

func (w Weekday) Valid() bool {
	_, ok := weekdayLabels[w]
	return ok
}

// WeekdayOf maps a date to its weekday code.
func WeekdayOf(t time.Time) Weekday {
	return Weekdays[(int(t.Weekday())+6)%7]
}
