package api

import "time"

// DateLayout is the wire format of calendar dates ("YYYY-MM-DD").
const DateLayout = "2006-01-02"

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AccessToken struct {
	AccessToken string `json:"accessToken"`
}

// UserHead is the answer of the token validation call.
type UserHead struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	RoleID Role   `json:"roleId"`
}

type User struct {
	ID        int    `json:"id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	RoleID    Role   `json:"roleId"`
	Active    int    `json:"active"`
	Incense   int    `json:"incense"`
}

func (u User) FullName() string {
	switch {
	case u.Firstname == "":
		return u.Lastname
	case u.Lastname == "":
		return u.Firstname
	}
	return u.Firstname + " " + u.Lastname
}

func (u User) IsActive() bool {
	return u.Active == 1
}

// UserUpdate is the master data a user form may change. Username and role
// are shown but read-only.
type UserUpdate struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	RoleID    Role   `json:"roleId"`
	Active    int    `json:"active"`
	Incense   int    `json:"incense"`
}

type PasswordUpdate struct {
	Password string `json:"password"`
}

type Event struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	DateBegin       string `json:"dateBegin"`
	TimeBegin       string `json:"timeBegin"`
	LocationID      int    `json:"locationId"`
	Location        string `json:"location"`
	MinimalUser     int    `json:"minimalUser"`
	AssignedUserIDs []int  `json:"assignedUserIds,omitempty"`
}

// Date parses DateBegin; the zero time is returned for malformed values.
func (e Event) Date() time.Time {
	d, err := time.Parse(DateLayout, e.DateBegin)
	if err != nil {
		return time.Time{}
	}
	return d
}

// ShortTime is the start time without seconds ("09:30").
func (e Event) ShortTime() string {
	if len(e.TimeBegin) >= 5 {
		return e.TimeBegin[:5]
	}
	return e.TimeBegin
}

type NewEvent struct {
	Name        string `json:"name"`
	DateBegin   string `json:"dateBegin"`
	TimeBegin   string `json:"timeBegin"`
	LocationID  int    `json:"locationId"`
	MinimalUser int    `json:"minimalUser"`
}

type Location struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
