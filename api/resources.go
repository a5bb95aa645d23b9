package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	apperrors "github.com/jrsteele09/minis-web/internal/errors"
)

// Login exchanges credentials for an access token. A 401 here means wrong
// credentials, not an invalid session.
func (c *Client) Login(ctx context.Context, username, password string) (AccessToken, error) {
	var token AccessToken
	err := c.Post(ctx, "login", Credentials{Username: username, Password: password}, "", &token)
	if apperrors.Is(err, ErrUnauthorized) {
		return AccessToken{}, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return AccessToken{}, err
	}
	if token.AccessToken == "" {
		return AccessToken{}, fmt.Errorf("[api Login] empty access token")
	}
	return token, nil
}

// CheckToken validates the token and returns the identity behind it.
func (c *Client) CheckToken(ctx context.Context, token string) (UserHead, error) {
	var head UserHead
	if err := c.Get(ctx, "checkToken", token, &head); err != nil {
		return UserHead{}, err
	}
	return head, nil
}

func (c *Client) Users(ctx context.Context, token string) ([]User, error) {
	var users []User
	if err := c.Get(ctx, "user", token, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) User(ctx context.Context, token string, userID int) (User, error) {
	var user User
	if err := c.Get(ctx, fmt.Sprintf("user/%d", userID), token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (c *Client) UpdateUser(ctx context.Context, token string, userID int, update UserUpdate) error {
	return c.Patch(ctx, fmt.Sprintf("user/%d", userID), update, token, nil)
}

func (c *Client) UpdatePassword(ctx context.Context, token string, userID int, password string) error {
	return c.Patch(ctx, fmt.Sprintf("user/%d/password", userID), PasswordUpdate{Password: password}, token, nil)
}

func (c *Client) BanDates(ctx context.Context, token string, userID int) ([]string, error) {
	var dates []string
	if err := c.Get(ctx, fmt.Sprintf("user/%d/ban", userID), token, &dates); err != nil {
		return nil, err
	}
	return dates, nil
}

func (c *Client) UpdateBanDate(ctx context.Context, token string, userID int, date string, add bool) error {
	body := struct {
		Date string `json:"date"`
		Add  bool   `json:"add"`
	}{date, add}
	return c.Patch(ctx, fmt.Sprintf("user/%d/ban", userID), body, token, nil)
}

func (c *Client) Weekdays(ctx context.Context, token string, userID int) ([]Weekday, error) {
	var days []Weekday
	if err := c.Get(ctx, fmt.Sprintf("user/%d/weekday", userID), token, &days); err != nil {
		return nil, err
	}
	return days, nil
}

func (c *Client) UpdateWeekday(ctx context.Context, token string, userID int, day Weekday, add bool) error {
	body := struct {
		Weekday Weekday `json:"weekday"`
		Add     bool    `json:"add"`
	}{day, add}
	return c.Patch(ctx, fmt.Sprintf("user/%d/weekday", userID), body, token, nil)
}

func (c *Client) PreferredPartners(ctx context.Context, token string, userID int) ([]int, error) {
	var ids []int
	if err := c.Get(ctx, fmt.Sprintf("user/%d/preferred", userID), token, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) UpdatePreferredPartner(ctx context.Context, token string, userID, otherUserID int, add bool) error {
	body := struct {
		OtherUserID int  `json:"otherUserId"`
		Add         bool `json:"add"`
	}{otherUserID, add}
	return c.Patch(ctx, fmt.Sprintf("user/%d/preferred", userID), body, token, nil)
}

// Events lists the planned events in [from, to], each with its assigned users.
func (c *Client) Events(ctx context.Context, token string, from, to time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("from", from.Format(DateLayout))
	q.Set("to", to.Format(DateLayout))

	var events []Event
	if err := c.Get(ctx, "events?"+q.Encode(), token, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// EventsForUser lists the events the user is assigned to.
func (c *Client) EventsForUser(ctx context.Context, token string, userID int) ([]Event, error) {
	var events []Event
	if err := c.Get(ctx, fmt.Sprintf("events/%d", userID), token, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, token string, event NewEvent) error {
	return c.Put(ctx, "event", event, token, nil)
}

// AssignUser adds the user to or removes the user from the event.
func (c *Client) AssignUser(ctx context.Context, token string, eventID, userID int, add bool) error {
	op := "remove"
	if add {
		op = "add"
	}
	body := struct {
		UserID int `json:"userId"`
	}{userID}
	return c.Patch(ctx, fmt.Sprintf("events/%d/assign/%s", eventID, op), body, token, nil)
}

// AutoAssign asks the server to fill the event up to its minimum.
func (c *Client) AutoAssign(ctx context.Context, token string, eventID int) error {
	return c.Get(ctx, fmt.Sprintf("autoAssign?eventId=%d", eventID), token, nil)
}

func (c *Client) Locations(ctx context.Context, token string) ([]Location, error) {
	var locations []Location
	if err := c.Get(ctx, "location", token, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// PlanPDF downloads the printable plan for [from, to].
func (c *Client) PlanPDF(ctx context.Context, token string, from, to time.Time) ([]byte, error) {
	q := url.Values{}
	q.Set("from", from.Format(DateLayout))
	q.Set("to", to.Format(DateLayout))

	data, _, err := c.GetRaw(ctx, "pdf?"+q.Encode(), token)
	return data, err
}
