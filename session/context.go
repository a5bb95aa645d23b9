package session

import (
	"context"

	"github.com/jrsteele09/minis-web/identity"
	"github.com/jrsteele09/minis-web/navigation"
)

// Session is what a request knows about its signed-in user. It is built
// once per request by the session middleware and handed down through the
// request context.
type Session struct {
	Token    string
	Identity identity.Identity
	Menu     []navigation.Item
}

// New derives the menu from the identity's role.
func New(token string, id identity.Identity) *Session {
	return &Session{
		Token:    token,
		Identity: id,
		Menu:     navigation.MenuFor(id.Role),
	}
}

func (s *Session) Privileged() bool {
	return s != nil && s.Identity.Role.Privileged()
}

// CanEdit reports whether the session may open the settings of userID:
// privileged roles may edit everyone, the rest only themselves.
func (s *Session) CanEdit(userID int) bool {
	return s != nil && (s.Privileged() || s.Identity.UserID == userID)
}

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the request's session, or nil outside the session
// middleware.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}
