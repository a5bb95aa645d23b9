// Package identity turns a bearer token into the signed-in user's display
// identity by asking the API who the token belongs to.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jrsteele09/minis-web/api"
	apperrors "github.com/jrsteele09/minis-web/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheSize = 1024

// State of a token value in the resolver.
type State int

const (
	Unresolved State = iota
	Resolving
	Resolved
	Invalid
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	case Invalid:
		return "invalid"
	}
	return "unresolved"
}

// Identity is derived from the token and never stored on its own.
type Identity struct {
	UserID   int
	Name     string
	Initials string
	Role     api.Role
}

// Checker validates a token against the API.
type Checker interface {
	CheckToken(ctx context.Context, token string) (api.UserHead, error)
}

type entry struct {
	state    State
	identity Identity
}

// Resolver resolves each token value at most once. Concurrent first requests
// for the same token share a single validation call.
type Resolver struct {
	checker Checker
	group   singleflight.Group
	cache   *lru.Cache[string, entry]

	// resolving holds the tokens with a validation call in flight. The value
	// turns true when the token is invalidated or forgotten meanwhile.
	mu        sync.Mutex
	resolving map[string]bool
}

func NewResolver(checker Checker, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, entry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("[identity NewResolver] %w", err)
	}
	return &Resolver{
		checker:   checker,
		cache:     cache,
		resolving: make(map[string]bool),
	}, nil
}

// Resolve returns the identity behind token. A 401 from the validation call
// marks the token Invalid and returns ErrInvalidSession; any other failure
// leaves it Unresolved so a later request can try again.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperrors.ErrNoToken
	}
	if e, ok := r.cache.Get(token); ok {
		if e.state == Invalid {
			return Identity{}, apperrors.ErrInvalidSession
		}
		return e.identity, nil
	}

	v, err, _ := r.group.Do(token, func() (interface{}, error) {
		r.setResolving(token, true)
		defer r.setResolving(token, false)

		// The call is shared by every waiter, so one caller going away must not
		// cancel it for the others.
		head, err := r.checker.CheckToken(context.WithoutCancel(ctx), token)
		if apperrors.Is(err, api.ErrUnauthorized) {
			r.cache.Add(token, entry{state: Invalid})
			return nil, apperrors.Wrapf(apperrors.ErrInvalidSession, "token rejected")
		}
		if err != nil {
			return nil, fmt.Errorf("[identity Resolve] %w", err)
		}

		id := Identity{
			UserID:   head.ID,
			Name:     head.Name,
			Initials: Initials(head.Name),
			Role:     head.RoleID,
		}
		if !r.storeResolved(token, id) {
			if e, ok := r.cache.Peek(token); ok && e.state == Invalid {
				return nil, apperrors.Wrapf(apperrors.ErrInvalidSession, "token invalidated while resolving")
			}
			return id, nil
		}
		log.Debug().Int("userId", id.UserID).Str("role", id.Role.String()).Msg("identity resolved")
		return id, nil
	})
	if err != nil {
		return Identity{}, err
	}
	return v.(Identity), nil
}

// State reports where token is in its lifecycle.
func (r *Resolver) State(token string) State {
	if e, ok := r.cache.Peek(token); ok {
		return e.state
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resolving[token]; ok {
		return Resolving
	}
	return Unresolved
}

// Invalidate marks token Invalid, e.g. after any authenticated call got 401.
// A validation call still in flight for token will not overwrite it.
func (r *Resolver) Invalidate(token string) {
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markStale(token)
	r.cache.Add(token, entry{state: Invalid})
}

// Forget drops everything known about token, e.g. on logout. A validation
// call still in flight for token will not cache its result.
func (r *Resolver) Forget(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markStale(token)
	r.cache.Remove(token)
	r.group.Forget(token)
}

// markStale must be called with r.mu held.
func (r *Resolver) markStale(token string) {
	if _, ok := r.resolving[token]; ok {
		r.resolving[token] = true
	}
}

// storeResolved caches id unless token went stale during the call. Resolve
// only calls out on a cache miss, so an Invalid entry found here was written
// while the call ran.
func (r *Resolver) storeResolved(token string, id Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolving[token] {
		return false
	}
	if e, ok := r.cache.Peek(token); ok && e.state == Invalid {
		return false
	}
	r.cache.Add(token, entry{state: Resolved, identity: id})
	return true
}

func (r *Resolver) setResolving(token string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on {
		r.resolving[token] = false
	} else {
		delete(r.resolving, token)
	}
}

// Initials concatenates the first character of every whitespace separated
// part of name.
func Initials(name string) string {
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(part)
		b.WriteRune(r)
	}
	return b.String()
}
