// Package session keeps the bearer token of a browser in one of two scopes:
// a durable one that survives browser restarts ("Angemeldet bleiben") and an
// ephemeral one scoped to the browser session.
package session

import (
	"context"
	"sync"
)

const (
	// TokenKey is where the token lives in either scope.
	TokenKey = "token"
	// LegacyTokenKey is where earlier versions kept the token. It is still
	// read and always cleared.
	LegacyTokenKey = "jwtToken"
)

// Storage is one key/value scope. Implementations bind the scope to the
// request through ctx.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string)
	Remove(ctx context.Context, key string)
}

// renewer is implemented by scopes that can rotate their session id.
type renewer interface {
	Renew(ctx context.Context) error
}

// Store holds at most one active token across both scopes.
type Store struct {
	durable   Storage
	ephemeral Storage
}

func NewStore(durable, ephemeral Storage) *Store {
	return &Store{durable: durable, ephemeral: ephemeral}
}

// GetToken reads the durable scope first and falls back to the ephemeral
// one. No expiry check happens here.
func (s *Store) GetToken(ctx context.Context) (string, bool) {
	for _, scope := range []Storage{s.durable, s.ephemeral} {
		for _, key := range []string{TokenKey, LegacyTokenKey} {
			if v, ok := scope.Get(ctx, key); ok && v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// SetToken writes token to the durable scope when remember is set and to the
// ephemeral scope otherwise, and removes it from the other scope.
func (s *Store) SetToken(ctx context.Context, token string, remember bool) error {
	target, other := s.ephemeral, s.durable
	if remember {
		target, other = s.durable, s.ephemeral
	}
	if r, ok := target.(renewer); ok {
		if err := r.Renew(ctx); err != nil {
			return err
		}
	}
	other.Remove(ctx, TokenKey)
	other.Remove(ctx, LegacyTokenKey)
	target.Remove(ctx, LegacyTokenKey)
	target.Put(ctx, TokenKey, token)
	return nil
}

// ClearToken removes the token from both scopes, whichever one held it.
func (s *Store) ClearToken(ctx context.Context) {
	for _, scope := range []Storage{s.durable, s.ephemeral} {
		scope.Remove(ctx, TokenKey)
		scope.Remove(ctx, LegacyTokenKey)
	}
}

// MemoryStorage is a single process-wide scope backed by a map. It ignores
// ctx, so every request shares it; use it in tests and tools only.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage returns an empty scope.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Put(_ context.Context, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MemoryStorage) Remove(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Len reports how many keys are set.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
