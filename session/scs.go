package session

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

const (
	DurableCookieName   = "minis_remember"
	EphemeralCookieName = "minis_session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);
`

// OpenDatabase opens the SQLite file behind the durable scope and makes sure
// the sessions table exists. ":memory:" is accepted for tests.
func OpenDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("[session OpenDatabase] creating directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("[session OpenDatabase] opening database: %w", err)
	}
	// one connection: an in-memory database only lives as long as its connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("[session OpenDatabase] %w", err)
		}
	}
	return db, nil
}

// NewDurableManager keeps sessions in SQLite behind a persistent cookie, so a
// remembered login survives browser and server restarts.
func NewDurableManager(db *sql.DB, lifetime time.Duration, secure bool) *scs.SessionManager {
	sm := scs.New()
	sm.Store = sqlite3store.New(db)
	sm.Lifetime = lifetime
	sm.Cookie.Name = DurableCookieName
	sm.Cookie.Persist = true
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secure
	return sm
}

// NewEphemeralManager keeps sessions in memory behind a session cookie that
// the browser drops when it closes.
func NewEphemeralManager(lifetime time.Duration, secure bool) *scs.SessionManager {
	sm := scs.New()
	sm.Store = memstore.New()
	sm.Lifetime = lifetime
	sm.Cookie.Name = EphemeralCookieName
	sm.Cookie.Persist = false
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secure
	return sm
}

// ManagerStorage is a Storage over an scs session manager. The request must
// have passed through the manager's LoadAndSave middleware.
type ManagerStorage struct {
	sm *scs.SessionManager
}

func NewManagerStorage(sm *scs.SessionManager) *ManagerStorage {
	return &ManagerStorage{sm: sm}
}

func (m *ManagerStorage) Get(ctx context.Context, key string) (string, bool) {
	if !m.sm.Exists(ctx, key) {
		return "", false
	}
	return m.sm.GetString(ctx, key), true
}

func (m *ManagerStorage) Put(ctx context.Context, key, value string) {
	m.sm.Put(ctx, key, value)
}

func (m *ManagerStorage) Remove(ctx context.Context, key string) {
	m.sm.Remove(ctx, key)
}

// Renew rotates the session id, called when a token is written.
func (m *ManagerStorage) Renew(ctx context.Context) error {
	if err := m.sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("[session Renew] %w", err)
	}
	return nil
}
