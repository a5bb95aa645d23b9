package config

import "time"

type Session struct {
	DBPath            string        `env:"SESSION_DB_PATH" envDefault:"./data/sessions.db"`
	RememberLifetime  time.Duration `env:"SESSION_REMEMBER_LIFETIME" envDefault:"720h"`
	EphemeralLifetime time.Duration `env:"SESSION_EPHEMERAL_LIFETIME" envDefault:"12h"`
	IdentityCacheSize int           `env:"IDENTITY_CACHE_SIZE" envDefault:"1024"`
	SecureCookies     bool          `env:"SESSION_SECURE_COOKIES" envDefault:"false"`
}

var _ SessionConfig = Session{}

func (s Session) GetSessionDBPath() string {
	return s.DBPath
}

func (s Session) GetRememberLifetime() time.Duration {
	return s.RememberLifetime
}

func (s Session) GetEphemeralLifetime() time.Duration {
	return s.EphemeralLifetime
}

func (s Session) GetIdentityCacheSize() int {
	if s.IdentityCacheSize <= 0 {
		return 1
	}
	return s.IdentityCacheSize
}

func (s Session) GetSecureCookies() bool {
	return s.SecureCookies
}
