package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
	GetReconcilePolicy() string
}

type SessionConfig interface {
	GetSessionDBPath() string
	GetRememberLifetime() time.Duration
	GetEphemeralLifetime() time.Duration
	GetIdentityCacheSize() int
	GetSecureCookies() bool
}

type mainConfig struct {
	EnvVars
	API
	Session
}

// New reads the configuration from the environment. Unset variables fall
// back to their defaults.
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] parsing environment: %w", err)
	}
	if err := c.API.validate(); err != nil {
		return nil, fmt.Errorf("[config New] %w", err)
	}
	return c, nil
}
