package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	ReconcileKeep    = "keep"
	ReconcileRefetch = "refetch"
)

// API holds the settings for the remote scheduling API
type API struct {
	BaseURL         string        `env:"API_BASE_URL" envDefault:"http://localhost:8080/"`
	Timeout         time.Duration `env:"API_TIMEOUT" envDefault:"15s"`
	ReconcilePolicy string        `env:"RECONCILE_POLICY" envDefault:"keep"`
}

var _ APIConfig = API{}

// GetAPIBaseURL always ends in a slash so relative resource paths resolve
// below it.
func (a API) GetAPIBaseURL() string {
	if strings.HasSuffix(a.BaseURL, "/") {
		return a.BaseURL
	}
	return a.BaseURL + "/"
}

func (a API) GetAPITimeout() time.Duration {
	return a.Timeout
}

func (a API) GetReconcilePolicy() string {
	return strings.ToLower(a.ReconcilePolicy)
}

func (a API) validate() error {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return fmt.Errorf("API_BASE_URL %q: %w", a.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL %q must be an http(s) URL", a.BaseURL)
	}
	switch a.GetReconcilePolicy() {
	case ReconcileKeep, ReconcileRefetch:
	default:
		return fmt.Errorf("RECONCILE_POLICY must be %q or %q, got %q", ReconcileKeep, ReconcileRefetch, a.ReconcilePolicy)
	}
	return nil
}
