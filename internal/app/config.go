package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PanelsPath string // panel files: .yaml, .yml, .json, .hcl

	HubURL       string // socket.io endpoint for the entity feed
	HubNamespace string

	APIBaseURL string // REST endpoint for history queries
	APIToken   string

	ServerAddr  string
	ServerToken string // inbound bearer token; empty disables the guard

	LogFormat string
	LogLevel  string

	// CacheFallbackSeconds throttles time-series panels that do not declare
	// their own cache window.
	CacheFallbackSeconds int
}

// NewConfig validates a configuration and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PanelsPath == "" {
		return nil, errors.New("PanelsPath is a required configuration field and cannot be empty")
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8090"
	}
	return &cfg, nil
}
