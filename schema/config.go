package schema

import (
	"os"
	"path/filepath"
	"time"
)

// ServiceConfig defines defaults and limits for the session engine.
type ServiceConfig struct {
	StateDir     string
	KeyStorePath string
	// ConnectTimeout overrides the store's connect timeout when positive;
	// zero defers to the store.
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout is applied when no connect timeout is configured.
const DefaultConnectTimeout = 10 * time.Second

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".remsh", "state")
	}
	if cfg.KeyStorePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.KeyStorePath = filepath.Join(home, ".remsh", "keystore.pb")
	}
	return cfg, nil
}
