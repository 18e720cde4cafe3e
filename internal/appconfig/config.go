// Package appconfig loads the remsh application configuration.
package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	KeyStorePath  string         `mapstructure:"key_store_path" yaml:"key_store_path"`
	Connect       ConnectConfig  `mapstructure:"connect" yaml:"connect"`
	Terminal      TerminalConfig `mapstructure:"terminal" yaml:"terminal"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ConnectConfig controls connection establishment.
type ConnectConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// TerminalConfig controls the remote pty request.
type TerminalConfig struct {
	Term string `mapstructure:"term" yaml:"term"`
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".remsh", "config.yaml"), nil
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".remsh", "state"),
		KeyStorePath:  filepath.Join(home, ".remsh", "keystore.pb"),
		Connect:       ConnectConfig{TimeoutSeconds: 10},
		Terminal:      TerminalConfig{Term: "xterm-256color"},
	}, nil
}
