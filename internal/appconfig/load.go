package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/remsh/internal/userhome"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("key_store_path", cfg.KeyStorePath)
	v.SetDefault("connect.timeout_seconds", cfg.Connect.TimeoutSeconds)
	v.SetDefault("terminal.term", cfg.Terminal.Term)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if loaded.ConfigVersion > CurrentConfigVersion {
		return Config{}, fmt.Errorf("config version %d is newer than supported %d", loaded.ConfigVersion, CurrentConfigVersion)
	}
	if loaded.StateDir, err = userhome.Expand(loaded.StateDir); err != nil {
		return Config{}, fmt.Errorf("state_dir: %w", err)
	}
	if loaded.KeyStorePath, err = userhome.Expand(loaded.KeyStorePath); err != nil {
		return Config{}, fmt.Errorf("key_store_path: %w", err)
	}
	return loaded, nil
}

// WriteDefault writes the default config file at path, creating parent
// directories. Refuses to overwrite an existing file.
func WriteDefault(path string) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}
	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
