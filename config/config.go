// Package config loads and saves the deskcode configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. API keys set here are exported into
// a locally spawned server's environment; keys stored server-side via
// `deskcode auth` do not appear here.
type Config struct {
	// ServerURL points at an already running agent server. When empty, a
	// local server is spawned for ProjectPath.
	ServerURL string `yaml:"server_url,omitempty"`

	// ProjectPath is the working directory a locally spawned server
	// operates on. Defaults to the current directory.
	ProjectPath string `yaml:"project_path,omitempty"`

	// Model is the dispatch target, "provider/model" or a bare model id.
	Model string `yaml:"model"`

	// DefaultProvider is paired with bare model ids.
	DefaultProvider string `yaml:"default_provider,omitempty"`

	// SystemPrompt is sent with every dispatch when set.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// TurnTimeoutSeconds bounds event silence on an in-flight turn before
	// it is marked failed. Zero uses the default; negative disables.
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds,omitempty"`

	// APIKeys maps provider ids to API keys for local server spawns.
	APIKeys map[string]string `yaml:"api_keys,omitempty"`
}

const defaultTurnTimeout = 120 * time.Second

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Model:           "anthropic/claude-sonnet-4-20250514",
		DefaultProvider: "anthropic",
	}
}

// TurnTimeout converts the configured seconds into a duration, applying the
// default and the disable convention.
func (c Config) TurnTimeout() time.Duration {
	switch {
	case c.TurnTimeoutSeconds > 0:
		return time.Duration(c.TurnTimeoutSeconds) * time.Second
	case c.TurnTimeoutSeconds < 0:
		return 0
	default:
		return defaultTurnTimeout
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "deskcode", "config.yaml"), nil
}

// Load reads the config at path. A missing file yields Default() without an
// error; a malformed file is an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
