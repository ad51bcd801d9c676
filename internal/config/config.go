package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to allow YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string, got %s", value.ShortTag())
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// SecretSpec defines how to resolve a secret, e.g. "env:PLATFORM_API_KEY".
type SecretSpec struct {
	Source string
	Value  string
}

// UnmarshalYAML parses secret references of the form "source:value".
func (s *SecretSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("secret must be scalar, got %s", value.ShortTag())
	}
	raw := strings.TrimSpace(value.Value)
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid secret spec %q", raw)
	}
	s.Source = strings.TrimSpace(parts[0])
	s.Value = strings.TrimSpace(parts[1])
	return nil
}

// Resolve returns the secret material, or an error when the source is
// unavailable.
func (s SecretSpec) Resolve(name string) (string, error) {
	switch s.Source {
	case "env":
		val, ok := os.LookupEnv(s.Value)
		if !ok {
			return "", fmt.Errorf("missing env var %q for secret %q", s.Value, name)
		}
		return val, nil
	default:
		return "", fmt.Errorf("unsupported secret source %q for secret %q", s.Source, name)
	}
}

// Config is the root configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Service  ServiceConfig  `yaml:"service"`
	Platform PlatformConfig `yaml:"platform"`
	Storage  StorageConfig  `yaml:"storage"`
	Checks   []CheckConfig  `yaml:"checks"`
}

// ServiceConfig contains host process settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Listen      string `yaml:"listen"`
	Schedule    string `yaml:"schedule"`
	LogRequests bool   `yaml:"log_requests"`
}

// PlatformConfig describes the remote platform under verification.
type PlatformConfig struct {
	BaseURL          string     `yaml:"base_url"`
	BearerKey        SecretSpec `yaml:"bearer_key"`
	PrivilegedKey    SecretSpec `yaml:"privileged_key"`
	Timeout          Duration   `yaml:"timeout"`
	LockStaleAfter   Duration   `yaml:"lock_stale_after"`
	PublicBaseURL    string     `yaml:"public_base_url"`
	ApplicationSlug  string     `yaml:"application_slug"`
	AllowEmptyTables bool       `yaml:"allow_empty_tables"`
}

// StorageConfig holds persistence settings for the last-report store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// CheckConfig selects one check and carries its type-specific options.
type CheckConfig struct {
	ID      string         `yaml:"id"`
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	seen := make(map[string]struct{}, len(c.Checks))
	for _, check := range c.Checks {
		if check.ID == "" {
			return fmt.Errorf("every check needs an id")
		}
		if check.Type == "" {
			return fmt.Errorf("check %q needs a type", check.ID)
		}
		if _, dup := seen[check.ID]; dup {
			return fmt.Errorf("duplicate check id %q", check.ID)
		}
		seen[check.ID] = struct{}{}
	}
	return nil
}
