// Package config loads the runtime settings of the hostbridge command.
//
// Sources, lowest to highest precedence: built-in defaults, an optional YAML
// file, HOSTBRIDGE_* environment variables, then command-line flags (applied
// by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config holds the tunable knobs of a bridge process.
type Config struct {
	// Name reported by server.info. ENV: HOSTBRIDGE_NAME
	Name string `yaml:"name" env:"HOSTBRIDGE_NAME"`
	// LogLevel is one of debug, info, warn, error. ENV: HOSTBRIDGE_LOG_LEVEL
	LogLevel string `yaml:"log_level" env:"HOSTBRIDGE_LOG_LEVEL"`
	// LogFormat is json or console. ENV: HOSTBRIDGE_LOG_FORMAT
	LogFormat string `yaml:"log_format" env:"HOSTBRIDGE_LOG_FORMAT"`
	// MaxLineBytes caps one inbound line. ENV: HOSTBRIDGE_MAX_LINE_BYTES
	MaxLineBytes int `yaml:"max_line_bytes" env:"HOSTBRIDGE_MAX_LINE_BYTES"`
	// CallTimeout bounds tools/call. ENV: HOSTBRIDGE_CALL_TIMEOUT
	CallTimeout time.Duration `yaml:"call_timeout" env:"HOSTBRIDGE_CALL_TIMEOUT"`
	// MetadataTimeout bounds tools/list and tools/describe. ENV: HOSTBRIDGE_METADATA_TIMEOUT
	MetadataTimeout time.Duration `yaml:"metadata_timeout" env:"HOSTBRIDGE_METADATA_TIMEOUT"`
	// RateLimit is the number of lines processed per second; 0 disables pacing. ENV: HOSTBRIDGE_RATE_LIMIT
	RateLimit float64 `yaml:"rate_limit" env:"HOSTBRIDGE_RATE_LIMIT"`
	// RateBurst is the pacing burst size. ENV: HOSTBRIDGE_RATE_BURST
	RateBurst int `yaml:"rate_burst" env:"HOSTBRIDGE_RATE_BURST"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Name:            "hostbridge",
		LogLevel:        "info",
		LogFormat:       "json",
		MaxLineBytes:    1 << 20,
		CallTimeout:     30 * time.Second,
		MetadataTimeout: 10 * time.Second,
		RateBurst:       1,
	}
}

// Load layers the YAML file at path (skipped when empty) and the environment
// over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: log_format must be json or console, got %q", c.LogFormat)
	}
	if c.MaxLineBytes <= 0 {
		return fmt.Errorf("config: max_line_bytes must be positive, got %d", c.MaxLineBytes)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("config: call_timeout must be positive, got %s", c.CallTimeout)
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("config: metadata_timeout must be positive, got %s", c.MetadataTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit must not be negative, got %v", c.RateLimit)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return l, nil
}
