package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "NETPULSE_"
	envConfigPath = "NETPULSE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if NETPULSE_CONFIG is set
//  3. env (prefix NETPULSE_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// NETPULSE_RESULT_TTL_SECONDS -> result_ttl_seconds. Underscores are kept
	// so keys match the flat koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The config path itself is not a config key.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that would make the service misbehave.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxTestDurationSeconds <= 0:
		return fmt.Errorf("%w: max_test_duration_seconds must be positive", ErrInvalidConfig)
	case c.DefaultTestDurationSeconds <= 0 || c.DefaultTestDurationSeconds > c.MaxTestDurationSeconds:
		return fmt.Errorf("%w: default_test_duration_seconds must be within (0, max_test_duration_seconds]", ErrInvalidConfig)
	case c.ResultTTLSeconds <= 0:
		return fmt.Errorf("%w: result_ttl_seconds must be positive", ErrInvalidConfig)
	case c.FeedbackDedupWindowSeconds <= 0:
		return fmt.Errorf("%w: feedback_dedup_window_seconds must be positive", ErrInvalidConfig)
	case c.FeedbackRetentionSeconds <= 0:
		return fmt.Errorf("%w: feedback_retention_seconds must be positive", ErrInvalidConfig)
	case c.PhaseTimeScaleMS < 0:
		return fmt.Errorf("%w: phase_time_scale_ms must not be negative", ErrInvalidConfig)
	case c.RateLimitRPS < 0:
		return fmt.Errorf("%w: rate_limit_rps must not be negative", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	return nil
}
