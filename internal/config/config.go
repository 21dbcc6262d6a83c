// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and NETPULSE_ env vars.
// - Durations are plain integers with the unit in the key name.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// IdentityHeader names the forwarded-address header used to key clients.
	IdentityHeader string `koanf:"identity_header"`

	// ResultTTLSeconds bounds how long network test results stay readable.
	ResultTTLSeconds int `koanf:"result_ttl_seconds"`
	// MaxTestDurationSeconds rejects network tests asking for longer phases.
	MaxTestDurationSeconds int `koanf:"max_test_duration_seconds"`
	// DefaultTestDurationSeconds applies when a request omits duration.
	DefaultTestDurationSeconds int `koanf:"default_test_duration_seconds"`
	// PhaseTimeScaleMS is the simulated wall time per requested second of a phase.
	// Zero runs phases without pacing.
	PhaseTimeScaleMS int `koanf:"phase_time_scale_ms"`
	// MeasurementSeed seeds the synthetic measurement source; zero uses the clock.
	MeasurementSeed int64 `koanf:"measurement_seed"`

	// FeedbackDedupWindowSeconds is how long an identical submission is rejected.
	FeedbackDedupWindowSeconds int `koanf:"feedback_dedup_window_seconds"`
	// FeedbackDedupSize bounds the number of fingerprints remembered.
	FeedbackDedupSize int `koanf:"feedback_dedup_size"`
	// FeedbackRetentionSeconds bounds how long accepted feedback is kept in memory.
	FeedbackRetentionSeconds int `koanf:"feedback_retention_seconds"`

	// NotifyQueueSize bounds pending best-effort notifications.
	NotifyQueueSize int `koanf:"notify_queue_size"`
	// NotifyWorkerCount sets the number of notification dispatchers.
	NotifyWorkerCount int `koanf:"notify_worker_count"`
	// NotifyTimeoutMS caps a single notification delivery.
	NotifyTimeoutMS int `koanf:"notify_timeout_ms"`

	// RateLimitRPS is the steady per-client request rate; zero disables limiting.
	RateLimitRPS float64 `koanf:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst capacity.
	RateLimitBurst int `koanf:"rate_limit_burst"`

	// SMTP settings for feedback email; an empty host disables email.
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`
	SMTPTo       string `koanf:"smtp_to"`

	// Telegram settings for feedback chat notifications; empty token disables.
	TelegramBotToken string `koanf:"telegram_bot_token"`
	TelegramChatID   string `koanf:"telegram_chat_id"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                   "info",
		LogFormat:                  "text",
		Addr:                       ":9080",
		IdentityHeader:             "X-Forwarded-For",
		ResultTTLSeconds:           3600,
		MaxTestDurationSeconds:     60,
		DefaultTestDurationSeconds: 10,
		PhaseTimeScaleMS:           20,
		FeedbackDedupWindowSeconds: 300,
		FeedbackDedupSize:          100_000,
		FeedbackRetentionSeconds:   86400,
		NotifyQueueSize:            1024,
		NotifyWorkerCount:          runtime.NumCPU(),
		NotifyTimeoutMS:            5000,
		RateLimitRPS:               20,
		RateLimitBurst:             40,
		SMTPPort:                   587,
	}
}

// ResultTTL returns ResultTTLSeconds as a duration.
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLSeconds) * time.Second
}

// FeedbackDedupWindow returns FeedbackDedupWindowSeconds as a duration.
func (c *Config) FeedbackDedupWindow() time.Duration {
	return time.Duration(c.FeedbackDedupWindowSeconds) * time.Second
}

// FeedbackRetention returns FeedbackRetentionSeconds as a duration.
func (c *Config) FeedbackRetention() time.Duration {
	return time.Duration(c.FeedbackRetentionSeconds) * time.Second
}

// NotifyTimeout returns NotifyTimeoutMS as a duration.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutMS) * time.Millisecond
}

// PhaseTimeScale returns PhaseTimeScaleMS as a duration.
func (c *Config) PhaseTimeScale() time.Duration {
	return time.Duration(c.PhaseTimeScaleMS) * time.Millisecond
}
