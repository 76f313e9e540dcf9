// Package config loads boardpilot's runtime configuration. CLI flag
// parsing and YAML loading belong to the host program; this package
// resolves every field from environment variables (provider API key,
// VLM settings, safety gates, log level, optional DSN and telemetry
// address), each with a built-in default when its variable is unset or
// unparseable.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of values a SessionLoop needs to run one
// session. The host program (a CLI, a test harness, an embedding
// application) is responsible for populating it; Load only supplies
// environment-sourced defaults.
type Config struct {
	// PlatformName selects which registered platform.Adapter
	// implementation to construct. boardpilot ships no concrete adapter;
	// this is purely a lookup key for the host program's adapter
	// registry.
	PlatformName string

	// VLM backend selection and guard configuration.
	VLMProvider         string
	VLMModel            string
	VLMBaseURL          string
	VLMAPIKey           string
	VLMTimeout          time.Duration
	VLMMaxRetries       int
	VLMBudgetPerSession int

	// Safety gates.
	DryRun            bool
	MaxActionsPerMin  int
	MaxClicks         int
	SessionTimeout    time.Duration
	DecisionInterval  time.Duration

	// RequireFull turns any not_configured/unavailable capability into a
	// hard startup failure instead of a silent degraded (Lite) session.
	RequireFull bool

	LogLevel string

	// DatabaseDSN, when non-empty, wires a TickStore for
	// post-hoc tick analysis. Empty means no TickStore — a SessionLoop
	// runs fine without one.
	DatabaseDSN string

	// TelemetryAddr, when non-empty, is the listen address the host
	// program binds the telemetry hub's websocket endpoint to.
	TelemetryAddr string
}

// Load resolves the environment-sourced fields with sane defaults. API
// keys are read but their absence never aborts startup here — a missing
// key surfaces later as a not_configured capability entry, not a fatal
// error at config time.
func Load() *Config {
	return &Config{
		PlatformName:        getEnv("BOARDPILOT_PLATFORM", ""),
		VLMProvider:         getEnv("BOARDPILOT_VLM_PROVIDER", "openai"),
		VLMModel:            getEnv("BOARDPILOT_VLM_MODEL", "gpt-4o"),
		VLMBaseURL:          getEnv("BOARDPILOT_VLM_BASE_URL", ""),
		VLMAPIKey:           getEnv("OPENAI_API_KEY", ""),
		VLMTimeout:          getDuration("BOARDPILOT_VLM_TIMEOUT", 30*time.Second),
		VLMMaxRetries:       getInt("BOARDPILOT_VLM_MAX_RETRIES", 2),
		VLMBudgetPerSession: getInt("BOARDPILOT_VLM_BUDGET", 50),
		DryRun:              getBool("BOARDPILOT_DRY_RUN", true),
		MaxActionsPerMin:    getInt("BOARDPILOT_MAX_ACTIONS_PER_MIN", 30),
		MaxClicks:           getInt("BOARDPILOT_MAX_CLICKS", 300),
		SessionTimeout:      getDuration("BOARDPILOT_SESSION_TIMEOUT", 300*time.Second),
		DecisionInterval:    getDuration("BOARDPILOT_DECISION_INTERVAL", 2*time.Second),
		RequireFull:         getBool("BOARDPILOT_REQUIRE_FULL", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:         getEnv("DATABASE_DSN", ""),
		TelemetryAddr:       getEnv("BOARDPILOT_TELEMETRY_ADDR", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
