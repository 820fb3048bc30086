// Package config loads daemon settings from the environment and an optional
// .env file. Closure timers are not configured here; they are persisted state
// owned by the settings package.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the meetcloser daemon.
type Config struct {
	// CDP connection settings
	CDPAddress  string
	CDPPort     int
	EvalTimeout time.Duration

	// HTTP surface
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Persistence
	StateFile        string
	JournalDir       string
	JournalMaxSizeMB int

	// Monitor behavior
	SweepInterval time.Duration
	ProfileDir    string

	// Browser launch
	LaunchBrowser bool
	StartURL      string

	// Auto-admit
	AdmitRulesPath string
	AdmitInterval  time.Duration

	NtfyURL string

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		EvalTimeout:      getEnvMillisOrDefault("MEETCLOSER_EVAL_TIMEOUT_MS", 5000),
		BindAddr:         getEnvOrDefault("MEETCLOSER_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("MEETCLOSER_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback: getEnvBoolOrDefault("MEETCLOSER_PORT_AUTO_FALLBACK", true),
		StateFile:        getEnvOrDefault("MEETCLOSER_STATE_FILE", "./data/state.json"),
		JournalDir:       getEnvOrDefault("MEETCLOSER_JOURNAL_DIR", "./data/journal"),
		JournalMaxSizeMB: getEnvIntOrDefault("MEETCLOSER_JOURNAL_MAX_SIZE_MB", 10),
		SweepInterval:    getEnvMillisOrDefault("MEETCLOSER_SWEEP_INTERVAL_MS", 5000),
		ProfileDir:       getEnvOrDefault("MEETCLOSER_PROFILE_DIR", ""),
		LaunchBrowser:    getEnvBoolOrDefault("MEETCLOSER_LAUNCH_BROWSER", false),
		StartURL:         getEnvOrDefault("MEETCLOSER_START_URL", "about:blank"),
		AdmitRulesPath:   getEnvOrDefault("MEETCLOSER_ADMIT_RULES", "./config/admit.yaml"),
		AdmitInterval:    getEnvMillisOrDefault("MEETCLOSER_ADMIT_INTERVAL_MS", 2000),
		NtfyURL:          getEnvOrDefault("MEETCLOSER_NTFY_URL", ""),
		LogLevel:         strings.ToLower(getEnvOrDefault("MEETCLOSER_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("MEETCLOSER_LOG_FILE", "logs/meetcloser.log"),
	}
	if cfg.EvalTimeout < time.Second {
		cfg.EvalTimeout = time.Second
	}
	if cfg.SweepInterval < 100*time.Millisecond {
		return nil, fmt.Errorf("config: MEETCLOSER_SWEEP_INTERVAL_MS must be at least 100, got %d", cfg.SweepInterval.Milliseconds())
	}
	if cfg.AdmitInterval < 100*time.Millisecond {
		return nil, fmt.Errorf("config: MEETCLOSER_ADMIT_INTERVAL_MS must be at least 100, got %d", cfg.AdmitInterval.Milliseconds())
	}
	if cfg.LaunchBrowser && cfg.ProfileDir == "" {
		cfg.ProfileDir = "./data/profile"
	}
	return cfg, nil
}

// CDPURL returns the DevTools HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvMillisOrDefault(key string, defaultMS int) time.Duration {
	return time.Duration(getEnvIntOrDefault(key, defaultMS)) * time.Millisecond
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
