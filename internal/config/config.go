package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrUsage reports an invalid command line.
var ErrUsage = errors.New("usage error")

// maxIntervalSeconds is the largest interval representable as a time.Duration.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	SampleInterval   time.Duration
	ProcRoot         string
	LogLevel         slog.Level
	OutputFormat     string
	ShowResets       bool
	ListenAddr       string
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	WS               WebsocketConfig
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
}

// HTTPEnabled reports whether the HTTP surface should be started.
func (c Config) HTTPEnabled() bool {
	return c.ListenAddr != ""
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		SampleInterval:   time.Second,
		ProcRoot:         "/proc",
		LogLevel:         slog.LevelInfo,
		OutputFormat:     "text",
		ShowResets:       false,
		ListenAddr:       "",
		AllowedOrigins:   []string{"*"},
		EnablePrometheus: false,
		EnablePprof:      false,
		WS: WebsocketConfig{
			MaxClients:   64,
			WriteTimeout: 3 * time.Second,
		},
	}

	if value := strings.TrimSpace(os.Getenv("APP_SAMPLE_INTERVAL")); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_SAMPLE_INTERVAL: %w", err)
		}
		if duration <= 0 {
			return Config{}, fmt.Errorf("APP_SAMPLE_INTERVAL must be > 0")
		}
		cfg.SampleInterval = duration
	}

	if value := strings.TrimSpace(os.Getenv("APP_PROC_ROOT")); value != "" {
		cfg.ProcRoot = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("APP_OUTPUT_FORMAT")); value != "" {
		format := strings.ToLower(value)
		switch format {
		case "text", "json", "yaml", "yml":
		default:
			return Config{}, fmt.Errorf("unsupported APP_OUTPUT_FORMAT %q", value)
		}
		cfg.OutputFormat = format
	}

	if value := strings.TrimSpace(os.Getenv("APP_SHOW_RESETS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_SHOW_RESETS: %w", err)
		}
		cfg.ShowResets = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_LISTEN_ADDR")); value != "" {
		cfg.ListenAddr = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_ALLOWED_ORIGINS")); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PROMETHEUS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PROMETHEUS: %w", err)
		}
		cfg.EnablePrometheus = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PPROF")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PPROF: %w", err)
		}
		cfg.EnablePprof = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_MAX_CLIENTS")); value != "" {
		maxClients, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_MAX_CLIENTS: %w", err)
		}
		if maxClients <= 0 {
			return Config{}, fmt.Errorf("APP_WS_MAX_CLIENTS must be > 0")
		}
		cfg.WS.MaxClients = maxClients
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_WRITE_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_WRITE_TIMEOUT: %w", err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("APP_WS_WRITE_TIMEOUT must be > 0")
		}
		cfg.WS.WriteTimeout = timeout
	}

	return cfg, nil
}

// ApplyArgs applies the positional command line arguments (excluding the
// program name). At most one argument is accepted: the sampling interval as
// a positive whole number of seconds.
func (c *Config) ApplyArgs(args []string) error {
	interval, ok, err := ParseInterval(args)
	if err != nil {
		return err
	}
	if ok {
		c.SampleInterval = interval
	}
	return nil
}

// ParseInterval parses the optional interval argument. ok is false when no
// argument was given.
func ParseInterval(args []string) (interval time.Duration, ok bool, err error) {
	switch len(args) {
	case 0:
		return 0, false, nil
	case 1:
	default:
		return 0, false, fmt.Errorf("%w: expected at most one argument, got %d", ErrUsage, len(args))
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, false, fmt.Errorf("%w: interval %q is not an integer number of seconds", ErrUsage, args[0])
	}
	if seconds <= 0 {
		return 0, false, fmt.Errorf("%w: interval must be > 0, got %d", ErrUsage, seconds)
	}
	if int64(seconds) > maxIntervalSeconds {
		return 0, false, fmt.Errorf("%w: interval must be <= %d seconds, got %d", ErrUsage, maxIntervalSeconds, seconds)
	}
	return time.Duration(seconds) * time.Second, true, nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
