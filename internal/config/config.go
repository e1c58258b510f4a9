package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL   string
	DataDir    string // Trigger files and actor specs
	ScriptsDir string // Lua files for exec nodes; empty disables scripts

	// Extra kind fields recognized by the parser. The API and the worker
	// must agree on these or deferred extension actions cannot be re-parsed.
	ExtensionFields []string

	// Worker settings
	PollInterval     time.Duration
	LockTTL          time.Duration
	WorkerID         string
	VerboseResolvers bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		ScriptsDir:  getEnv("SCRIPTS_DIR", ""),
		WorkerID:    getEnv("WORKER_ID", "worker-"+uuid.NewString()[:8]),

		ExtensionFields: parseList(getEnv("EXTENSION_FIELDS", "")),
	}

	var err error
	if cfg.PollInterval, err = parseDuration("POLL_INTERVAL", "1s"); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = parseDuration("LOCK_TTL", "30s"); err != nil {
		return nil, err
	}
	if cfg.VerboseResolvers, err = parseBool("VERBOSE_RESOLVERS", "false"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func parseBool(key, defaultValue string) (bool, error) {
	b, err := strconv.ParseBool(getEnv(key, defaultValue))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// parseList splits a comma separated value, dropping empty entries.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
