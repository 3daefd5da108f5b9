// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
)

// Telemetry exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds all configuration for the application.
type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	GeminiAPIKey     string
	GeminiModel      string
	LogLevel         string
	LogFormat        string

	ManagerUserIDs   []int64
	ManagerUsernames []string
	StaffUserIDs     []int64

	Timezone         string
	RemindersEnabled bool

	ExpoPushURL     string
	ExpoAccessToken string

	CacheBackend    string
	RedisAddr       string
	RedisPassword   string
	CacheSQLitePath string

	OTelExporter string
	OTLPProtocol string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogFormat:        strings.ToLower(os.Getenv("LOG_FORMAT")),
		ExpoPushURL:      os.Getenv("EXPO_PUSH_URL"),
		ExpoAccessToken:  os.Getenv("EXPO_ACCESS_TOKEN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		CacheSQLitePath:  os.Getenv("CACHE_SQLITE_PATH"),
	}

	cfg.Timezone = "Asia/Kolkata"
	if tz := os.Getenv("MESS_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}

	cfg.RemindersEnabled = os.Getenv("REMINDERS_ENABLED") != "false"

	cfg.CacheBackend = envOr("CACHE_BACKEND", CacheMemory)
	if cfg.CacheBackend == CacheSQLite && cfg.CacheSQLitePath == "" {
		cfg.CacheSQLitePath = "mess-cache.db"
	}
	cfg.GeminiModel = envOr("GEMINI_MODEL", "")
	cfg.OTelExporter = envOr("OTEL_EXPORTER", ExporterNone)
	cfg.OTLPProtocol = envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")

	cfg.ManagerUserIDs = parseIDs(os.Getenv("MANAGER_USER_IDS"))
	cfg.StaffUserIDs = parseIDs(os.Getenv("STAFF_USER_IDS"))

	for username := range strings.SplitSeq(os.Getenv("MANAGER_USERNAMES"), ",") {
		username = strings.TrimPrefix(strings.TrimSpace(username), "@")
		if username == "" {
			continue
		}
		cfg.ManagerUsernames = append(cfg.ManagerUsernames, username)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(key))); v != "" {
		return v
	}
	return fallback
}

func parseIDs(s string) []int64 {
	var ids []int64
	for idStr := range strings.SplitSeq(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.TelegramBotToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if len(c.ManagerUserIDs) == 0 && len(c.ManagerUsernames) == 0 {
		errs = append(errs, "at least one manager (MANAGER_USER_IDS or MANAGER_USERNAMES) is required")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("MESS_TIMEZONE %q is not a valid time zone", c.Timezone))
	}

	switch c.CacheBackend {
	case CacheMemory, CacheSQLite:
	case CacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when CACHE_BACKEND is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("CACHE_BACKEND must be memory, redis or sqlite, got %q", c.CacheBackend))
	}

	switch c.OTelExporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		errs = append(errs, fmt.Sprintf("OTEL_EXPORTER must be none, stdout or otlp, got %q", c.OTelExporter))
	}
	if c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
		errs = append(errs, fmt.Sprintf("OTEL_EXPORTER_OTLP_PROTOCOL must be grpc or http, got %q", c.OTLPProtocol))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Location returns the mess time zone. It falls back to UTC for an invalid
// zone, which validate already rejects.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsManager checks if a Telegram user is a manager defined via environment
// variables. Either the user ID or the username may match.
func (c *Config) IsManager(userID int64, username string) bool {
	if slices.Contains(c.ManagerUserIDs, userID) {
		return true
	}

	if username != "" {
		username = strings.TrimPrefix(username, "@")
		for _, m := range c.ManagerUsernames {
			if strings.EqualFold(m, username) {
				return true
			}
		}
	}

	return false
}

// IsStaff checks if a Telegram user is staff defined via environment variables.
func (c *Config) IsStaff(userID int64) bool {
	return slices.Contains(c.StaffUserIDs, userID)
}
