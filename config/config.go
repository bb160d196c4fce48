/*
Package config loads server configuration from the environment.

PURPOSE:
  Single place where environment variables are read. A .env file in the
  working directory is loaded first when present (godotenv), then real
  environment variables override it. Missing values fall back to local
  development defaults, so `go run ./cmd/server` works with no setup.

VARIABLES:
  PORT                      HTTP listen port               (default 8080)
  DB_PATH                   SQLite database path           (default ./data/credit.db)
  LOG_LEVEL                 logrus level: debug/info/warn  (default info)
  CORS_ALLOWED_ORIGINS      comma-separated origin list
  STATUS_REFRESH_ENABLED    run the periodic status sweep  (default false)
  STATUS_REFRESH_SCHEDULE   cron expression for the sweep  (default "0 2 * * *")
*/
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port           int
	DBPath         string
	LogLevel       string
	AllowedOrigins []string

	// StatusRefreshEnabled turns on the periodic credit status sweep.
	// Off by default: status is re-derived on read and after every
	// mutation, the sweep only keeps stored statuses current for
	// reporting queries.
	StatusRefreshEnabled  bool
	StatusRefreshSchedule string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                  getInt("PORT", 8080),
		DBPath:                getString("DB_PATH", "./data/credit.db"),
		LogLevel:              getString("LOG_LEVEL", "info"),
		AllowedOrigins:        getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		StatusRefreshEnabled:  getBool("STATUS_REFRESH_ENABLED", false),
		StatusRefreshSchedule: getString("STATUS_REFRESH_SCHEDULE", "0 2 * * *"),
	}
}

// ParseLogLevel converts LogLevel to a logrus level, defaulting to info on
// unknown values.
func (c *Config) ParseLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
