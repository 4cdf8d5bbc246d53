package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Console server
	ServerPort string
	ServerURL  string

	// Operator identity used by the CLI when talking to the server
	OperatorID   string
	OperatorName string

	// Chat behaviour
	RefireOnReselect   bool
	RefireOnPush       bool
	MarkOperatorOnline bool
	WriteTimeout       time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "shop"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "support"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ServerPort: getEnv("SHOPDESK_SERVER_PORT", "8585"),
		ServerURL:  getEnv("SHOPDESK_SERVER_URL", "http://localhost:8585"),

		OperatorID:   getEnv("SHOPDESK_OPERATOR_ID", "admin"),
		OperatorName: getEnv("SHOPDESK_OPERATOR_NAME", "Support"),

		RefireOnReselect:   getEnvBool("SHOPDESK_REFIRE_ON_RESELECT", false),
		RefireOnPush:       getEnvBool("SHOPDESK_REFIRE_ON_PUSH", false),
		MarkOperatorOnline: getEnvBool("SHOPDESK_MARK_OPERATOR_ONLINE", true),
		WriteTimeout:       getEnvDuration("SHOPDESK_WRITE_TIMEOUT", 10*time.Second),

		LogFile:  getEnv("SHOPDESK_LOG_FILE", "/tmp/shopdesk.log"),
		LogLevel: parseLogLevel(getEnv("SHOPDESK_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
