package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SURREALDB_URL", "")
	t.Setenv("SHOPDESK_REFIRE_ON_RESELECT", "")
	t.Setenv("SHOPDESK_WRITE_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.False(t, cfg.RefireOnReselect)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SURREALDB_NAMESPACE", "staging")
	t.Setenv("SHOPDESK_REFIRE_ON_PUSH", "yes")
	t.Setenv("SHOPDESK_MARK_OPERATOR_ONLINE", "off")
	t.Setenv("SHOPDESK_WRITE_TIMEOUT", "3s")
	t.Setenv("SHOPDESK_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "staging", cfg.SurrealDBNamespace)
	assert.True(t, cfg.RefireOnPush)
	assert.False(t, cfg.MarkOperatorOnline)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestGetEnvBoolFallback(t *testing.T) {
	t.Setenv("SHOPDESK_TEST_FLAG", "maybe")
	assert.True(t, getEnvBool("SHOPDESK_TEST_FLAG", true))
	assert.False(t, getEnvBool("SHOPDESK_TEST_FLAG", false))
}

func TestGetEnvDurationRejectsNonPositive(t *testing.T) {
	t.Setenv("SHOPDESK_TEST_DURATION", "-1s")
	assert.Equal(t, time.Minute, getEnvDuration("SHOPDESK_TEST_DURATION", time.Minute))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("conversation selected", "conversation_id", "c1")

	assert.Contains(t, stderr.String(), "conversation selected")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.True(t, strings.HasPrefix(file.String(), "{"), "file output should be JSON")
	assert.Contains(t, file.String(), `"conversation_id":"c1"`)
}
