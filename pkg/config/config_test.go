package config_test

import (
	"bytes"
	"log/slog"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/contagion/pkg/config"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"LOG_LEVEL", "LOG_FORMAT", "DATA_DIR", "WORKERS", "EVENTS_DSN", "CHECKPOINT_INDEX",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "ARTIFACT_STORAGE_TYPE", "ARTIFACT_S3_BUCKET",
		"ARTIFACT_S3_REGION", "AWS_REGION", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies that Load() returns runnable defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Empty(t, cfg.EventsDSN)
	assert.Equal(t, "file", cfg.CheckpointIndex)
	assert.Equal(t, "fs", cfg.ArtifactStorageType)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("WORKERS", "3")
	t.Setenv("EVENTS_DSN", "sqlite://run.db")
	t.Setenv("CHECKPOINT_INDEX", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "sqlite://run.db", cfg.EventsDSN)
	assert.Equal(t, "redis", cfg.CheckpointIndex)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.True(t, cfg.OTelEnabled)

	var buf bytes.Buffer
	cfg.NewLogger(&buf).Info("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestLoad_BadIntegerFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKERS", "many")
	assert.Equal(t, runtime.GOMAXPROCS(0), config.Load().Workers)
}
