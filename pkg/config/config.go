// Package config reads process configuration from the environment.
package config

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds process configuration. Scenario parameters live in the scenario file.
type Config struct {
	LogLevel  string
	LogFormat string
	DataDir   string
	Workers   int

	// EventsDSN selects the event sink: empty for memory, sqlite://path or postgres://...
	EventsDSN string

	// CheckpointIndex is "file", "memory" or "redis".
	CheckpointIndex string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	ArtifactStorageType string
	S3Bucket            string
	S3Region            string
	S3Endpoint          string
	S3Prefix            string
	GCSBucket           string
	GCSPrefix           string

	OTelEnabled  bool
	OTelEndpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	s3Region := os.Getenv("ARTIFACT_S3_REGION")
	if s3Region == "" {
		s3Region = os.Getenv("AWS_REGION")
	}

	return &Config{
		LogLevel:            strings.ToUpper(getenv("LOG_LEVEL", "INFO")),
		LogFormat:           strings.ToLower(getenv("LOG_FORMAT", "text")),
		DataDir:             getenv("DATA_DIR", "data"),
		Workers:             atoi("WORKERS", runtime.GOMAXPROCS(0)),
		EventsDSN:           os.Getenv("EVENTS_DSN"),
		CheckpointIndex:     strings.ToLower(getenv("CHECKPOINT_INDEX", "file")),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             atoi("REDIS_DB", 0),
		ArtifactStorageType: getenv("ARTIFACT_STORAGE_TYPE", "fs"),
		S3Bucket:            os.Getenv("ARTIFACT_S3_BUCKET"),
		S3Region:            s3Region,
		S3Endpoint:          os.Getenv("ARTIFACT_S3_ENDPOINT"),
		S3Prefix:            os.Getenv("ARTIFACT_S3_PREFIX"),
		GCSBucket:           os.Getenv("ARTIFACT_GCS_BUCKET"),
		GCSPrefix:           os.Getenv("ARTIFACT_GCS_PREFIX"),
		OTelEnabled:         os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:        getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

// Level maps LogLevel to a slog level; unknown values fall back to INFO.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func atoi(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
