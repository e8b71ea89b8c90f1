/*
config.go - Process configuration from the environment

PURPOSE:
  Reads every setting of the server from environment variables, after
  loading a .env file if one exists. Command-line flags in cmd/server
  override the port and database path.

KEYS:
  PORT                 HTTP port (8080)
  DB_PATH              SQLite path (./attendance.db)
  TIMEZONE             Zone that defines "today" (Asia/Kolkata)
  DIRECTORY_URL        Remote employee directory; empty uses the local table
  FACE_VERIFY_URL      Face verification endpoint
  FACE_RECOGNIZE_URL   Face recognition endpoint
  UPSTREAM_TIMEOUT     Per-call collaborator timeout (10s)
  IMAGE_BACKEND        local | gcs (local)
  IMAGE_DIR            Local image directory (./images)
  IMAGE_BASE_URL       URL prefix for local images (/images)
  GCS_BUCKET           Bucket for the gcs backend
  GCS_CREDENTIALS_JSON Service account JSON; empty uses default credentials
  REDIS_ADDRESS        Enables the Redis sweep lock when set
  SWEEP_INTERVAL       Scheduler tick (1h)
  SWEEP_CRON           Cron schedule; replaces SWEEP_INTERVAL when set
  SWEEP_CONCURRENCY    Parallel employees per sweep (4)
  LOG_LEVEL            logrus level (info)
  LOG_FORMAT           json | text (json)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all server settings.
type Config struct {
	Port   string
	DBPath string

	Timezone *time.Location

	DirectoryURL     string
	FaceVerifyURL    string
	FaceRecognizeURL string
	UpstreamTimeout  time.Duration

	ImageBackend       string
	ImageDir           string
	ImageBaseURL       string
	GCSBucket          string
	GCSCredentialsJSON string

	RedisAddress     string
	SweepInterval    time.Duration
	SweepCron        string
	SweepConcurrency int

	LogLevel  string
	LogFormat string
}

// Image backends.
const (
	ImageBackendLocal = "local"
	ImageBackendGCS   = "gcs"
)

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:               get("PORT", "8080"),
		DBPath:             get("DB_PATH", "./attendance.db"),
		DirectoryURL:       get("DIRECTORY_URL", ""),
		FaceVerifyURL:      get("FACE_VERIFY_URL", ""),
		FaceRecognizeURL:   get("FACE_RECOGNIZE_URL", ""),
		ImageBackend:       strings.ToLower(get("IMAGE_BACKEND", ImageBackendLocal)),
		ImageDir:           get("IMAGE_DIR", "./images"),
		ImageBaseURL:       get("IMAGE_BASE_URL", "/images"),
		GCSBucket:          get("GCS_BUCKET", ""),
		GCSCredentialsJSON: get("GCS_CREDENTIALS_JSON", ""),
		RedisAddress:       get("REDIS_ADDRESS", ""),
		SweepCron:          get("SWEEP_CRON", ""),
		LogLevel:           get("LOG_LEVEL", "info"),
		LogFormat:          strings.ToLower(get("LOG_FORMAT", "json")),
	}

	loc, err := time.LoadLocation(get("TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return cfg, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Timezone = loc

	if cfg.UpstreamTimeout, err = parseDuration("UPSTREAM_TIMEOUT", get("UPSTREAM_TIMEOUT", "10s")); err != nil {
		return cfg, err
	}
	if cfg.SweepInterval, err = parseDuration("SWEEP_INTERVAL", get("SWEEP_INTERVAL", "1h")); err != nil {
		return cfg, err
	}

	if cfg.SweepCron != "" {
		if _, err := cron.ParseStandard(cfg.SweepCron); err != nil {
			return cfg, fmt.Errorf("SWEEP_CRON: %w", err)
		}
	}

	n, err := strconv.Atoi(get("SWEEP_CONCURRENCY", "4"))
	if err != nil || n < 1 {
		return cfg, fmt.Errorf("SWEEP_CONCURRENCY: must be a positive integer")
	}
	cfg.SweepConcurrency = n

	switch cfg.ImageBackend {
	case ImageBackendLocal:
	case ImageBackendGCS:
		if cfg.GCSBucket == "" {
			return cfg, fmt.Errorf("GCS_BUCKET is required for the gcs image backend")
		}
	default:
		return cfg, fmt.Errorf("IMAGE_BACKEND: unknown backend %q", cfg.ImageBackend)
	}

	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}
