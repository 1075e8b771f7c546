// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used by the commands.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"imagefield/internal/storage"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	Env      string // "development", "production", "testing"
	LogLevel string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache and render queue)
	ValkeyEnabled  bool
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// File storage
	StorageBackend string // "local" or "s3"
	StorageRoot    string
	StorageBaseURL string
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3PublicURL    string

	// Field definitions and batch rendering
	FieldsFile   string
	BatchWorkers int
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing or malformed.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      envOrDefault("APP_ENV", "development"),
		LogLevel: envOrDefault("LOG_LEVEL", "info"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "imagefield"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "imagefield"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		StorageBackend: envOrDefault("STORAGE_BACKEND", storage.BackendLocal),
		StorageRoot:    envOrDefault("STORAGE_ROOT", "./media"),
		StorageBaseURL: os.Getenv("STORAGE_BASE_URL"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3Region:       envOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3PublicURL:    os.Getenv("S3_PUBLIC_URL"),

		FieldsFile: envOrDefault("FIELDS_FILE", "fields.yaml"),
	}

	var err error
	if cfg.ValkeyEnabled, err = strconv.ParseBool(envOrDefault("VALKEY_ENABLED", "true")); err != nil {
		return nil, fmt.Errorf("VALKEY_ENABLED: %w", err)
	}
	if cfg.BatchWorkers, err = strconv.Atoi(envOrDefault("BATCH_WORKERS", strconv.Itoa(runtime.NumCPU()))); err != nil {
		return nil, fmt.Errorf("BATCH_WORKERS: %w", err)
	}
	if cfg.BatchWorkers < 1 {
		return nil, fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", cfg.BatchWorkers)
	}

	switch cfg.StorageBackend {
	case storage.BackendLocal, storage.BackendS3:
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", storage.BackendLocal, storage.BackendS3, cfg.StorageBackend)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// StorageOptions returns the options for storage.New.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:     c.StorageBackend,
		Root:        c.StorageRoot,
		BaseURL:     c.StorageBaseURL,
		S3Endpoint:  c.S3Endpoint,
		S3Region:    c.S3Region,
		S3AccessKey: c.S3AccessKey,
		S3SecretKey: c.S3SecretKey,
		S3Bucket:    c.S3Bucket,
		S3PublicURL: c.S3PublicURL,
	}
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
