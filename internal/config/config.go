package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	JWTSecret string

	LogLevel  string
	LogFormat string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryUploadFolder string

	// DispatchPhone is the fallback on-duty contact when a responder has no
	// phone on record.
	DispatchPhone string

	// ConfirmWindow bounds how long an optimistic write may stay unconfirmed
	// before it is reverted.
	ConfirmWindow time.Duration
	// SnapshotLimit caps rows per entity loaded into a session snapshot.
	SnapshotLimit int
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),

		JWTSecret: getEnv("JWT_SECRET", "12345"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MeiliSearchHost: getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "alert_evidence"),

		DispatchPhone: os.Getenv("DISPATCH_PHONE"),

		SnapshotLimit: 500,
	}

	var err error
	cfg.ConfirmWindow, err = parseDuration(getEnv("CONFIRM_WINDOW", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIRM_WINDOW: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
