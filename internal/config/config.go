// Package config loads the immutable process configuration once at startup.
//
// Every component receives its settings explicitly through *Config rather
// than reading the environment itself, so there is exactly one place that
// knows about env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the service reads from the environment.
// Zero values are never used directly; Load always fills in the documented
// defaults.
type Config struct {
	// Server
	Port      int
	Env       string
	Version   string
	LogLevel  string
	LogFormat string

	// CORS
	CORSAllowedOrigins []string

	// Redis (Asynq transport for the janitor and any other background task)
	RedisAddr string

	// BlobStore
	BlobEndpoint  string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobRegion    string
	BlobUseSSL    bool

	// Upload / sharing limits
	MaxUploadBytes     int64
	PresignTTL         time.Duration
	RoomTTL            time.Duration
	JanitorInterval    time.Duration
	JanitorOrphanGrace time.Duration
	SignalingIdle      time.Duration

	// SessionSecret is read only by the Identity collaborator; the core
	// never inspects session contents itself.
	SessionSecret string

	// DataDir is where the catalog's SQLite file lives.
	DataDir string
}

// Load reads environment variables (optionally via a local .env file) into
// an immutable Config. Returns an error when a required value is missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnvAsInt("PORT", 8080),
		Env:       getEnv("ENV", "development"),
		Version:   getEnv("VERSION", "0.1.0"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		RedisAddr: parseRedisAddr(getEnv("REDIS_URL", "redis://localhost:6379")),

		BlobEndpoint:  getEnv("BLOB_ENDPOINT", "http://localhost:9000"),
		BlobAccessKey: getEnv("BLOB_ACCESS_KEY", ""),
		BlobSecretKey: getEnv("BLOB_SECRET_KEY", ""),
		BlobBucket:    getEnv("BLOB_BUCKET", ""),
		BlobRegion:    getEnv("BLOB_REGION", "us-east-1"),
		BlobUseSSL:    getEnvAsBool("BLOB_USE_SSL", false),

		MaxUploadBytes:     getEnvAsInt64("MAX_UPLOAD_BYTES", 100*1024*1024),
		PresignTTL:         time.Duration(getEnvAsInt("PRESIGN_TTL_SECONDS", 3600)) * time.Second,
		RoomTTL:            time.Duration(getEnvAsInt("ROOM_TTL_SECONDS", 3600)) * time.Second,
		JanitorInterval:    time.Duration(getEnvAsInt("JANITOR_INTERVAL_SECONDS", 60)) * time.Second,
		JanitorOrphanGrace: 5 * time.Minute,
		SignalingIdle:      time.Duration(getEnvAsInt("SIGNALING_IDLE_SECONDS", 60)) * time.Second,

		SessionSecret: getEnv("SESSION_SECRET", ""),
		DataDir:       getEnv("DATA_DIR", "./data"),
	}

	if cfg.BlobBucket == "" {
		return nil, fmt.Errorf("BLOB_BUCKET is required")
	}
	if cfg.SessionSecret == "" && cfg.Env == "production" {
		return nil, fmt.Errorf("SESSION_SECRET is required in production")
	}
	if cfg.RoomTTL > time.Hour {
		return nil, fmt.Errorf("ROOM_TTL_SECONDS must not exceed 3600")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	current := ""
	for _, char := range valueStr {
		if char == ',' {
			if current != "" {
				result = append(result, current)
				current = ""
			}
		} else {
			current += string(char)
		}
	}
	if current != "" {
		result = append(result, current)
	}

	return result
}

// parseRedisAddr extracts host:port from a Redis URL.
// Supports: redis://host:port, host:port, host
func parseRedisAddr(redisURL string) string {
	addr := strings.TrimPrefix(redisURL, "redis://")
	addr = strings.TrimPrefix(addr, "rediss://")
	addr = strings.TrimSuffix(addr, "/")

	if !strings.Contains(addr, ":") {
		addr = addr + ":6379"
	}

	return addr
}
