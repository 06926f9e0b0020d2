// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// BlobBackend はドキュメントの保存先を表す。
const (
	BlobBackendInline = "inline"
	BlobBackendGCS    = "gcs"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	GoogleCloudProject string
	LogLevel           string
	MigrationsDir      string
	AutoMigrate        bool

	// ドキュメント保存先
	BlobBackend      string
	GCSBucket        string
	GCSPublicBaseURL string
	UploadTimeout    time.Duration

	// 検証結果のキャッシュ（REDIS_URL未設定なら無効）
	RedisURL string
	CacheTTL time.Duration

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "./migrations"),
		AutoMigrate:        getBool("AUTO_MIGRATE", false),
		BlobBackend:        getEnv("BLOB_BACKEND", BlobBackendInline),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSPublicBaseURL:   getEnv("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
		UploadTimeout:      getDuration("UPLOAD_TIMEOUT", 30*time.Second),
		RedisURL:           os.Getenv("REDIS_URL"),
		CacheTTL:           getDuration("CACHE_TTL", 24*time.Hour),
		OtelEnabled:        getBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "certificate-service"),
		OtelSamplingRate:   getFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
