package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 永続化バックエンドの種別。
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// Storage
	StorageBackend   string
	StorageKeyPrefix string
	SQLitePath       string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Webhook
	WebhookURL          string
	WebhookTimeout      time.Duration
	WebhookAIModel      string
	WebhookAllowPrivate bool

	// Upstream
	KotaroUpstreamURL string
	KotaroTimeout     time.Duration
	AnalyzerURL       string
	AnalyzerTimeout   time.Duration
	MaxUploadSize     int64

	// Status refresh
	StatusRefreshInterval time.Duration

	// Rate Limit (req/min)
	RateLimitGeneral  int
	RateLimitUpstream int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 選択したバックエンドに必要な環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	cfg.StorageBackend = strings.ToLower(getEnvString("STORAGE_BACKEND", StorageSQLite))
	cfg.StorageKeyPrefix = getEnvString("STORAGE_KEY_PREFIX", "boothpost:")
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "./data/boothpost.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)

	var missing []string
	switch cfg.StorageBackend {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StorageRedis:
		if cfg.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %q (allowed: memory, sqlite, postgres, redis)", cfg.StorageBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.WebhookURL = getEnvString("WEBHOOK_URL", "")
	cfg.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 15*time.Second)
	cfg.WebhookAIModel = getEnvString("WEBHOOK_AI_MODEL", "gemini")
	cfg.WebhookAllowPrivate = getEnvBool("WEBHOOK_ALLOW_PRIVATE", false)

	cfg.KotaroUpstreamURL = getEnvString("KOTARO_UPSTREAM_URL", "")
	cfg.KotaroTimeout = getEnvDuration("KOTARO_TIMEOUT", 60*time.Second)
	cfg.AnalyzerURL = getEnvString("ANALYZER_URL", "")
	cfg.AnalyzerTimeout = getEnvDuration("ANALYZER_TIMEOUT", 30*time.Second)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 20971520)

	cfg.StatusRefreshInterval = getEnvDuration("STATUS_REFRESH_INTERVAL", 60*time.Second)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 240)
	cfg.RateLimitUpstream = getEnvInt("RATE_LIMIT_UPSTREAM", 20)

	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
