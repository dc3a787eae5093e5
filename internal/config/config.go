package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode は設定を読み込むコマンドの種別を表す。
// コマンドごとに必須の環境変数が異なる。
type Mode string

const (
	// ModeBackend はバックエンドAPI・ワーカー・マイグレーション用の設定。
	ModeBackend Mode = "backend"
	// ModeLanding はランディングページサーバー用の設定。
	ModeLanding Mode = "landing"
)

// 割り当て永続化の種別
const (
	AssignmentStoreCookie = "cookie"
	AssignmentStoreRedis  = "redis"
)

// グループID解決方式
const (
	GroupResolutionStatic = "static"
	GroupResolutionLookup = "lookup"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Backend
	BackendURL      string
	ReporterTimeout time.Duration

	// Experiment
	ExperimentName         string
	SplitRatio             float64
	AssignmentStore        string
	RedisURL               string
	GroupResolution        string
	PlaceholderEmailDomain string
	CatalogPath            string

	// Worker
	StatsInterval time.Duration

	// Rate Limit
	RateLimitPerMinute int

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	LandingPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// modeに応じた必須環境変数が未設定の場合はエラーを返す。
func Load(mode Mode) (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.BackendURL = strings.TrimRight(os.Getenv("BACKEND_URL"), "/")
	cfg.BaseURL = os.Getenv("BASE_URL")

	switch mode {
	case ModeLanding:
		if cfg.BackendURL == "" {
			missing = append(missing, "BACKEND_URL")
		}
		if cfg.BaseURL == "" {
			missing = append(missing, "BASE_URL")
		}
	default:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ReporterTimeout = getEnvDuration("REPORTER_TIMEOUT", 10*time.Second)
	cfg.ExperimentName = getEnvString("EXPERIMENT_NAME", "comet_promo_test")
	cfg.SplitRatio = getEnvFloat("SPLIT_RATIO", 0.5)
	cfg.AssignmentStore = getEnvString("ASSIGNMENT_STORE", AssignmentStoreCookie)
	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.GroupResolution = getEnvString("GROUP_RESOLUTION", GroupResolutionStatic)
	cfg.PlaceholderEmailDomain = getEnvString("PLACEHOLDER_EMAIL_DOMAIN", "example.com")
	cfg.CatalogPath = getEnvString("CATALOG_PATH", "")
	cfg.StatsInterval = getEnvDuration("STATS_INTERVAL", time.Minute)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LandingPort = getEnvString("LANDING_PORT", "3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は列挙値と範囲を持つ設定値を検証する。
func (c *Config) validate() error {
	if c.SplitRatio <= 0 || c.SplitRatio >= 1 {
		return fmt.Errorf("SPLIT_RATIO must be in (0,1), got %v", c.SplitRatio)
	}
	switch c.AssignmentStore {
	case AssignmentStoreCookie, AssignmentStoreRedis:
	default:
		return fmt.Errorf("ASSIGNMENT_STORE must be %q or %q, got %q",
			AssignmentStoreCookie, AssignmentStoreRedis, c.AssignmentStore)
	}
	switch c.GroupResolution {
	case GroupResolutionStatic, GroupResolutionLookup:
	default:
		return fmt.Errorf("GROUP_RESOLUTION must be %q or %q, got %q",
			GroupResolutionStatic, GroupResolutionLookup, c.GroupResolution)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	return nil
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
