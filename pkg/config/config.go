package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 汇总服务运行所需的环境变量配置。
type Config struct {
	ExporterPort     string
	AccessLogPath    string
	RoutePrefixes    []string
	MetricsNamespace string

	ResponseTimeoutSeconds float64
	MaxTrackedUsers        int
	ActivityWindow         time.Duration
	UpdateInterval         time.Duration

	DatabaseDSN   string
	RedisAddr     string
	RedisChannel  string
	RedisCacheKey string
	RedisCacheTTL time.Duration

	AdminUsername    string
	AdminPassword    string
	AdminTokenSecret string
	AdminTokenTTL    time.Duration
	AdminCORSOrigins []string
}

const (
	defaultExporterPort    = "9114"
	defaultAccessLogPath   = "-"
	defaultRoutePrefixes   = "/server1,/server2"
	defaultNamespace       = "nginx"
	defaultRedisChannel    = "routes:sync"
	defaultRedisCacheKey   = "routes:cache"
	defaultResponseTimeout = 600.0
)

// Load 从环境变量解析配置，工作目录存在 .env 时先行加载。
func Load() Config {
	// .env 缺失时静默跳过。
	_ = godotenv.Load()

	cfg := Config{
		ExporterPort:     lookupEnvOrDefault("EXPORTER_PORT", defaultExporterPort),
		AccessLogPath:    lookupEnvOrDefault("ACCESS_LOG_PATH", defaultAccessLogPath),
		MetricsNamespace: lookupEnvOrDefault("METRICS_NAMESPACE", defaultNamespace),
		DatabaseDSN:      os.Getenv("DATABASE_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisChannel:     lookupEnvOrDefault("REDIS_CHANNEL", defaultRedisChannel),
		RedisCacheKey:    lookupEnvOrDefault("REDIS_CACHE_KEY", defaultRedisCacheKey),
		AdminUsername:    os.Getenv("ADMIN_USERNAME"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		AdminTokenSecret: os.Getenv("ADMIN_TOKEN_SECRET"),

		ResponseTimeoutSeconds: defaultResponseTimeout,
		ActivityWindow:         60 * time.Second,
		UpdateInterval:         5 * time.Second,
		AdminTokenTTL:          30 * time.Minute,
	}

	cfg.RoutePrefixes = splitPrefixes(lookupEnvOrDefault("ROUTE_PREFIXES", defaultRoutePrefixes))
	cfg.AdminCORSOrigins = splitPrefixes(os.Getenv("ADMIN_CORS_ORIGINS"))

	if raw := os.Getenv("RESPONSE_TIMEOUT_SECONDS"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			cfg.ResponseTimeoutSeconds = parsed
		} else {
			log.Printf("warning: RESPONSE_TIMEOUT_SECONDS %q 无法解析，使用默认值", raw)
		}
	}
	if raw := os.Getenv("MAX_TRACKED_USERS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			cfg.MaxTrackedUsers = parsed
		} else {
			log.Printf("warning: MAX_TRACKED_USERS %q 无法解析，使用默认值", raw)
		}
	}
	cfg.ActivityWindow = durationEnv("ACTIVITY_WINDOW", cfg.ActivityWindow)
	cfg.UpdateInterval = durationEnv("UPDATE_INTERVAL", cfg.UpdateInterval)
	cfg.RedisCacheTTL = durationEnv("REDIS_CACHE_TTL", 0)
	cfg.AdminTokenTTL = durationEnv("ADMIN_TOKEN_TTL", cfg.AdminTokenTTL)

	if cfg.DatabaseDSN == "" {
		log.Println("warning: DATABASE_DSN 未设置，路由表仅保存在内存中")
	}
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		log.Println("warning: 管理端未配置 ADMIN_USERNAME/ADMIN_PASSWORD，将默认允许匿名访问")
	}
	if cfg.AdminTokenSecret == "" {
		log.Println("warning: 管理端未配置 ADMIN_TOKEN_SECRET，将无法签发 JWT Access Token")
	}
	return cfg
}

// durationEnv 支持 Go duration 字面量或纯秒数两种写法。
func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	log.Printf("warning: %s %q 无法解析，使用默认值", key, raw)
	return fallback
}

func splitPrefixes(raw string) []string {
	parts := strings.Split(raw, ",")
	prefixes := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefixes = append(prefixes, part)
	}
	return prefixes
}

func lookupEnvOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
