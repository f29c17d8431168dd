package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env   string
	Port  int
	DBURL string

	// Identity
	JWTSecret           string
	JWTAccessTTLMinutes int

	// Optional bootstrap admin (skipped when email or password is empty)
	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	// HTTP limits
	MaxBodyBytes     int64
	AllowedOrigins   []string
	RateLimitGeneral int
	RateLimitAuth    int
	RateLimitWindow  time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Event policy knobs
	ConflictWindow time.Duration
	MinEventLead   time.Duration
	MaxEventLead   time.Duration
	CapacityMin    int
	CapacityMax    int

	// Listing cache
	CacheTTL time.Duration

	// Observability
	LogLevel     string
	OTLPEndpoint string

	// Retention sweeper
	SweepInterval time.Duration
	WorkerPort    int
}

func Load() Config {
	// .env is optional; deployments rely on real environment variables.
	_ = godotenv.Load()

	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		JWTSecret:           getEnv("JWT_SECRET", "dev-only-secret"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 60),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		MaxBodyBytes:     getEnvInt64("MAX_BODY_BYTES", 10<<20),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "")),
		RateLimitGeneral: getEnvInt("RATE_LIMIT_GENERAL", 100),
		RateLimitAuth:    getEnvInt("RATE_LIMIT_AUTH", 10),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		ConflictWindow: getEnvDuration("SCHEDULE_CONFLICT_WINDOW", time.Hour),
		MinEventLead:   getEnvDuration("MIN_EVENT_LEAD", time.Hour),
		MaxEventLead:   getEnvDuration("MAX_EVENT_LEAD", 365*24*time.Hour),
		CapacityMin:    getEnvInt("CAPACITY_MIN", 1),
		CapacityMax:    getEnvInt("CAPACITY_MAX", 10000),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Second),

		LogLevel:     getEnv("LOG_LEVEL", ""),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Hour),
		WorkerPort:    getEnvInt("WORKER_PORT", 9091),
	}
}

func buildDBURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "evently")
	pass := getEnv("DB_PASSWORD", "evently")
	name := getEnv("DB_NAME", "evently")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.ParseInt(v, 10, 64)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil || d <= 0 {
			return fallback
		}

		return d
	}
	return fallback
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
