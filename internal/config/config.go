package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	DBURL          string
	StoreDriver    string // postgres | memory
	MigrateOnStart bool
	DBMaxConns     int
	ActorCacheTTL  time.Duration

	JWTSecret           string
	JWTAlgorithm        string
	JWTAccessTTLMinutes int

	AdminEmail    string
	AdminPassword string
	AdminName     string

	LedgerDriver           string // redis | memory
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	LedgerConnectRetries   int
	LedgerConnectDelay     time.Duration
	LedgerTimeout          time.Duration
	LedgerBreakerThreshold int
	LedgerBreakerCooldown  time.Duration

	OTLPEndpoint    string
	OTelSampleRatio float64

	CORSAllowedOrigins []string
	LoginRatePerMinute int
	MaxBodyBytes       int64
}

// Load reads the environment, after merging a local .env file if one exists.
func Load() Config {
	_ = godotenv.Load() // load .env if present (ok if missing in prod)

	storeDriver := getEnv("STORE_DRIVER", "postgres")

	return Config{
		Env:      getEnv("APP_ENV", "dev"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", ""),

		DBURL:          getEnv("DATABASE_URL", buildDBURL()),
		StoreDriver:    storeDriver,
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 10),
		ActorCacheTTL:  getEnvMillis("ACTOR_CACHE_TTL_MS", defaultActorCacheTTL(storeDriver)),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		JWTAlgorithm:        getEnv("JWT_ALGORITHM", "HS256"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 30),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		LedgerDriver:           getEnv("LEDGER_DRIVER", "redis"),
		RedisAddr:              getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		LedgerConnectRetries:   getEnvInt("LEDGER_CONNECT_RETRIES", 3),
		LedgerConnectDelay:     getEnvMillis("LEDGER_CONNECT_DELAY_MS", 2*time.Second),
		LedgerTimeout:          getEnvMillis("LEDGER_TIMEOUT_MS", 2*time.Second),
		LedgerBreakerThreshold: getEnvInt("LEDGER_BREAKER_THRESHOLD", 3),
		LedgerBreakerCooldown:  getEnvMillis("LEDGER_BREAKER_COOLDOWN_MS", 15*time.Second),

		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
	}
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		if c.Env != "dev" && c.Env != "test" {
			errs = append(errs, errors.New("JWT_SECRET is required"))
		}
	}

	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be postgres or memory"))
	}

	switch c.LedgerDriver {
	case "redis", "memory":
	default:
		errs = append(errs, errors.New("LEDGER_DRIVER must be redis or memory"))
	}

	if c.JWTAccessTTLMinutes <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL_MINUTES must be positive"))
	}

	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

// A postgres store can be shared by several replicas, and a role change on one
// never reaches the others' caches, so the cache is off unless asked for.
func defaultActorCacheTTL(storeDriver string) time.Duration {
	if storeDriver == "memory" {
		return 30 * time.Second
	}
	return 0
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "medledger")
	pass := getEnv("DB_PASSWORD", "medledger")
	name := getEnv("DB_NAME", "medledger")
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

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil {
			return fallback
		}

		return f
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	ms := getEnvInt(key, -1)

	if ms < 0 {
		return fallback
	}

	return time.Duration(ms) * time.Millisecond
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)

	if v == "" {
		return fallback
	}

	out := make([]string, 0)

	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
