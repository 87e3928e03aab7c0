package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"remit/internal/ledger/models"
	"remit/pkg/domain"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	ShutdownTimeout time.Duration
	LogLevel        string

	Ledger    Ledger
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	RateLimit RateLimit
}

// Ledger holds the values used to bootstrap a fresh ledger. An existing
// persisted ledger keeps its own config.
type Ledger struct {
	Owner        domain.AccountID
	FeeCollector domain.AccountID
	FeeRateBps   uint16
	MaxBatch     int
}

// Database selects the SQL backend. An empty URL keeps state in memory.
type Database struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig configures the idempotency cache. An empty URL falls back to
// the in-process store. KeyPrefix namespaces every key the ledger writes.
type RedisConfig struct {
	URL            string
	KeyPrefix      string
	PoolSize       int
	MinIdleConns   int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdempotencyTTL time.Duration
}

// Kafka enables forwarding of ledger events. No brokers disables it.
type Kafka struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
}

// RateLimit caps requests per caller on the ledger API. A non-positive
// Requests disables it.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	owner, err := accountEnv("LEDGER_OWNER")
	if err != nil {
		return Server{}, err
	}
	collector, err := accountEnv("LEDGER_FEE_COLLECTOR")
	if err != nil {
		return Server{}, err
	}
	feeRate, err := intEnv("LEDGER_FEE_RATE_BPS", int(models.DefaultFeeRateBps))
	if err != nil {
		return Server{}, err
	}
	if feeRate < 0 || feeRate > int(models.MaxFeeRateBps) {
		return Server{}, fmt.Errorf("LEDGER_FEE_RATE_BPS: %d out of range", feeRate)
	}
	maxBatch, err := intEnv("LEDGER_MAX_BATCH", 10000)
	if err != nil {
		return Server{}, err
	}
	rateLimit, err := intEnv("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return Server{}, err
	}
	maxOpenConns, err := intEnv("DATABASE_MAX_OPEN_CONNS", 10)
	if err != nil {
		return Server{}, err
	}
	poolSize, err := intEnv("REDIS_POOL_SIZE", 10)
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Addr:            stringEnv("REMIT_ADDR", ":8080"),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		JWTSigningKey:   stringEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:       stringEnv("JWT_ISSUER", "remit-auth"),
		JWTAudience:     stringEnv("JWT_AUDIENCE", "remit-ledger"),
		ShutdownTimeout: durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        stringEnv("LOG_LEVEL", "info"),
		Ledger: Ledger{
			Owner:        owner,
			FeeCollector: collector,
			FeeRateBps:   uint16(feeRate), //nolint:gosec // range checked above
			MaxBatch:     maxBatch,
		},
		Database: Database{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: maxOpenConns,
		},
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			KeyPrefix:      stringEnv("REDIS_KEY_PREFIX", "remit"),
			PoolSize:       poolSize,
			MinIdleConns:   2,
			DialTimeout:    durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:    durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:   durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			IdempotencyTTL: durationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Kafka: Kafka{
			Brokers:      listEnv("KAFKA_BROKERS"),
			Topic:        stringEnv("KAFKA_EVENTS_TOPIC", "ledger.events"),
			PollInterval: durationEnv("KAFKA_POLL_INTERVAL", time.Second),
		},
		RateLimit: RateLimit{
			Requests: rateLimit,
			Window:   durationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
	return cfg, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// durationEnv ignores malformed values.
func durationEnv(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func listEnv(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func accountEnv(key string) (domain.AccountID, error) {
	v := os.Getenv(key)
	if v == "" {
		return domain.AccountID{}, fmt.Errorf("%s is required", key)
	}
	a, err := domain.ParseAccountID(v)
	if err != nil {
		return domain.AccountID{}, fmt.Errorf("%s: %w", key, err)
	}
	return a, nil
}
