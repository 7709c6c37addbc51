package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Empty RedisAddr keeps idempotency keys in process memory.
	RedisAddr            string
	IdempotencyTTL       time.Duration
	IdempotencyCacheSize int

	// Empty OTLPEndpoint disables trace and metric export.
	OTLPEndpoint string
	ServiceName  string
	LogLevel     string

	ShutdownTimeout time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory, if present, is loaded first without overriding
// variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	cfg := &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:             getEnv("GRPC_ADDR", ":50051"),
		DBDriver:             getEnv("DB_DRIVER", DriverMySQL),
		DBDSN:                getEnv("DB_DSN", "root:root@tcp(localhost:3306)/stockledger?parseTime=true"),
		DBMaxOpenConns:       getInt("DB_MAX_OPEN_CONNS", 50, &errs),
		DBMaxIdleConns:       getInt("DB_MAX_IDLE_CONNS", 25, &errs),
		DBConnMaxLifetime:    getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute, &errs),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		IdempotencyTTL:       getDuration("IDEMPOTENCY_TTL", 24*time.Hour, &errs),
		IdempotencyCacheSize: getInt("IDEMPOTENCY_CACHE_SIZE", 10000, &errs),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:          getEnv("SERVICE_NAME", "stock-ledger"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout:      getDuration("SHUTDOWN_TIMEOUT", 5*time.Second, &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be one of mysql, postgres, sqlite: got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if c.DBMaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive: got %d", c.DBMaxOpenConns)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive: got %s", c.IdempotencyTTL)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
