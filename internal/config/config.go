package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	devJWTSecret = "dev-secret"
)

type Config struct {
	Port            string
	StoreDriver     string
	MySQLDSN        string
	PostgresDSN     string
	MongoURI        string
	MongoDB         string
	JWTSecret       string
	JWTTTL          time.Duration
	LogLevel        string
	RedisURL        string
	IdempotencyTTL  time.Duration
	ShippingFlat    float64
	TaxRate         float64
	ShutdownTimeout time.Duration
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Port:            getEnvOrDefault("APP_PORT", "8080"),
		StoreDriver:     strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverMemory)),
		MySQLDSN:        getEnvOrDefault("MYSQL_DSN", ""),
		PostgresDSN:     getEnvOrDefault("PG_DSN", ""),
		MongoURI:        getEnvOrDefault("MONGO_URI", ""),
		MongoDB:         getEnvOrDefault("MONGO_DB", "shopcore"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", ""),
		JWTTTL:          getDurationEnv("JWT_TTL_MINUTES", 60, time.Minute),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		RedisURL:        getEnvOrDefault("REDIS_URL", ""),
		IdempotencyTTL:  getDurationEnv("IDEMPOTENCY_TTL_HOURS", 24, time.Hour),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT_SECONDS", 10, time.Second),
	}

	var err error
	if cfg.ShippingFlat, err = getFloatEnv("SHIPPING_FLAT"); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate, err = getFloatEnv("TAX_RATE"); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" && cfg.StoreDriver == DriverMemory {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverMySQL:
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for the mysql driver"))
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("PG_DSN is required for the postgres driver"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TaxRate < 0 || c.ShippingFlat < 0 {
		errs = append(errs, errors.New("SHIPPING_FLAT and TAX_RATE must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getFloatEnv(key string) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
