package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort        string
	JWTSecret       string
	TokenExpiration time.Duration

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	Postgres    PostgresConfig

	// RedisAddr enables the cross-replica send lock when set.
	RedisAddr string

	Gateway   GatewayConfig
	RateLimit RateLimitConfig

	CORSAllowedOrigins []string

	Logging LoggingConfig

	// DotEnvLoaded reports whether a .env file was found. The logger does not
	// exist yet when config loads, so main reports it.
	DotEnvLoaded bool
}

type PostgresConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	ProfilePath   string
	StreamTimeout time.Duration
	IdleTimeout   time.Duration
}

// RateLimitConfig bounds send requests per user. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	loaded, err := loadDotEnv()
	if err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []error

	tokenExpHours, err := parsePositiveInt("JWT_EXPIRATION_HOURS", 24)
	errs = appendErr(errs, err)

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenExpiration: time.Hour * time.Duration(tokenExpHours),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", "wolf.db"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		Gateway: GatewayConfig{
			BaseURL:     strings.TrimRight(getEnv("GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"), "/"),
			APIKey:      getEnv("GATEWAY_API_KEY", ""),
			Model:       getEnv("GATEWAY_MODEL", ""),
			ProfilePath: getEnv("GATEWAY_PROFILE", ""),
		},
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_ENCODING", "json"),
			ServiceName: getEnv("SERVICE_NAME", "wolf-backend"),
		},
		DotEnvLoaded: loaded,
	}

	cfg.Gateway.StreamTimeout, err = parseDuration("GATEWAY_STREAM_TIMEOUT", 5*time.Minute)
	errs = appendErr(errs, err)
	cfg.Gateway.IdleTimeout, err = parseDuration("GATEWAY_IDLE_TIMEOUT", 60*time.Second)
	errs = appendErr(errs, err)

	maxConns, err := parsePositiveInt("POSTGRES_MAX_CONNS", 10)
	errs = appendErr(errs, err)
	minConns, err := parsePositiveInt("POSTGRES_MIN_CONNS", 1)
	errs = appendErr(errs, err)
	cfg.Postgres = PostgresConfig{
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
	cfg.Postgres.ConnectTimeout, err = parseDuration("POSTGRES_CONNECT_TIMEOUT", 10*time.Second)
	errs = appendErr(errs, err)

	cfg.RateLimit.RPS, err = parseFloat("RATE_LIMIT_RPS", 1)
	errs = appendErr(errs, err)
	cfg.RateLimit.Burst, err = parsePositiveInt("RATE_LIMIT_BURST", 5)
	errs = appendErr(errs, err)

	cfg.Logging.Development, err = parseBool("LOG_DEVELOPMENT", false)
	errs = appendErr(errs, err)
	cfg.Logging.EnableCaller, err = parseBool("LOG_CALLER", true)
	errs = appendErr(errs, err)

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is not set"))
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL environment variable is not set"))
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverSQLite, c.StoreDriver))
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		errs = append(errs, fmt.Errorf("POSTGRES_MIN_CONNS (%d) exceeds POSTGRES_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns))
	}
	return errs
}

func loadDotEnv() (bool, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			// missing .env is fine; production supplies real environment variables
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parsePositiveInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return value, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a number, got %q", key, raw)
	}
	return value, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return value, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
