// Package config loads service settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory      = "memory"
	BackendRedis       = "redis"
	BackendTokenBucket = "token_bucket"
)

var (
	ErrInvalidDriver  = errors.New("unsupported DB_DRIVER")
	ErrInvalidBackend = errors.New("unsupported RATE_LIMIT_BACKEND")
	ErrMissingDSN     = errors.New("DATABASE_URL must be set")
	ErrInvalidPort    = errors.New("SERVER_PORT must be between 1 and 65535")
)

type Config struct {
	ServerPort      int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DBDriver       string
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	ProjectName string
	Version     string
	APIV1Str    string

	CORSOrigins      []string
	AllowCredentials bool
	CORSMaxAge       int

	RateLimitEnabled   bool
	RateLimitBackend   string
	RateLimitKeyPrefix string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	TrustProxyHeaders  bool

	LogLevel  string
	LogFormat string
}

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8000",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:8000",
	"http://127.0.0.1:8080",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8000)
	v.SetDefault("REQUEST_TIMEOUT", 5*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("PROJECT_NAME", "Task Management API")
	v.SetDefault("VERSION", "1.0.0")
	v.SetDefault("API_V1_STR", "/api/v1")
	v.SetDefault("BACKEND_CORS_ORIGINS", strings.Join(defaultCORSOrigins, ","))
	v.SetDefault("ALLOW_CREDENTIALS", true)
	v.SetDefault("CORS_MAX_AGE", 600)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_BACKEND", BackendMemory)
	v.SetDefault("RATE_LIMIT_KEY_PREFIX", "ratelimit:")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads the given .env files into the process environment (a missing
// file is skipped; variables already set win) and builds a Config from it.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		ServerPort:      v.GetInt("SERVER_PORT"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),

		DBDriver:       strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		DBMaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),

		ProjectName: v.GetString("PROJECT_NAME"),
		Version:     v.GetString("VERSION"),
		APIV1Str:    strings.TrimSuffix(v.GetString("API_V1_STR"), "/"),

		CORSOrigins:      splitList(v.GetString("BACKEND_CORS_ORIGINS")),
		AllowCredentials: v.GetBool("ALLOW_CREDENTIALS"),
		CORSMaxAge:       v.GetInt("CORS_MAX_AGE"),

		RateLimitEnabled:   v.GetBool("RATE_LIMIT_ENABLED"),
		RateLimitBackend:   strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
		RateLimitKeyPrefix: v.GetString("RATE_LIMIT_KEY_PREFIX"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		TrustProxyHeaders:  v.GetBool("TRUST_PROXY_HEADERS"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
	if cfg.DBDriver == "sqlite3" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "file:tasks.db?_foreign_keys=on"
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidPort, c.ServerPort))
	}
	switch c.DBDriver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidDriver, c.DBDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDSN)
	}
	switch c.RateLimitBackend {
	case BackendMemory, BackendRedis, BackendTokenBucket:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidBackend, c.RateLimitBackend))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
