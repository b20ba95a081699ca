package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	Admin   AdminConfig
	Limits  LimitsConfig
	Server  ServerConfig
	Ledger  LedgerConfig
	Logging LoggingConfig
}

type AdminConfig struct {
	Username     string
	Password     string
	PasswordHash string
}

type LimitsConfig struct {
	MaxVisitsPerIP int
}

type ServerConfig struct {
	ListenAddr        string
	MetricsAddr       string
	TrustProxyHeaders bool
	GinMode           string
}

type LedgerConfig struct {
	Backend   string
	SQLiteDSN string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present) and the process environment. It fails when a
// required value is missing or does not parse.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	rawMax := cast.ToString(coalesce("MAX_VISITS_PER_IP", ""))
	if rawMax == "" {
		return nil, errors.New("MAX_VISITS_PER_IP is required")
	}
	// Base 10 only, written the way strconv.Itoa would print it.
	maxVisits, err := strconv.Atoi(rawMax)
	if err != nil || strconv.Itoa(maxVisits) != rawMax {
		return nil, fmt.Errorf("MAX_VISITS_PER_IP must be an integer, got %q", rawMax)
	}
	if maxVisits < 0 {
		return nil, fmt.Errorf("MAX_VISITS_PER_IP must not be negative, got %d", maxVisits)
	}

	trustProxy, err := cast.ToBoolE(coalesce("TRUST_PROXY_HEADERS", false))
	if err != nil {
		return nil, fmt.Errorf("TRUST_PROXY_HEADERS: %w", err)
	}

	cfg := &Config{
		Admin: AdminConfig{
			Username:     cast.ToString(coalesce("ADMIN_USERNAME", "")),
			Password:     cast.ToString(coalesce("ADMIN_PASSWORD", "")),
			PasswordHash: cast.ToString(coalesce("ADMIN_PASSWORD_HASH", "")),
		},
		Limits: LimitsConfig{
			MaxVisitsPerIP: maxVisits,
		},
		Server: ServerConfig{
			ListenAddr:        cast.ToString(coalesce("LISTEN_ADDR", ":3000")),
			MetricsAddr:       cast.ToString(coalesce("METRICS_ADDR", "")),
			TrustProxyHeaders: trustProxy,
			GinMode:           cast.ToString(coalesce("GIN_MODE", "release")),
		},
		Ledger: LedgerConfig{
			Backend:   cast.ToString(coalesce("LEDGER_BACKEND", "memory")),
			SQLiteDSN: cast.ToString(coalesce("SQLITE_DSN", ":memory:")),
		},
		Logging: LoggingConfig{
			Level:  cast.ToString(coalesce("LOG_LEVEL", "info")),
			Format: cast.ToString(coalesce("LOG_FORMAT", "json")),
		},
	}

	if cfg.Admin.Username == "" {
		return nil, errors.New("ADMIN_USERNAME is required")
	}
	if cfg.Admin.Password == "" && cfg.Admin.PasswordHash == "" {
		return nil, errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required")
	}
	switch cfg.Ledger.Backend {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND must be memory or sqlite, got %q", cfg.Ledger.Backend)
	}
	switch cfg.Server.GinMode {
	case "debug", "release", "test":
	default:
		return nil, fmt.Errorf("GIN_MODE must be debug, release or test, got %q", cfg.Server.GinMode)
	}
	return cfg, nil
}

func coalesce(key string, value interface{}) interface{} {
	val, exist := os.LookupEnv(key)
	if exist {
		return val
	}
	return value
}
