package ledgerd

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultDatabaseURL     = "sqlite:///tmp/cipherledger.db"
	defaultShutdownTimeout = 5 * time.Second

	// StoreEngineGorm persists through GORM on SQLite or PostgreSQL.
	StoreEngineGorm = "gorm"
	// StoreEnginePgx persists through a pgx pool on PostgreSQL only.
	StoreEnginePgx = "pgx"
)

// ErrInvalidConfig reports a configuration that cannot start the server.
var ErrInvalidConfig = errors.New("invalid config")

// Config aggregates runtime settings for ledgerd.
type Config struct {
	ListenAddr        string
	DatabaseURL       string
	StoreEngine       string
	AllowedOrigins    []string
	FieldKey          string
	TransportIdentity string
	MaskStoreFailures bool
	ShutdownTimeout   time.Duration
}

// Validate applies defaults and rejects unusable combinations.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreEngine = strings.ToLower(defaultIfEmpty(cfg.StoreEngine, StoreEngineGorm))
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	target, err := parseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch cfg.StoreEngine {
	case StoreEngineGorm:
	case StoreEnginePgx:
		if !target.postgres {
			return fmt.Errorf("%w: store engine %q requires a postgres database url", ErrInvalidConfig, StoreEnginePgx)
		}
	default:
		return fmt.Errorf("%w: unknown store engine %q", ErrInvalidConfig, cfg.StoreEngine)
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
