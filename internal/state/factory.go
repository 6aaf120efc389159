package state

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/config"
)

const connectTimeout = 5 * time.Second

// NewStore creates a state store based on the configuration.
//
// Backend options:
// - "local": JSON file at cfg.Path (default)
// - "memory": in-process store, lost on exit
// - "redis": Redis-compatible store at cfg.RedisURL
// - "postgres": table in the database at cfg.DatabaseURL
func NewStore(ctx context.Context, cfg *config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path is required for local state backend")
		}
		log.Debug().Str("path", cfg.Path).Msg("Using local state store")
		return NewLocalStore(cfg.Path), nil

	case "memory":
		log.Debug().Msg("Using in-memory state store")
		return NewMemoryStore(), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis state backend")
		}
		store, err := NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database_url is required for postgres state backend")
		}
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown state backend: %s (valid options: local, memory, redis, postgres)", cfg.Backend)
	}
}
