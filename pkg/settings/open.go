package settings

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string
	Path     string
	RedisURL string
}

// Open creates the store described by cfg. An empty backend means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return OpenFileStore(cfg.Path)
	case BackendSQLite:
		return OpenSQLiteStore(cfg.Path)
	case BackendRedis:
		return OpenRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("settings: unknown backend %q", cfg.Backend)
	}
}
