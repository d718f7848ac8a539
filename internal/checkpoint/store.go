// Package checkpoint persists, per game, the id of the last event that was
// folded into state. It is the only client state that outlives a restart.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("checkpoint not found")
var ErrUnknownBackend = errors.New("unknown checkpoint backend")

// Store is a durable gameID -> last event id map. Set overwrites.
type Store interface {
	Get(ctx context.Context, gameID string) (string, error)
	Set(ctx context.Context, gameID, eventID string) error
	Close() error
}

const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Backend   string
	Path      string // bolt file
	DSN       string // postgres
	RedisAddr string
}

// Open builds the store named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBolt:
		return OpenBolt(cfg.Path)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func validate(gameID string) error {
	if strings.TrimSpace(gameID) == "" {
		return fmt.Errorf("game id is required")
	}
	return nil
}
