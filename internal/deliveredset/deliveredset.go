// Package deliveredset persists the set of (team, problem) keys whose balloon
// has been delivered. Backends only need set semantics: load everything once,
// add one key at a time, clear everything.
package deliveredset

import (
	"context"
	"errors"
	"fmt"

	redisclient "github.com/CDeX-Labs/CDeX-Balloon-Service/internal/redis"
	"github.com/rs/zerolog"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var ErrUnknownBackend = errors.New("unknown delivered set backend")

type Backend interface {
	Name() string
	Load(ctx context.Context) ([]string, error)
	Add(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

type Config struct {
	Backend     string
	SQLitePath  string
	DatabaseURL string
	RedisKey    string
}

// Open builds the configured backend. rdb is only used by the redis backend
// and may be nil otherwise.
func Open(ctx context.Context, cfg Config, rdb *redisclient.Client, logger zerolog.Logger) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Backend {
	case "", BackendMemory:
		backend = NewMemory()
	case BackendRedis:
		if rdb == nil {
			return nil, errors.New("redis backend requires a redis client")
		}
		backend = NewRedis(rdb, cfg.RedisKey)
	case BackendSQLite:
		backend, err = NewSQLite(ctx, cfg.SQLitePath)
	case BackendPostgres:
		backend, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().Str("backend", backend.Name()).Msg("Delivered set ready")
	return backend, nil
}
