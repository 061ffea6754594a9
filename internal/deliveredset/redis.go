package deliveredset

import (
	"context"
	"fmt"

	redisclient "github.com/CDeX-Labs/CDeX-Balloon-Service/internal/redis"
)

const DefaultRedisKey = "balloons:delivered"

// Redis stores the keys as members of a single redis set.
type Redis struct {
	client *redisclient.Client
	key    string
}

func NewRedis(client *redisclient.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Name() string { return BackendRedis }

func (r *Redis) Load(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.key, err)
	}
	return members, nil
}

func (r *Redis) Add(ctx context.Context, key string) error {
	return r.client.SAdd(ctx, r.key, key)
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key)
}

// Close is a no-op; the client is shared and closed by its owner.
func (r *Redis) Close() error { return nil }
