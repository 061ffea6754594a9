package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OpObserver is notified after every command with its outcome.
type OpObserver interface {
	IncRedisOperation(operation, status string)
}

type Client struct {
	rdb      *redis.Client
	observer OpObserver
	logger   zerolog.Logger
}

type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (o Options) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

func NewClient(ctx context.Context, opts Options, observer OpObserver, logger zerolog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", opts.Addr()).Msg("Connected to Redis")

	return &Client{
		rdb:      rdb,
		observer: observer,
		logger:   logger.With().Str("component", "redis").Logger(),
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) observe(op string, err error) error {
	if c.observer != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.observer.IncRedisOperation(op, status)
	}
	return err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.observe("del", c.rdb.Del(ctx, keys...).Err())
}

func (c *Client) HSet(ctx context.Context, key string, field string, value interface{}) error {
	return c.observe("hset", c.rdb.HSet(ctx, key, field, value).Err())
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	return c.observe("hdel", c.rdb.HDel(ctx, key, fields...).Err())
}

func (c *Client) HLen(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.HLen(ctx, key).Result()
	return n, c.observe("hlen", err)
}

func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return c.observe("sadd", c.rdb.SAdd(ctx, key, members...).Err())
}

func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) error {
	return c.observe("srem", c.rdb.SRem(ctx, key, members...).Err())
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	return members, c.observe("smembers", err)
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.observe("expire", c.rdb.Expire(ctx, key, expiration).Err())
}

func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.observe("publish", c.rdb.Publish(ctx, channel, message).Err())
}

func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}
