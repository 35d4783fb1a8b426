package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/measures"
)

// RedisConfig configures the Redis cache.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string `yaml:"address"`

	// Password for Redis authentication (optional)
	Password string `yaml:"password"`

	// Database number to use (default: 0)
	Database int `yaml:"database"`

	// Prefix is prepended to all keys
	Prefix string `yaml:"prefix"`

	// TTL is the time-to-live for cached results (0 = no expiration)
	TTL time.Duration `yaml:"ttl"`

	// Timeout for Redis operations
	Timeout time.Duration `yaml:"timeout"`

	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "rpaflow:measures:",
		TTL:          24 * time.Hour,
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisCache stores encoded measure results in Redis.
type RedisCache struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisCache connects to Redis and checks the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.CodeCache, "connecting to redis").WithContext("address", cfg.Address)
	}
	return &RedisCache{cfg: cfg, client: client}, nil
}

func (c *RedisCache) key(k string) string {
	return c.cfg.Prefix + k
}

// Get loads a result. redis.Nil is a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*measures.Result, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, errors.CodeCache, "loading cached result").WithContext("key", key)
	}
	res, err := decode(data)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeCache, "decoding cached result").WithContext("key", key)
	}
	return res, true, nil
}

// Set stores a result with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, res *measures.Result) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	data, err := encode(res)
	if err != nil {
		return errors.Wrap(err, errors.CodeCache, "encoding result")
	}
	if err := c.client.Set(ctx, c.key(key), data, c.cfg.TTL).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCache, "storing result").WithContext("key", key)
	}
	return nil
}

// Invalidate scans for the digest's keys and deletes them in one pipeline.
func (c *RedisCache) Invalidate(ctx context.Context, digest string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var keys []string
	iter := c.client.Scan(ctx, 0, c.key(digest)+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, errors.CodeCache, "scanning keys")
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeCache, "deleting keys")
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
