// Package rediscache keeps recent analyses in Redis as JSON.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"instalytics/internal/core/domain"
	"instalytics/internal/logger"
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout is the timeout for verifying Redis connection.
const connectionTimeout = 5 * time.Second

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string
	DB       int
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Cache stores AnalysisResult values under "<prefix>analysis:<username>".
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

// New creates a cache. Entries expire after ttl.
func New(client *redis.Client, prefix string, ttl time.Duration, log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNop()
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: log}
}

// Key returns the Redis key of username.
func (c *Cache) Key(username string) string {
	return c.prefix + "analysis:" + username
}

// Get returns the cached analysis of username, or nil on a miss.
// An entry that no longer decodes is dropped and reported as a miss.
func (c *Cache) Get(ctx context.Context, username string) (*domain.AnalysisResult, error) {
	key := c.Key(username)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", logger.String("key", key), logger.Error(err))
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("delete %s: %w", key, delErr)
		}
		return nil, nil
	}
	return &result, nil
}

// Set caches result under its profile username. A non-positive ttl uses the cache
// default; nothing is stored when that is not positive either.
func (c *Cache) Set(ctx context.Context, result *domain.AnalysisResult, ttl time.Duration) error {
	if result == nil {
		return errors.New("nil analysis result")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	key := c.Key(result.Profile.Username)
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete evicts the cached analysis of username.
func (c *Cache) Delete(ctx context.Context, username string) error {
	key := c.Key(username)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
