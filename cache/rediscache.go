// Package cache provides an optional shared cache for decoded MDX
// definitions, so that repeated lookups against the same record offset
// across processes do not each pay the decompression cost.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is not present.
var ErrMiss = errors.New("mdict/cache: miss")

// DefinitionCache wraps a *redis.Client keyed by dictionary id and record
// offset. It is optional: a Reader with none configured simply always
// takes the record-block decode path.
type DefinitionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// Options configures a DefinitionCache.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New dials Redis and verifies the connection with a PING.
func New(opts Options) (*DefinitionCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("mdict/cache: ping: %w", err)
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &DefinitionCache{rdb: rdb, ttl: ttl}, nil
}

func definitionKey(dictID string, recordOffset uint32) string {
	return fmt.Sprintf("mdx:%s:%d", dictID, recordOffset)
}

// Get returns the cached definition text for (dictID, recordOffset), or
// ErrMiss if absent.
func (c *DefinitionCache) Get(ctx context.Context, dictID string, recordOffset uint32) (string, error) {
	val, err := c.rdb.Get(ctx, definitionKey(dictID, recordOffset)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("mdict/cache: get: %w", err)
	}
	return val, nil
}

// Set stores text for (dictID, recordOffset) under the cache's TTL.
func (c *DefinitionCache) Set(ctx context.Context, dictID string, recordOffset uint32, text string) error {
	if err := c.rdb.Set(ctx, definitionKey(dictID, recordOffset), text, c.ttl).Err(); err != nil {
		return fmt.Errorf("mdict/cache: set: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *DefinitionCache) Close() error {
	return c.rdb.Close()
}
