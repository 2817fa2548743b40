package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"DealScanner/internal/ports"
)

const keyPrefix = "dealscanner:shortlink:"

// Config holds the Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// ShortlinkCache stores minted shortlinks in Redis.
type ShortlinkCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ ports.ShortlinkCache = (*ShortlinkCache)(nil)

// Connect opens a client and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*ShortlinkCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Address, err)
	}
	return New(rdb, cfg.TTL), nil
}

// New wraps an existing client. ttl<=0 keeps entries forever.
func New(rdb *redis.Client, ttl time.Duration) *ShortlinkCache {
	return &ShortlinkCache{rdb: rdb, ttl: ttl}
}

func key(platform, longURL string) string {
	sum := sha256.Sum256([]byte(longURL))
	return keyPrefix + platform + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached shortlink. ok is false on a miss.
func (c *ShortlinkCache) Get(ctx context.Context, platform, longURL string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key(platform, longURL)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set stores a shortlink for longURL.
func (c *ShortlinkCache) Set(ctx context.Context, platform, longURL, shortURL string) error {
	if err := c.rdb.Set(ctx, key(platform, longURL), shortURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *ShortlinkCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *ShortlinkCache) Close() error {
	return c.rdb.Close()
}
