package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/choir/tools/web_fetch/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "web_fetch:page:"

// Store caches fetched pages by URL. It holds tool output only; completion
// provider replies are never cached.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client for the page cache.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewStore wraps client with a per-entry ttl.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(url string) string {
	sum := sha1.Sum([]byte(url))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached page, or ok=false on a miss.
func (s *Store) Get(ctx context.Context, url string) (models.Result, bool, error) {
	raw, err := s.client.Get(ctx, key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Result{}, false, nil
	}
	if err != nil {
		return models.Result{}, false, fmt.Errorf("page cache get: %w", err)
	}
	var res models.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return models.Result{}, false, fmt.Errorf("page cache decode: %w", err)
	}
	res.Cached = true
	return res, true, nil
}

// Set stores a page for the configured ttl.
func (s *Store) Set(ctx context.Context, url string, res models.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(url), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("page cache set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }
