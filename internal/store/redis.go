// redis.go -- go-redis client and the one-time state nonce guard.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceKeyPrefix namespaces consumed state nonces.
const NonceKeyPrefix = "voiceauth:state:used:"

// NewRedisClient parses redisURL, connects and pings.
// Call once at startup from main.go; the client is shared by the nonce
// guard and the identity event queue.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// NonceStore marks state nonces as used so a captured callback URL can't be
// replayed within the state TTL.
type NonceStore struct {
	rdb *redis.Client
}

// NewNonceStore wraps a connected client.
func NewNonceStore(rdb *redis.Client) *NonceStore {
	return &NonceStore{rdb: rdb}
}

// Consume records key with ttl. Returns false if key was already consumed.
// ttl should match the remaining state token lifetime; after that the
// token itself is rejected as expired.
func (s *NonceStore) Consume(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, NonceKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consuming nonce: %w", err)
	}
	return ok, nil
}

// CheckHealth pings Redis.
func (s *NonceStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
