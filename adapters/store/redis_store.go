package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/ethauth/core"
	"github.com/layer-3/ethauth/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to every challenge key
const DefaultRedisPrefix = "ethauth:challenge:"

// consumeScript deletes KEYS[1] only when it holds ARGV[1]
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is a Redis implementation of the ChallengeStore interface
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ ports.ChallengeStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store. A zero ttl stores challenges without expiry.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
	}
}

// StoreChallenge saves the challenge with the configured expiration
func (s *RedisStore) StoreChallenge(ctx context.Context, address, challengeHash string) error {
	if err := s.client.Set(ctx, s.prefix+address, challengeHash, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// GetChallenge returns the pending challenge for address
func (s *RedisStore) GetChallenge(ctx context.Context, address string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+address).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get challenge: %w: %v", core.ErrStoreOperationFailed, err)
	}
	return value, true, nil
}

// DeleteChallenge removes the pending challenge for address
func (s *RedisStore) DeleteChallenge(ctx context.Context, address string) error {
	if err := s.client.Del(ctx, s.prefix+address).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// ConsumeChallenge atomically deletes the challenge if it still equals challengeHash
func (s *RedisStore) ConsumeChallenge(ctx context.Context, address, challengeHash string) (bool, error) {
	deleted, err := consumeScript.Run(ctx, s.client, []string{s.prefix + address}, challengeHash).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume challenge: %w: %v", core.ErrStoreOperationFailed, err)
	}
	return deleted == 1, nil
}
