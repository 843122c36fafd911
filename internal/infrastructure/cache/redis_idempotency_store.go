package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultResultTTL bounds how long stored command results are replayable.
// Clients retry within minutes, not weeks; seven days is generous.
const DefaultResultTTL = 7 * 24 * time.Hour

// RedisIdempotencyStore implements shared.IdempotencyStore using Redis.
// This is suitable for distributed deployments where multiple instances
// need to share idempotency state. First-writer-wins comes from SETNX.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisIdempotencyStore creates a new Redis-based idempotency store
func NewRedisIdempotencyStore(cfg RedisConfig) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: "idempotency:",
		ttl:       DefaultResultTTL,
	}, nil
}

// NewRedisIdempotencyStoreWithClient creates a store with an existing Redis client.
// This is useful for testing or when sharing a client across components.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = "idempotency:"
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       DefaultResultTTL,
	}
}

func (s *RedisIdempotencyStore) key(tenantID uuid.UUID, actionKey, idempotencyKey string) string {
	return fmt.Sprintf("%s%s:%s:%s", s.keyPrefix, tenantID, actionKey, idempotencyKey)
}

// Get returns the stored result body, or (nil, false, nil) when absent
func (s *RedisIdempotencyStore) Get(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string) ([]byte, bool, error) {
	body, err := s.client.Get(ctx, s.key(tenantID, actionKey, idempotencyKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read idempotency record: %w", err)
	}
	return body, true, nil
}

// Put stores the result body with SETNX so the first writer wins. When a
// concurrent writer got there first, the winner's body is read back and
// returned to the caller.
func (s *RedisIdempotencyStore) Put(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string, body []byte) ([]byte, error) {
	key := s.key(tenantID, actionKey, idempotencyKey)

	set, err := s.client.SetNX(ctx, key, body, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store idempotency record: %w", err)
	}
	if set {
		return body, nil
	}

	stored, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Winner's record expired between SETNX and GET; treat our body
			// as authoritative
			return body, nil
		}
		return nil, fmt.Errorf("failed to read winning idempotency record: %w", err)
	}
	return stored, nil
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisIdempotencyStore) GetClient() *redis.Client {
	return s.client
}

// Ensure RedisIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
