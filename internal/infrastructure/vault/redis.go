package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

const redisConnectTimeout = 5 * time.Second

// RedisConfig captures the settings for the redis-backed vault.
type RedisConfig struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// ConnectRedis initialises a Redis client and validates connectivity with a
// ping. A default timeout is applied when none is provided.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = redisConnectTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisVault stores the session cache under a single Redis key, for headless
// deployments where the client process has no stable filesystem.
type RedisVault struct {
	client *redis.Client
}

// NewRedisVault wraps an established Redis client.
func NewRedisVault(client *redis.Client) *RedisVault {
	return &RedisVault{client: client}
}

func (v *RedisVault) Load(ctx context.Context) (*domain.PersistedSession, error) {
	raw, err := v.client.Get(ctx, StorageKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: redis get: %w", err)
	}

	var s domain.PersistedSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, nil
	}
	return &s, nil
}

func (v *RedisVault) Save(ctx context.Context, s *domain.PersistedSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("vault: marshal session: %w", err)
	}
	if err := v.client.Set(ctx, StorageKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("vault: redis set: %w", err)
	}
	return nil
}

func (v *RedisVault) Clear(ctx context.Context) error {
	if err := v.client.Del(ctx, StorageKey).Err(); err != nil {
		return fmt.Errorf("vault: redis del: %w", err)
	}
	return nil
}
