package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopkart/checkout-service/domain"
)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		baseTTL: 45 * time.Minute,
	}
}

type RedisStore struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisStore) Get(ctx context.Context, sessionID string) (*domain.StagedCheckout, error) {
	data, err := r.client.Get(ctx, stagingKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotStaged
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var staged domain.StagedCheckout
	if err2 := json.Unmarshal(data, &staged); err2 != nil {
		return nil, fmt.Errorf("unmarshal staged checkout failed: %w", err2)
	}

	return &staged, nil
}

func (r RedisStore) Put(ctx context.Context, sessionID string, staged *domain.StagedCheckout) error {
	data, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("marshal staged checkout failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if ret := r.client.Set(ctx, stagingKey(sessionID), string(data), ttl); ret.Err() != nil {
		return fmt.Errorf("redis set failed: %w", ret.Err())
	}
	return nil
}

func (r RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, stagingKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func stagingKey(sessionID string) string {
	return fmt.Sprintf("checkout:staged:%s", sessionID)
}
