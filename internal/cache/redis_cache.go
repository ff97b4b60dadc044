package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"boltline/backend/internal/domain"
)

type RedisInfoCache struct {
	client *redis.Client
}

func NewRedisInfoCache(addr string, password string, db int) *RedisInfoCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisInfoCache{client: client}
}

func (c *RedisInfoCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisInfoCache) Close() error {
	return c.client.Close()
}

func cartKey(id string) string     { return "cart:info:" + id }
func purchaseKey(id string) string { return "purchase:info:" + id }

func (c *RedisInfoCache) GetCartInfo(ctx context.Context, id string) (*domain.CartInfo, bool, error) {
	val, err := c.client.Get(ctx, cartKey(id)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var info domain.CartInfo
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return nil, false, err
	}
	return &info, true, nil
}

func (c *RedisInfoCache) SetCartInfo(ctx context.Context, id string, value *domain.CartInfo, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cartKey(id), payload, ttl).Err()
}

func (c *RedisInfoCache) GetPurchaseInfo(ctx context.Context, id string) (*domain.PurchaseInfo, bool, error) {
	val, err := c.client.Get(ctx, purchaseKey(id)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var info domain.PurchaseInfo
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return nil, false, err
	}
	return &info, true, nil
}

func (c *RedisInfoCache) SetPurchaseInfo(ctx context.Context, id string, value *domain.PurchaseInfo, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, purchaseKey(id), payload, ttl).Err()
}

// Invalidate drops both views for the id; a closed cart and the purchase it
// became share the same id.
func (c *RedisInfoCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, cartKey(id), purchaseKey(id)).Err()
}
