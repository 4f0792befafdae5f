package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisBarcodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBarcodeCache(addr string, password string, db int, ttl time.Duration) *RedisBarcodeCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBarcodeCache{client: client, ttl: ttl}
}

func (c *RedisBarcodeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBarcodeCache) Close() error {
	return c.client.Close()
}

func (c *RedisBarcodeCache) Get(ctx context.Context, pharmacyID string, code string) (string, bool, error) {
	val, err := c.client.Get(ctx, barcodeKey(pharmacyID, code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisBarcodeCache) Set(ctx context.Context, pharmacyID string, code string, productID string) error {
	return c.client.Set(ctx, barcodeKey(pharmacyID, code), productID, c.ttl).Err()
}

func (c *RedisBarcodeCache) Delete(ctx context.Context, pharmacyID string, code string) error {
	return c.client.Del(ctx, barcodeKey(pharmacyID, code)).Err()
}
