package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// BreachDeduper claims a breach dedup key before the event is persisted.
type BreachDeduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisBreachDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBreachDeduper stores claims as sla:breach:<key> with a TTL.
func NewRedisBreachDeduper(client *redis.Client, ttl time.Duration) BreachDeduper {
	return &redisBreachDeduper{client: client, ttl: ttl}
}

func (d *redisBreachDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, dedupKey(key), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

func (d *redisBreachDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, dedupKey(key)).Err()
}

func dedupKey(key string) string {
	return "sla:breach:" + key
}

type noopBreachDeduper struct{}

// NewNoopBreachDeduper always grants the claim; the breach store's unique key is the only guard.
func NewNoopBreachDeduper() BreachDeduper {
	return noopBreachDeduper{}
}

func (noopBreachDeduper) Claim(context.Context, string) (bool, error) { return true, nil }

func (noopBreachDeduper) Release(context.Context, string) error { return nil }
