package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix — префикс ключей dedup в Redis.
const DefaultRedisPrefix = "processa:dedup:"

// RedisDedup — dedup-кэш в Redis, общий для всех реплик роли.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisDedup создаёт кэш поверх готового клиента.
func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	return &RedisDedup{
		client: client,
		ttl:    ttl,
		prefix: DefaultRedisPrefix,
	}
}

// NewRedisDedupFromURL разбирает REDIS_URL и проверяет соединение.
func NewRedisDedupFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisDedup, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisDedup(client, ttl), nil
}

// Seen реализует Dedup.
func (d *RedisDedup) Seen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	n, err := d.client.Exists(ctx, d.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed реализует Dedup (SET NX PX).
// Существующая отметка не перезаписывается и её TTL не продлевается.
func (d *RedisDedup) MarkProcessed(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := d.client.SetNX(ctx, d.key(id), 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set nx: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis (для /healthz).
func (d *RedisDedup) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (d *RedisDedup) Close() error {
	return d.client.Close()
}

func (d *RedisDedup) key(id string) string {
	return d.prefix + id
}
