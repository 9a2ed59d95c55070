package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"insights-backend/internal/record"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Redis shares the cache between processes, records are stored as json.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis connects to redis and checks that it responds.
func OpenRedis(ctx context.Context, config RedisConfig, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", config.Addr, err)
	}
	return NewRedis(client, ttl), nil
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) (record.Canonical, bool, error) {
	ctx, span := tracer.Start(ctx, "redis:get")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", key))

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return record.Canonical{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read item from redis")
		return record.Canonical{}, false, err
	}

	var rec record.Canonical
	err = json.Unmarshal(data, &rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to deserialize cached item")
		return record.Canonical{}, false, err
	}
	return rec, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, rec record.Canonical) error {
	ctx, span := tracer.Start(ctx, "redis:set")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", key))

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = r.client.Set(ctx, key, data, r.ttl).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write item to redis")
		return err
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
