// Package cache keeps recently produced canonical records so repeated requests skip the
// network entirely.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"insights-backend/internal/record"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("insights.internal.cache")

// DefaultTTL is the lifetime of cached records unless configured otherwise.
const DefaultTTL = time.Hour

// Cache is a key value store of canonical records with a fixed ttl per instance.
type Cache interface {
	// Get returns false when the key is absent or expired.
	Get(ctx context.Context, key string) (record.Canonical, bool, error)
	Set(ctx context.Context, key string, rec record.Canonical) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key is the cache key of an organization.
func Key(orgID string) string {
	return "org:" + strings.ToLower(strings.TrimSpace(orgID))
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type Config struct {
	// Backend is one of "memory" (the default), "badger" or "redis".
	Backend    string      `json:"backend"`
	TTLSeconds int         `json:"ttl_seconds"`
	BadgerDir  string      `json:"badger_dir"`
	Redis      RedisConfig `json:"redis"`
}

func (c Config) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return DefaultTTL
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// Open creates the configured backend.
func Open(config Config) (Cache, error) {
	switch config.Backend {
	case "", "memory":
		return NewMemory(config.TTL()), nil
	case "badger":
		return OpenBadger(config.BadgerDir, config.TTL())
	case "redis":
		return OpenRedis(context.Background(), config.Redis, config.TTL())
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}
