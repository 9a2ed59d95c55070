package cache

import (
	"context"
	"time"

	"insights-backend/internal/record"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryCacheSize = 2048

// Memory is an in-process cache, records are shared with callers so they must be
// treated as immutable.
type Memory struct {
	lru *expirable.LRU[string, record.Canonical]
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		lru: expirable.NewLRU[string, record.Canonical](memoryCacheSize, nil, ttl),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (record.Canonical, bool, error) {
	rec, ok := m.lru.Get(key)
	return rec, ok, nil
}

func (m *Memory) Set(ctx context.Context, key string, rec record.Canonical) error {
	m.lru.Add(key, rec)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
