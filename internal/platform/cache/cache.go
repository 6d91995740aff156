// Package cache holds short-lived JSON read models in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores JSON-encoded values under string keys.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// FetchFunc loads the value behind a cache key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// FindAndCache serves key from c and falls back to fn on a miss, storing the
// result for ttl. The bool reports a hit. Cache failures are logged and never
// fail the read.
func FindAndCache[T any](ctx context.Context, c Cache, logger zerolog.Logger, key string, ttl time.Duration, fn FetchFunc[T]) (T, bool, error) {
	var cached T
	err := c.Get(ctx, key, &cached)
	if err == nil {
		return cached, true, nil
	}
	if !errors.Is(err, ErrMiss) {
		logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}

	result, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if err := c.Set(ctx, key, result, ttl); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return result, false, nil
}

// Noop never stores anything. It stands in when no Redis URL is configured.
type Noop struct{}

func (Noop) Get(context.Context, string, any) error                { return ErrMiss }
func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Delete(context.Context, ...string) error               { return nil }
func (Noop) Ping(context.Context) error                            { return nil }

type memEntry struct {
	data    []byte
	expires time.Time
}

// Memory is an in-process Cache used by tests and single-node development.
type Memory struct {
	mu    sync.Mutex
	items map[string]memEntry
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	e, ok := m.items[key]
	if ok && !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(e.data, dest)
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	e := memEntry{data: data}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len reports the number of stored keys, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
