// Package cache memoizes upstream lookups for a limited time, in Valkey when
// an address is configured and in process memory otherwise.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"urbanlens/internal/metrics"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a byte-oriented TTL cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds a namespaced cache key. Floats are fixed to six decimals so a
// point maps to the same key however it was parsed.
func Key(op string, parts ...any) string {
	var b strings.Builder
	b.WriteString("urbanlens:")
	b.WriteString(op)
	for _, p := range parts {
		b.WriteByte(':')
		switch v := p.(type) {
		case float64:
			fmt.Fprintf(&b, "%.6f", v)
		case string:
			b.WriteString(strings.ToLower(strings.TrimSpace(v)))
		default:
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result for ttl. Errors from load are returned and never cached. A nil store
// or a non-positive ttl disables caching. Cache failures only log.
func GetOrLoad[T any](ctx context.Context, store Store, op, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if store == nil || ttl <= 0 {
		return load(ctx)
	}

	if data, err := store.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			metrics.CacheHits.WithLabelValues(op).Inc()
			zap.L().Debug("cache hit", zap.String("op", op), zap.String("key", key))
			return v, nil
		}
	} else if !errors.Is(err, ErrMiss) {
		zap.L().Warn("cache get failed", zap.String("op", op), zap.Error(err))
	}
	metrics.CacheMisses.WithLabelValues(op).Inc()
	zap.L().Debug("cache miss", zap.String("op", op), zap.String("key", key))

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := store.Set(ctx, key, data, ttl); err != nil {
			zap.L().Warn("cache set failed", zap.String("op", op), zap.Error(err))
		}
	}
	return v, nil
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: append([]byte(nil), value...), expires: m.now().Add(ttl)}
	return nil
}
