// Package cache keeps feature-service responses for a limited time so that
// repeated runs over the same municipalities do not hit the service again.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is a byte cache with a fixed time-to-live per entry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open returns a Redis store when redisURL is set and an in-memory store
// otherwise. A non-positive ttl disables caching and returns a nil Store.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (Store, error) {
	if ttl <= 0 {
		return nil, nil
	}
	if redisURL == "" {
		return NewMemory(ttl), nil
	}
	r, err := DialRedis(ctx, redisURL, ttl)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return r, nil
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the value stored under key if it has not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{
		value:   append([]byte(nil), value...),
		expires: m.now().Add(m.ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close drops all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
	return nil
}
