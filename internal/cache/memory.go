package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Memory is a concurrent-safe in-process Cache with TTL expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	hits    atomic.Int64
	misses  atomic.Int64

	janitorStop chan struct{}
	janitorOnce sync.Once
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Stats contains cache performance counters.
type Stats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[string]*memoryEntry),
		janitorStop: make(chan struct{}),
	}
}

// Get returns the value for key, or a miss if absent or expired. Expired
// entries are removed on read.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		m.misses.Add(1)
		return nil, false, nil
	}
	m.hits.Add(1)
	return entry.value, true, nil
}

// Set upserts key with a fresh expiry.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes key. Deleting an absent key succeeds.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// ClearExpired removes every expired entry and returns how many were removed.
func (m *Memory) ClearExpired(_ context.Context) (int, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// StartJanitor launches a background sweep that calls ClearExpired on the
// given interval until Close.
func (m *Memory) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, _ := m.ClearExpired(context.Background())
				if n > 0 {
					zap.L().Debug("cache: janitor sweep", zap.Int("removed", n))
				}
			case <-m.janitorStop:
				return
			}
		}
	}()
}

// Stats returns hit/miss counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	entries := len(m.entries)
	m.mu.RUnlock()

	hits := m.hits.Load()
	misses := m.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Entries: entries, Hits: hits, Misses: misses, HitRate: rate}
}

// Close stops the janitor, if started.
func (m *Memory) Close() error {
	m.janitorOnce.Do(func() { close(m.janitorStop) })
	return nil
}
