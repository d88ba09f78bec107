// Package lock provides single-writer mutual-exclusion backends for the
// `mre:<root_event_id>` lock of spec.md §4.3. Memory is a process-local
// TTL map (grounded on r3e-network-service_layer's infrastructure/cache
// package); Redis extends the same contract across hosts using
// github.com/go-redis/redis/v8, the same client the rest of the pack
// depends on directly.
package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	expiresAt time.Time
}

// Memory is an in-process Locker (satisfies eventmachine.Locker
// structurally) backed by a TTL-keyed map with a background reaper,
// following the shape of r3e-network-service_layer's Cache (CacheEntry +
// cleanup goroutine) narrowed from a value cache to a pure mutex table.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stopCh  chan struct{}
}

// NewMemory starts a Memory locker. When interval > 0 a background
// goroutine reaps expired entries every interval; otherwise no reaper
// runs.
func NewMemory(interval time.Duration) *Memory {
	m := &Memory{
		entries: map[string]memoryEntry{},
		stopCh:  make(chan struct{}),
	}
	if interval > 0 {
		go m.reapLoop(interval)
	}
	return m
}

func (m *Memory) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) reapExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// Stop terminates the background reaper goroutine.
func (m *Memory) Stop() {
	close(m.stopCh)
}

// Acquire implements eventmachine.Locker.
func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, held := m.entries[key]; held && time.Now().Before(e.expiresAt) {
		return nil, false, nil
	}

	m.entries[key] = memoryEntry{expiresAt: time.Now().Add(ttl)}
	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.entries, key)
	}
	return release, true, nil
}
