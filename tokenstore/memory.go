package tokenstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend. Expired entries are dropped lazily
// on read.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	events  broadcaster
}

// NewMemoryBackend returns an empty MemoryBackend using the wall clock.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithClock(time.Now)
}

// NewMemoryBackendWithClock returns a MemoryBackend whose TTLs are evaluated
// against now.
func NewMemoryBackendWithClock(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()

	m.events.publish(Change{Key: key})
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	changes := make([]Change, 0, len(keys))

	m.mu.Lock()
	for _, k := range keys {
		if _, ok := m.entries[k]; ok {
			delete(m.entries, k)
			changes = append(changes, Change{Key: k, Deleted: true})
		}
	}
	m.mu.Unlock()

	if len(changes) > 0 {
		m.events.publish(changes...)
	}
	return nil
}

func (m *MemoryBackend) Watch(ctx context.Context) (<-chan Change, error) {
	return m.events.subscribe(ctx), nil
}

// Len returns the number of live entries.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now()
	for _, e := range m.entries {
		if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}
