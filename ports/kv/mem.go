package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	entry     Entry
	expiresAt time.Time
}

type MemStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	data map[string]memEntry
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]memEntry{}, now: time.Now}
}

func (m *MemStore) Put(_ context.Context, key string, entry Entry, opts PutOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	e := memEntry{entry: Entry{Data: append([]byte(nil), entry.Data...)}}
	if opts.TTL > 0 {
		e.expiresAt = m.now().Add(opts.TTL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = e
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return Entry{}, ErrNotFound
	}
	if m.expired(e) {
		m.mu.Lock()
		if cur, ok := m.data[key]; ok && m.expired(cur) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return Entry{}, ErrNotFound
	}
	return e.entry, nil
}

func (m *MemStore) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

var _ Store = (*MemStore)(nil)
