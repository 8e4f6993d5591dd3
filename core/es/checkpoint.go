package es

import (
	"context"
	"sync"
)

// CpStore persists the position a named projection has processed up to.
// Get returns 0 for a projection that has never stored a checkpoint.
type CpStore interface {
	Get(ctx context.Context, name string) (position uint64, err error)
	Set(ctx context.Context, name string, position uint64) error
}

type InMemCpStore struct {
	mu sync.RWMutex
	m  map[string]uint64
}

func NewInMemCpStore() *InMemCpStore {
	return &InMemCpStore{m: map[string]uint64{}}
}

func (s *InMemCpStore) Get(_ context.Context, name string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[name], nil
}

func (s *InMemCpStore) Set(_ context.Context, name string, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = position
	return nil
}

var _ CpStore = (*InMemCpStore)(nil)
