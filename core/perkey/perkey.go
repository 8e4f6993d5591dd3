// Package perkey serializes work per key while letting work for different
// keys run concurrently. Commands against one aggregate id go through it so
// that in-process writers do not race each other into version conflicts.
package perkey

import (
	"context"
	"errors"
	"sync"
)

var ErrSchedulerClosed = errors.New("scheduler is closed")

// Scheduler runs fn for a key only while no other fn for the same key runs.
// Idle keys hold no resources.
type Scheduler[K comparable] struct {
	mu     sync.Mutex
	slots  map[K]*slot
	closed bool
	wg     sync.WaitGroup
}

type slot struct {
	sem  chan struct{}
	refs int
}

func New[K comparable]() *Scheduler[K] {
	return &Scheduler[K]{slots: make(map[K]*slot)}
}

func (s *Scheduler[K]) Do(key K, fn func() error) error {
	return s.DoContext(context.Background(), key, fn)
}

// DoContext waits for the key to become free, then runs fn. It returns the
// context error if ctx ends while waiting; fn is not run in that case.
func (s *Scheduler[K]) DoContext(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{sem: make(chan struct{}, 1)}
		s.slots[key] = sl
	}
	sl.refs++
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.release(key, sl)

	select {
	case sl.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sl.sem }()

	return fn()
}

func (s *Scheduler[K]) release(key K, sl *slot) {
	s.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, key)
	}
	s.mu.Unlock()
	s.wg.Done()
}

// Active returns the number of keys with running or waiting work.
func (s *Scheduler[K]) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Close rejects new work and waits for running work to finish.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
