package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryProjectionState is the mutable read model behind an
// InMemoryProjection. Apply must be idempotent.
type InMemoryProjectionState interface {
	Apply(ctx context.Context, env Envelope, event any) error
	Reset()
}

// InMemoryProjection guards a state with a lock and keeps its position in a
// CpStore.
type InMemoryProjection[T InMemoryProjectionState] struct {
	name  string
	mu    sync.RWMutex
	log   *slog.Logger
	state T
	cp    CpStore
}

type InMemoryProjectionOpts struct {
	Name string
	// CpStore defaults to a fresh InMemCpStore.
	CpStore CpStore
	Log     *slog.Logger
}

func NewInMemoryProjection[T InMemoryProjectionState](
	opts InMemoryProjectionOpts,
	state T,
) (*InMemoryProjection[T], error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("projection name is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	cp := opts.CpStore
	if cp == nil {
		cp = NewInMemCpStore()
	}
	return &InMemoryProjection[T]{
		name:  opts.Name,
		log:   log.With(slog.String("projection", opts.Name)),
		state: state,
		cp:    cp,
	}, nil
}

func (i *InMemoryProjection[T]) Name() string { return i.name }

// Read runs fn with the state locked for reading.
func (i *InMemoryProjection[T]) Read(fn func(state T)) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	fn(i.state)
}

func (i *InMemoryProjection[T]) Handle(ctx context.Context, env Envelope, event any) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	pos, err := i.cp.Get(ctx, i.name)
	if err != nil {
		return err
	}
	if env.Seq <= pos {
		i.log.Debug("skip", slog.Uint64("seq", env.Seq), slog.Uint64("position", pos))
		return nil
	}
	if err := i.state.Apply(ctx, env, event); err != nil {
		return err
	}
	return i.cp.Set(ctx, i.name, env.Seq)
}

func (i *InMemoryProjection[T]) Position(ctx context.Context) (uint64, error) {
	return i.cp.Get(ctx, i.name)
}

func (i *InMemoryProjection[T]) UpdatePosition(ctx context.Context, position uint64) error {
	return i.cp.Set(ctx, i.name, position)
}

func (i *InMemoryProjection[T]) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state.Reset()
	return i.cp.Set(ctx, i.name, 0)
}

var _ Projection = (*InMemoryProjection[InMemoryProjectionState])(nil)
