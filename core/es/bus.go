package es

import (
	"context"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type (
	// EventBus fans committed envelopes out to subscribers. Delivery is
	// at-least-once; subscribers must tolerate duplicates.
	EventBus interface {
		Publish(ctx context.Context, envelopes ...Envelope) error
		Subscribe(ctx context.Context, handler func(Envelope)) (Subscription, error)
	}

	Subscription interface {
		Cancel()
	}
)

// InMemoryBus delivers to each subscriber on its own goroutine, in publish order.
type InMemoryBus struct {
	mu   sync.RWMutex
	log  *slog.Logger
	subs map[string]*memSub
}

type memSub struct {
	ch       chan Envelope
	done     chan struct{}
	stopOnce sync.Once
	cancel   func()
}

func (s *memSub) Cancel() { s.stopOnce.Do(s.cancel) }

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		log:  slog.Default().With(slog.String("bus", "memory")),
		subs: map[string]*memSub{},
	}
}

func (b *InMemoryBus) Publish(ctx context.Context, envelopes ...Envelope) error {
	b.mu.RLock()
	subs := make([]*memSub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, env := range envelopes {
		for _, s := range subs {
			select {
			case s.ch <- env:
			case <-s.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (b *InMemoryBus) Subscribe(ctx context.Context, handler func(Envelope)) (Subscription, error) {
	id := gonanoid.Must()
	sub := &memSub{
		ch:   make(chan Envelope, 256),
		done: make(chan struct{}),
	}
	sub.cancel = func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(sub.done)
	}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case env := <-sub.ch:
				handler(env)
			}
		}
	}()

	context.AfterFunc(ctx, sub.Cancel)

	b.log.Debug("subscribed", slog.String("sub", id))
	return sub, nil
}

var _ EventBus = (*InMemoryBus)(nil)
