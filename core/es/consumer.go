package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrConsumerStopped = errors.New("consumer stopped")

// Consumer keeps a Projection up to date. It catches up from the store at
// start, whenever the bus reports new events and on every poll tick. The bus
// only wakes the consumer; order always comes from the store.
type Consumer struct {
	proj         *projector
	log          *slog.Logger
	bus          EventBus
	pollInterval time.Duration
	name         string

	// serializes catch-up runs
	mu sync.Mutex

	wake      chan struct{}
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	started   bool
}

func NewConsumer(
	store EventStore,
	decoder Decoder,
	projection Projection,
	opts ...ConsumerOption,
) *Consumer {
	options := newConsumerOpts(opts...)
	log := options.catchUp.log.With(slog.String("consumer", options.name))
	options.catchUp.log = log

	return &Consumer{
		proj:         newProjector(store, decoder, projection, options.catchUp),
		log:          log,
		bus:          options.bus,
		pollInterval: options.pollInterval,
		name:         options.name,
		wake:         make(chan struct{}, 1),
		closeChan:    make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (c *Consumer) Name() string { return c.name }

// Start runs an initial catch-up and then keeps running in the background
// until ctx ends or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("starting", slog.String("projection", c.proj.proj.Name()))

	if err := c.Sync(ctx); err != nil {
		return fmt.Errorf("initial catch-up: %w", err)
	}

	var sub Subscription
	if c.bus != nil {
		var err error
		sub, err = c.bus.Subscribe(ctx, func(Envelope) { c.notify() })
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.started = true
	go c.run(ctx, sub)
	return nil
}

func (c *Consumer) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Consumer) run(ctx context.Context, sub Subscription) {
	ticker := time.NewTicker(c.pollInterval)
	defer func() {
		ticker.Stop()
		if sub != nil {
			sub.Cancel()
		}
		c.log.Info("stopped")
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		case <-c.wake:
		case <-ticker.C:
		}
		if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("catch-up failed", slog.Any("error", err))
		}
	}
}

// Sync catches the projection up with everything committed so far. Commands
// call it to read their own writes.
func (c *Consumer) Sync(ctx context.Context) error {
	select {
	case <-c.closeChan:
		return ErrConsumerStopped
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.proj.catchUp(ctx)
	if n > 0 {
		c.log.Debug("caught up", slog.Int("handled", n))
	}
	return err
}

// Stop ends the background loop and waits for it.
func (c *Consumer) Stop() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		if c.started {
			<-c.done
		}
	})
}
