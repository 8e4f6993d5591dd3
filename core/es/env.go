package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Env wires a store, registry, repository, bus and projection consumers
// into one unit with a shared lifetime.
type Env struct {
	ctx          context.Context
	id           string
	done         chan struct{}
	shutdownOnce sync.Once
	cancelCtx    context.CancelFunc
	log          *slog.Logger
	store        EventStore
	snapshotter  Snapshotter
	bus          EventBus
	metrics      ESMetrics
	registry     *EventRegistry
	repo         Repository
	consumers    []*Consumer
}

func (e *Env) ID() string               { return e.id }
func (e *Env) Repository() Repository   { return e.repo }
func (e *Env) Store() EventStore        { return e.store }
func (e *Env) Snapshotter() Snapshotter { return e.snapshotter }
func (e *Env) Registry() *EventRegistry { return e.registry }
func (e *Env) Bus() EventBus            { return e.bus }
func (e *Env) Metrics() ESMetrics       { return e.metrics }
func (e *Env) Consumers() []*Consumer   { return e.consumers }
func (e *Env) Context() context.Context { return e.ctx }

func NewEnv(opts ...EnvOption) (e *Env, err error) {
	var (
		id      = gonanoid.Must(6)
		options = newEnvOptions(opts...)
	)

	log := options.log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("env", id))

	e = &Env{
		id:          id,
		log:         log,
		store:       options.store,
		snapshotter: options.snapshotter,
		bus:         options.bus,
		metrics:     options.metrics,
		registry:    NewRegistry(),
		done:        make(chan struct{}),
		consumers:   make([]*Consumer, 0),
	}
	e.ctx, e.cancelCtx = context.WithCancel(options.ctx)

	for _, agg := range options.aggregates {
		agg.Register(e.registry)
		e.log.Debug("registered aggregate", slog.String("type", agg.GetAggType()))
	}
	RegisterEvents(e.registry, options.events...)

	repoOpts := []RepositoryOption{WithLog(e.log), WithMetrics(e.metrics)}
	if e.snapshotter != nil {
		repoOpts = append(repoOpts, WithSnapshotter(e.snapshotter))
	}
	if e.bus != nil {
		repoOpts = append(repoOpts, WithBus(e.bus))
	}
	e.repo = NewRepository(e.store, e.registry, append(repoOpts, options.repoOpts...)...)

	context.AfterFunc(e.ctx, func() {
		e.log.Debug("stopping consumers", slog.Int("count", len(e.consumers)))
		for _, c := range e.consumers {
			c.Stop()
		}
		e.log.Info("env shutdown")
		close(e.done)
	})

	for _, c := range options.consumers {
		consumer := e.NewConsumer(c.projection, c.consumerOpts...)
		if err := consumer.Start(e.ctx); err != nil {
			e.Shutdown()
			return nil, fmt.Errorf("failed to start consumer %s: %w", consumer.Name(), err)
		}
		e.consumers = append(e.consumers, consumer)
	}

	return e, nil
}

func (e *Env) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.cancelCtx()
		<-e.done
	})
}

// NewConsumer builds a consumer that shares the Env's store, registry, bus
// and metrics. It is not started.
func (e *Env) NewConsumer(projection Projection, opts ...ConsumerOption) *Consumer {
	base := []ConsumerOption{WithLog(e.log), WithMetrics(e.metrics)}
	if e.bus != nil {
		base = append(base, WithBus(e.bus))
	}
	return NewConsumer(e.store, e.registry, projection, append(base, opts...)...)
}

// Sync catches every consumer up with the store.
func (e *Env) Sync(ctx context.Context) error {
	var errs []error
	for _, c := range e.consumers {
		if err := c.Sync(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Append writes raw events straight to the store, bypassing aggregates.
func (e *Env) Append(ctx context.Context, aggType, aggID string, expect Version, events ...any) (*AppendResult, error) {
	return AppendEvents(ctx, e.store, aggType, aggID, expect, events...)
}
