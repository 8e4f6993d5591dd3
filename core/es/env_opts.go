package es

import (
	"context"
	"fmt"
	"log/slog"
)

type (
	envOptions struct {
		ctx         context.Context
		log         *slog.Logger
		snapshotter Snapshotter
		store       EventStore
		bus         EventBus
		metrics     ESMetrics
		events      []func() any
		aggregates  []Aggregate
		consumers   []EnvConsumerOption
		repoOpts    []RepositoryOption
	}

	EnvOption interface {
		applyToEnv(*envOptions)
	}

	CtxOption         valueOption[context.Context]
	StoreOption       valueOption[EventStore]
	AggregatesOption  valueOption[[]Aggregate]
	EventsOption      valueOption[[]func() any]
	RepoOptionsOption valueOption[[]RepositoryOption]
	EnvOptions        MultiOption[EnvOption]

	EnvConsumerOption struct {
		projection   Projection
		consumerOpts []ConsumerOption
	}
)

func newEnvOptions(opts ...EnvOption) envOptions {
	options := envOptions{
		ctx:     context.Background(),
		log:     slog.Default(),
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToEnv(&options)
	}
	if options.store == nil {
		options.store = NewInMemoryStore()
	}
	return options
}

func WithCtx(ctx context.Context) CtxOption             { return CtxOption{v: ctx} }
func WithStore(s EventStore) StoreOption                { return StoreOption{v: s} }
func WithAggregates(aggs ...Aggregate) AggregatesOption { return AggregatesOption{v: aggs} }
func WithEvents(ctors ...func() any) EventsOption       { return EventsOption{v: ctors} }
func WithEvent[T any]() EventsOption                    { return WithEvents(Event[T]()) }
func WithRepoOpts(opts ...RepositoryOption) RepoOptionsOption {
	return RepoOptionsOption{v: opts}
}
func WithEnvOpts(opts ...EnvOption) EnvOptions { return EnvOptions{opts: opts} }

// WithProjection runs a Consumer for projection for the lifetime of the Env.
func WithProjection(projection Projection, opts ...ConsumerOption) EnvConsumerOption {
	return EnvConsumerOption{
		projection: projection,
		consumerOpts: append(
			[]ConsumerOption{WithConsumerName(fmt.Sprintf("projection/%s", projection.Name()))},
			opts...,
		),
	}
}

func (o CtxOption) applyToEnv(options *envOptions)           { options.ctx = o.v }
func (o LogOption) applyToEnv(options *envOptions)           { options.log = o.v }
func (o StoreOption) applyToEnv(options *envOptions)         { options.store = o.v }
func (o SnapshotterOption) applyToEnv(options *envOptions)   { options.snapshotter = o.v }
func (o BusOption) applyToEnv(options *envOptions)           { options.bus = o.v }
func (o ESMetricsOption) applyToEnv(options *envOptions)     { options.metrics = o.v }
func (o AggregatesOption) applyToEnv(options *envOptions)    { options.aggregates = append(options.aggregates, o.v...) }
func (o EventsOption) applyToEnv(options *envOptions)        { options.events = append(options.events, o.v...) }
func (o RepoOptionsOption) applyToEnv(options *envOptions)   { options.repoOpts = append(options.repoOpts, o.v...) }
func (o EnvConsumerOption) applyToEnv(options *envOptions)   { options.consumers = append(options.consumers, o) }
func (o SnapshotEveryOption) applyToEnv(options *envOptions) { options.repoOpts = append(options.repoOpts, o) }
func (o EnvOptions) applyToEnv(options *envOptions) {
	for _, opt := range o.opts {
		opt.applyToEnv(options)
	}
}
