package es

import (
	"context"
	"fmt"
	"log/slog"
)

const defaultBatchSize = 500

// Projection consumes persisted events in position order to build a read
// model. Handle must advance the position to env.Seq together with its own
// writes, so that a crash never leaves the read model ahead of or behind its
// checkpoint.
type Projection interface {
	Name() string
	Handle(ctx context.Context, env Envelope, evt any) error
	// Position is the global position of the last handled event, or 0.
	Position(ctx context.Context) (uint64, error)
	UpdatePosition(ctx context.Context, position uint64) error
	// Reset drops the read model and the checkpoint.
	Reset(ctx context.Context) error
}

type (
	catchUpOpts struct {
		log       *slog.Logger
		batchSize int
		metrics   ESMetrics
		mws       []HandlerMiddleware
	}

	CatchUpOption interface{ applyToCatchUpOpts(*catchUpOpts) }
)

func (o LogOption) applyToCatchUpOpts(opts *catchUpOpts)        { opts.log = o.v }
func (o BatchSizeOption) applyToCatchUpOpts(opts *catchUpOpts)  { opts.batchSize = o.v }
func (o ESMetricsOption) applyToCatchUpOpts(opts *catchUpOpts)  { opts.metrics = o.v }
func (o MiddlewareOption) applyToCatchUpOpts(opts *catchUpOpts) { opts.mws = append(opts.mws, o.v...) }

func newCatchUpOpts(opts ...CatchUpOption) catchUpOpts {
	options := catchUpOpts{
		log:       slog.Default(),
		batchSize: defaultBatchSize,
		metrics:   NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToCatchUpOpts(&options)
	}
	if options.batchSize <= 0 {
		options.batchSize = defaultBatchSize
	}
	return options
}

// projector feeds batches from the store through a handler chain ending in
// the projection.
type projector struct {
	store     EventStore
	decoder   Decoder
	proj      Projection
	handler   Handler
	log       *slog.Logger
	batchSize int
	metrics   ESMetrics
}

func newProjector(store EventStore, decoder Decoder, proj Projection, options catchUpOpts) *projector {
	return &projector{
		store:     store,
		decoder:   decoder,
		proj:      proj,
		handler:   applyMiddlewares(projectionHandler{proj}, options.mws),
		log:       options.log.With(slog.String("projection", proj.Name())),
		batchSize: options.batchSize,
		metrics:   options.metrics,
	}
}

// catchUp handles everything after the projection's position. It returns the
// number of handled events.
func (p *projector) catchUp(ctx context.Context) (handled int, err error) {
	pos, err := p.proj.Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("projection %s: position: %w", p.proj.Name(), err)
	}

	for {
		batch, err := p.store.LoadAll(ctx, pos, p.batchSize)
		if err != nil {
			return handled, fmt.Errorf("projection %s: load from %d: %w", p.proj.Name(), pos, err)
		}
		for _, env := range batch {
			if env.Seq <= pos {
				continue
			}
			if err := p.handle(ctx, env); err != nil {
				return handled, err
			}
			pos = env.Seq
			handled++
		}
		if len(batch) < p.batchSize {
			break
		}
	}

	if global, err := p.store.GetGlobalPosition(ctx); err == nil && global >= pos {
		p.metrics.ProjectionLag(p.proj.Name(), int64(global-pos))
	}
	return handled, nil
}

func (p *projector) handle(ctx context.Context, env Envelope) (err error) {
	name := p.proj.Name()
	defer p.metrics.ProjectionEventDuration(name, env.Type).ObserveDuration()
	defer func() { p.metrics.ProjectionEventProcessed(name, env.Type, err == nil) }()

	evt, err := p.decoder.Decode(env)
	if err != nil {
		return fmt.Errorf("projection %s: seq %d: %w", name, env.Seq, err)
	}
	msgCtx := MsgCtx{
		ctx: ctx,
		env: env,
		evt: evt,
		log: p.log.With(env.SlogAttr()),
	}
	if err = p.handler.Handle(msgCtx); err != nil {
		return fmt.Errorf("projection %s: seq %d: %w", name, env.Seq, err)
	}
	return nil
}

// CatchUp brings proj up to date with the store, starting after its
// position.
func CatchUp(
	ctx context.Context,
	store EventStore,
	decoder Decoder,
	proj Projection,
	opts ...CatchUpOption,
) (int, error) {
	return newProjector(store, decoder, proj, newCatchUpOpts(opts...)).catchUp(ctx)
}

// Rebuild resets proj and replays the whole log into it.
func Rebuild(
	ctx context.Context,
	store EventStore,
	decoder Decoder,
	proj Projection,
	opts ...CatchUpOption,
) (int, error) {
	options := newCatchUpOpts(opts...)
	if err := proj.Reset(ctx); err != nil {
		return 0, fmt.Errorf("projection %s: reset: %w", proj.Name(), err)
	}
	options.log.Info("rebuilding projection", slog.String("projection", proj.Name()))
	return newProjector(store, decoder, proj, options).catchUp(ctx)
}
