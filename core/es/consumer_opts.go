package es

import (
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const defaultPollInterval = 5 * time.Second

type (
	consumerOpts struct {
		catchUp      catchUpOpts
		bus          EventBus
		pollInterval time.Duration
		name         string
	}

	ConsumerOption interface {
		applyToConsumerOpts(*consumerOpts)
	}

	ConsumerNameOption valueOption[string]
	MiddlewareOption   valueOption[[]HandlerMiddleware]
	ConsumerOptions    MultiOption[ConsumerOption]
)

func (o ConsumerNameOption) applyToConsumerOpts(opts *consumerOpts) { opts.name = o.v }
func (o MiddlewareOption) applyToConsumerOpts(opts *consumerOpts) {
	opts.catchUp.mws = append(opts.catchUp.mws, o.v...)
}
func (o LogOption) applyToConsumerOpts(opts *consumerOpts)          { opts.catchUp.log = o.v }
func (o BatchSizeOption) applyToConsumerOpts(opts *consumerOpts)    { opts.catchUp.batchSize = o.v }
func (o ESMetricsOption) applyToConsumerOpts(opts *consumerOpts)    { opts.catchUp.metrics = o.v }
func (o BusOption) applyToConsumerOpts(opts *consumerOpts)          { opts.bus = o.v }
func (o PollIntervalOption) applyToConsumerOpts(opts *consumerOpts) { opts.pollInterval = o.v }
func (o ConsumerOptions) applyToConsumerOpts(opts *consumerOpts) {
	for _, opt := range o.opts {
		opt.applyToConsumerOpts(opts)
	}
}

func WithMiddlewares(mws ...HandlerMiddleware) MiddlewareOption {
	return MiddlewareOption{v: mws}
}
func WithConsumerOpts(opts ...ConsumerOption) ConsumerOptions { return ConsumerOptions{opts: opts} }
func WithConsumerName(name string) ConsumerNameOption         { return ConsumerNameOption{name} }

func newConsumerOpts(opts ...ConsumerOption) consumerOpts {
	options := consumerOpts{
		catchUp:      newCatchUpOpts(),
		pollInterval: defaultPollInterval,
		name:         fmt.Sprintf("consumer-%s", gonanoid.Must(6)),
	}
	for _, opt := range opts {
		opt.applyToConsumerOpts(&options)
	}
	if options.catchUp.batchSize <= 0 {
		options.catchUp.batchSize = defaultBatchSize
	}
	if options.catchUp.log == nil {
		options.catchUp.log = slog.Default()
	}
	return options
}
