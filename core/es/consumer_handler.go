package es

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// MsgCtx carries one decoded event through a handler chain.
type MsgCtx struct {
	ctx context.Context
	log *slog.Logger
	env Envelope
	evt any
}

// NewMsgCtx is used by handlers that drive a chain outside a Consumer.
func NewMsgCtx(ctx context.Context, log *slog.Logger, env Envelope, evt any) MsgCtx {
	return MsgCtx{ctx: ctx, log: log, env: env, evt: evt}
}

func (c MsgCtx) Log() *slog.Logger        { return c.log }
func (c MsgCtx) Context() context.Context { return c.ctx }
func (c MsgCtx) Event() any               { return c.evt }

func (c MsgCtx) Seq() uint64           { return c.env.Seq }
func (c MsgCtx) Envelope() Envelope    { return c.env }
func (c MsgCtx) Version() Version      { return c.env.Version }
func (c MsgCtx) AggregateID() string   { return c.env.AggregateID }
func (c MsgCtx) AggregateType() string { return c.env.AggregateType }
func (c MsgCtx) Data() json.RawMessage { return c.env.Data }
func (c MsgCtx) Type() string          { return c.env.Type }
func (c MsgCtx) OccurredAt() time.Time { return c.env.OccurredAt }

type (
	Handler interface {
		Handle(msgCtx MsgCtx) error
	}
	HandleFunc           func(ctx MsgCtx) error
	HandlerMiddleware    func(next Handler) Handler
	MiddlewareHandleFunc func(ctx MsgCtx, next Handler) error
)

func applyMiddlewares(h Handler, middlewares []HandlerMiddleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func (f HandleFunc) Handle(ctx MsgCtx) error { return f(ctx) }

type projectionHandler struct{ p Projection }

func (h projectionHandler) Handle(msgCtx MsgCtx) error {
	return h.p.Handle(msgCtx.Context(), msgCtx.Envelope(), msgCtx.Event())
}

// === middleware ===

type middleware struct {
	next Handler
	mw   MiddlewareHandleFunc
}

func (m *middleware) Handle(msgCtx MsgCtx) error { return m.mw(msgCtx, m.next) }

func MiddlewareHandle(mw MiddlewareHandleFunc) HandlerMiddleware {
	return func(next Handler) Handler {
		return &middleware{next: next, mw: mw}
	}
}

// === log ===

func NewLogMiddleware(attrs ...any) HandlerMiddleware {
	return MiddlewareHandle(func(ctx MsgCtx, next Handler) (err error) {
		handleAt := time.Now()

		log := ctx.Log().With(attrs...)

		err = next.Handle(ctx)
		if err != nil {
			log.Error("failed", slog.Any("error", err), slog.Duration("duration", time.Since(handleAt)))
		} else {
			log.Debug("handled", slog.Duration("duration", time.Since(handleAt)))
		}

		return err
	})
}
