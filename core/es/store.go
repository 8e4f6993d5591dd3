package es

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type (
	fromVersionOption valueOption[Version]

	storeLoadOptions struct {
		fromVersion Version
	}

	StoreLoadOption interface {
		applyToStoreLoadOptions(*storeLoadOptions)
	}
)

func (o fromVersionOption) applyToStoreLoadOptions(opts *storeLoadOptions) { opts.fromVersion = o.v }

// WithFromVersion restricts Load to events with a version greater than v.
func WithFromVersion(v Version) StoreLoadOption { return fromVersionOption{v} }

// NewStoreLoadOptions resolves load options. It is exported for store adapters.
func NewStoreLoadOptions(opts ...StoreLoadOption) (fromVersion Version) {
	o := storeLoadOptions{}
	for _, opt := range opts {
		opt.applyToStoreLoadOptions(&o)
	}
	return o.fromVersion
}

type (
	AppendResult struct {
		// LastSeq is the global position of the last appended event.
		LastSeq uint64
		// Envelopes are the appended envelopes with their positions filled in.
		Envelopes []Envelope
	}

	// EventStore is an append-only log of envelopes keyed by aggregate.
	EventStore interface {
		// Append writes events atomically if the stored version of the aggregate
		// equals expectedVersion. Otherwise it fails with ErrConcurrencyConflict and
		// writes nothing.
		Append(ctx context.Context, aggType, aggID string, expectedVersion Version, events []Envelope) (*AppendResult, error)
		// Load returns the events of one aggregate in version order.
		Load(ctx context.Context, aggType, aggID string, opts ...StoreLoadOption) ([]Envelope, error)
		// LoadAll returns up to limit events with a position greater than
		// fromPosition, in position order. A limit <= 0 returns no events.
		// Events are returned only once every lower position is visible, so a
		// reader may checkpoint the last position it received.
		LoadAll(ctx context.Context, fromPosition uint64, limit int) ([]Envelope, error)
		// GetVersion returns the stored version of an aggregate, or 0.
		GetVersion(ctx context.Context, aggID string) (Version, error)
		// GetGlobalPosition returns the highest assigned position, or 0.
		GetGlobalPosition(ctx context.Context) (uint64, error)
	}
)

// NewEnvelopes marshals events into envelopes with versions expect+1..n.
func NewEnvelopes(
	aggType, aggID string,
	expect Version,
	md Metadata,
	newID IDGenerator,
	events ...any,
) ([]Envelope, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}
	if newID == nil {
		newID = DefaultIDGenerator()
	}
	now := time.Now().UTC()
	out := make([]Envelope, 0, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", ev, err)
		}
		occurredAt := now
		if oa, ok := ev.(interface{ OccurredAtTime() time.Time }); ok && !oa.OccurredAtTime().IsZero() {
			occurredAt = oa.OccurredAtTime()
		}
		env := Envelope{
			ID:            newID(),
			Type:          EventTypeOf(ev),
			AggregateID:   aggID,
			AggregateType: aggType,
			Version:       expect + Version(i+1),
			OccurredAt:    occurredAt,
			Data:          data,
			Metadata:      md,
		}
		if err := env.Validate(); err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// AppendEvents marshals events and appends them in one call.
func AppendEvents(
	ctx context.Context,
	store EventStore,
	aggType, aggID string,
	expect Version,
	events ...any,
) (*AppendResult, error) {
	envelopes, err := NewEnvelopes(aggType, aggID, expect, Metadata{}, nil, events...)
	if err != nil {
		return nil, err
	}
	return store.Append(ctx, aggType, aggID, expect, envelopes)
}
