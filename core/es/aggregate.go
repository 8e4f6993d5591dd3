package es

import (
	"fmt"

	"github.com/codewandler/vfs-es/core/es/assert"
)

// Applier is the interface for types that can apply events to update their state.
type Applier interface {
	Apply(event any) error
}

// Aggregate is the core interface for event-sourced domain objects.
//
// An aggregate maintains:
//   - Identity: type and ID that uniquely identify the aggregate stream
//   - Version: the number of events applied, including uncommitted ones
//   - Sequence: the global store position of the last persisted event
//   - Uncommitted events: events raised but not yet persisted
//
// The only legitimate state mutation is Apply. Business methods build an
// event and hand it to RaiseAndApply, which applies it, stages it as
// uncommitted and advances the version.
type Aggregate interface {
	// GetAggType returns the aggregate type name used for stream identification.
	GetAggType() string
	// GetID returns the unique identifier of this aggregate instance.
	GetID() string
	// SetID sets the aggregate ID.
	SetID(string)

	// GetVersion returns the current version (number of events applied).
	GetVersion() Version
	setVersion(Version)

	// GetSeq returns the global store position of the last persisted event.
	GetSeq() uint64
	setSeq(uint64)

	// Register registers event types with the provided Registrar.
	Register(r Registrar)
	// Raise records an event as uncommitted without applying it.
	Raise(event any)
	// Apply updates the aggregate state from an event.
	Apply(event any) error

	// Uncommitted returns a copy of events raised but not yet persisted.
	Uncommitted() []any
	// ClearUncommitted removes all uncommitted events after successful save.
	ClearUncommitted()
}

// BaseAggregate is an embeddable helper that tracks version + uncommitted events.
type BaseAggregate struct {
	id          string
	version     Version
	seq         uint64
	uncommitted []any
}

func (b *BaseAggregate) GetID() string        { return b.id }
func (b *BaseAggregate) SetID(id string)      { b.id = id }
func (b *BaseAggregate) GetVersion() Version  { return b.version }
func (b *BaseAggregate) setVersion(v Version) { b.version = v }
func (b *BaseAggregate) GetSeq() uint64       { return b.seq }
func (b *BaseAggregate) setSeq(s uint64)      { b.seq = s }

// CommittedVersion is the version last persisted to the store.
func (b *BaseAggregate) CommittedVersion() Version {
	return b.version - Version(len(b.uncommitted))
}

func (b *BaseAggregate) Raise(event any)   { b.uncommitted = append(b.uncommitted, event) }
func (b *BaseAggregate) ClearUncommitted() { b.uncommitted = nil }
func (b *BaseAggregate) Uncommitted() []any {
	out := make([]any, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

// Checked runs thenFunc only when c holds.
func (b *BaseAggregate) Checked(c assert.Cond, thenFunc func() error) error {
	if err := c.Check(); err != nil {
		return err
	}
	return thenFunc()
}

// === Helpers ===

// RaiseAndApply validates, applies and stages each event, advancing the
// version by one per event. An event that fails to apply is not staged.
func RaiseAndApply(a Aggregate, events ...any) (err error) {
	if len(events) == 0 {
		return
	}

	for _, e := range events {
		if ev, ok := e.(interface{ Validate() error }); ok {
			if err = ev.Validate(); err != nil {
				return fmt.Errorf("invalid event %T: %w", ev, err)
			}
		}
	}

	for _, e := range events {
		if err = a.Apply(e); err != nil {
			return err
		}
		a.Raise(e)
		a.setVersion(a.GetVersion().Next())
	}
	return
}

// Replay folds persisted envelopes into agg. Each envelope must carry the
// version directly following the aggregate's current version.
func Replay(agg Aggregate, decoder Decoder, envelopes ...Envelope) error {
	for _, e := range envelopes {
		expect := agg.GetVersion().Next()
		if e.Version != expect {
			return fmt.Errorf(
				"%w: agg_type=%s agg_id=%s expected version %d, got %d",
				ErrCorruptEvent, agg.GetAggType(), agg.GetID(), expect, e.Version,
			)
		}

		evt, err := decoder.Decode(e)
		if err != nil {
			return err
		}
		if err := agg.Apply(evt); err != nil {
			return fmt.Errorf("apply %s v%d: %w", e.Type, e.Version, err)
		}

		agg.setVersion(e.Version)
		agg.setSeq(e.Seq)
	}
	return nil
}

// Fold applies already decoded events to agg in order, advancing the version by
// one per event without staging them. It is the in-memory counterpart of
// Replay for callers that hold domain events rather than envelopes.
func Fold(agg Aggregate, events ...any) error {
	for _, e := range events {
		if err := agg.Apply(e); err != nil {
			return fmt.Errorf("apply %s v%d: %w", EventTypeOf(e), agg.GetVersion().Next(), err)
		}
		agg.setVersion(agg.GetVersion().Next())
	}
	return nil
}
