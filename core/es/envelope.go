package es

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Metadata travels with an envelope but is not part of the event payload.
type Metadata struct {
	ActorID       string            `json:"actor_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CausationID   string            `json:"causation_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

func (m Metadata) IsZero() bool {
	return m.ActorID == "" && m.CorrelationID == "" && m.CausationID == "" && len(m.Extra) == 0
}

// Envelope wraps an event with metadata for persistence and routing.
// It is the unit of storage in the EventStore and the unit of delivery on the EventBus.
type Envelope struct {
	// ID is the unique identifier of this event envelope, independent of Version.
	ID string `json:"id"`
	// Seq is the global position assigned by the store.
	Seq uint64 `json:"seq"`
	// Version is the per-aggregate stream version (1, 2, 3, ...).
	Version Version `json:"version"`
	// AggregateType identifies the type of aggregate this event belongs to.
	AggregateType string `json:"aggregate_type"`
	// AggregateID identifies the specific aggregate instance.
	AggregateID string `json:"aggregate_id"`
	// Type is the event type name for deserialization routing.
	Type string `json:"type"`
	// OccurredAt is when the event was created.
	OccurredAt time.Time `json:"occurred_at"`
	// Data contains the JSON-encoded event payload.
	Data json.RawMessage `json:"data"`
	// Metadata carries actor and correlation ids.
	Metadata Metadata `json:"metadata"`
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope occurred at is zero")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("envelope aggregate id is empty")
	}
	if e.AggregateType == "" {
		return fmt.Errorf("envelope aggregate type is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	if e.Version == 0 {
		return fmt.Errorf("envelope version is zero")
	}
	return nil
}

func (e Envelope) SlogAttr() slog.Attr {
	return slog.Group(
		"event",
		slog.String("id", e.ID),
		slog.Uint64("seq", e.Seq),
		e.Version.SlogAttr(),
		slog.String("type", e.Type),
		slog.String("aggregate_id", e.AggregateID),
		slog.String("aggregate_type", e.AggregateType),
	)
}

type Decoder interface{ Decode(e Envelope) (any, error) }
