// Package domain holds a small counter aggregate used to exercise the es
// package in tests.
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/assert"
)

const MaxCount = 24

type (
	Counter struct {
		es.BaseAggregate

		Count          uint16 `json:"count"`
		NumIncrements  int    `json:"num_increments"`
		NumResets      int    `json:"num_resets"`
		NumTotalEvents int    `json:"num_total_events"`
	}

	Incremented struct {
		Inc uint8 `json:"inc"`
	}

	Reset struct{}
)

func (e *Incremented) EventType() string { return "incremented" }
func (e *Incremented) Validate() error {
	return assert.Because(es.ErrCorruptEvent, assert.True(e.Inc > 0, "inc must be positive")).Check()
}
func (e *Reset) EventType() string { return "reset" }

func (a *Counter) Snapshot() (data []byte, err error) { return json.Marshal(a) }
func (a *Counter) RestoreSnapshot(data []byte) error  { return json.Unmarshal(data, a) }
func (a *Counter) GetAggType() string                 { return "counter" }
func (a *Counter) Register(r es.Registrar) {
	es.RegisterEvents(r, es.Event[Incremented](), es.Event[Reset]())
}

func (a *Counter) Apply(event any) error {
	a.NumTotalEvents++
	switch e := event.(type) {
	case *Incremented:
		a.Count += uint16(e.Inc)
		a.NumIncrements++
	case *Reset:
		a.Count = 0
		a.NumResets++
	default:
		a.NumTotalEvents--
		return fmt.Errorf("%w: %T", es.ErrUnknownEventType, event)
	}
	return nil
}

var _ es.Snapshottable = &Counter{}

// === Commands ===

func (a *Counter) Reset() error { return es.RaiseAndApply(a, &Reset{}) }
func (a *Counter) Inc() error   { return a.IncBy(1) }
func (a *Counter) IncBy(v uint8) error {
	return a.Checked(
		assert.True(int(a.Count)+int(v) <= MaxCount, fmt.Sprintf("count cannot exceed %d", MaxCount)),
		func() error { return es.RaiseAndApply(a, &Incremented{Inc: v}) },
	)
}

func New(id string) *Counter {
	a := &Counter{}
	a.SetID(id)
	return a
}
