// Package metrics holds the instrumentation interfaces the core packages
// depend on. Backends (see adapters/prometheus) implement them.
package metrics

import "time"

type Counter interface {
	Inc()
	Add(delta float64)
}

type Gauge interface {
	Set(value float64)
	Add(delta float64)
}

// Timer measures one operation. Typical use:
//
//	defer m.StoreAppendDuration("file").ObserveDuration()
type Timer interface {
	ObserveDuration()
}

type funcTimer struct {
	start   time.Time
	observe func(time.Duration)
}

func (t funcTimer) ObserveDuration() { t.observe(time.Since(t.start)) }

// NewTimer starts a timer that reports the elapsed time to observe.
func NewTimer(observe func(time.Duration)) Timer {
	return funcTimer{start: time.Now(), observe: observe}
}

type nop struct{}

func (nop) Inc()             {}
func (nop) Add(float64)      {}
func (nop) Set(float64)      {}
func (nop) ObserveDuration() {}

func NopCounter() Counter { return nop{} }
func NopGauge() Gauge     { return nop{} }
func NopTimer() Timer     { return nop{} }
