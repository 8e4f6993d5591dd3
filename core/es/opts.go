package es

import (
	"log/slog"
	"time"
)

type (
	valueOption[T any] struct{ v T }
	MultiOption[T any] struct{ opts []T }

	LogOption           valueOption[*slog.Logger]
	BusOption           valueOption[EventBus]
	SnapshotterOption   valueOption[Snapshotter]
	SnapshotEveryOption valueOption[uint64]
	BatchSizeOption     valueOption[int]
	PollIntervalOption  valueOption[time.Duration]
)

func WithLog(l *slog.Logger) LogOption                    { return LogOption{v: l} }
func WithBus(b EventBus) BusOption                        { return BusOption{v: b} }
func WithSnapshotter(s Snapshotter) SnapshotterOption     { return SnapshotterOption{v: s} }
func WithSnapshotEvery(n uint64) SnapshotEveryOption      { return SnapshotEveryOption{v: n} }
func WithBatchSize(n int) BatchSizeOption                 { return BatchSizeOption{v: n} }
func WithPollInterval(d time.Duration) PollIntervalOption { return PollIntervalOption{v: d} }
