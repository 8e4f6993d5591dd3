package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codewandler/vfs-es/core/cache"
	"github.com/codewandler/vfs-es/core/perkey"
)

// Repository rehydrates aggregates and persists new events with optimistic
// concurrency.
type Repository interface {
	// Load rehydrates agg, which must carry its type and id. It fails with
	// ErrAggregateNotFound when the stream is empty.
	Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error
	// Save appends the uncommitted events of agg. On success the events are
	// cleared and published; on failure they stay staged.
	Save(ctx context.Context, agg Aggregate, opts ...SaveOption) error
}

type repository struct {
	log           *slog.Logger
	store         EventStore
	decoder       Decoder
	snapshotter   Snapshotter
	snapshotEvery uint64
	cache         cache.Cache[*Snapshot]
	cacheTTL      time.Duration
	bus           EventBus
	newID         IDGenerator
	metrics       ESMetrics
}

func NewRepository(store EventStore, decoder Decoder, opts ...RepositoryOption) Repository {
	options := newRepoOpts(opts...)
	return &repository{
		log:           options.log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:         store,
		decoder:       decoder,
		snapshotter:   options.snapshotter,
		snapshotEvery: options.snapshotEvery,
		cache:         options.cache,
		cacheTTL:      options.cacheTTL,
		bus:           options.bus,
		newID:         options.idGenerator,
		metrics:       options.metrics,
	}
}

func checkIdentity(agg Aggregate) error {
	if agg.GetAggType() == "" {
		return errors.New("aggregate type is empty")
	}
	if agg.GetID() == "" {
		return errors.New("aggregate id is empty")
	}
	return nil
}

func aggAttr(agg Aggregate) slog.Attr {
	return slog.Group(
		"agg",
		slog.String("type", agg.GetAggType()),
		slog.String("id", agg.GetID()),
		slog.Uint64("seq", agg.GetSeq()),
		agg.GetVersion().SlogAttr(),
	)
}

func (r *repository) Load(ctx context.Context, agg Aggregate, opts ...LoadOption) (err error) {
	if err = checkIdentity(agg); err != nil {
		return err
	}
	if len(agg.Uncommitted()) != 0 {
		return errors.New("aggregate has uncommitted events")
	}
	if agg.GetVersion() != 0 {
		return errors.New("aggregate is already loaded")
	}

	aggType, aggID := agg.GetAggType(), agg.GetID()
	loadOptions := newLoadOptions(opts...)
	defer r.metrics.RepoLoadDuration(aggType).ObserveDuration()

	key := snapshotKey(aggType, aggID)
	restored := false

	if !loadOptions.skipSnapshot {
		if snap, ok := r.cache.Get(key); ok {
			if err := RestoreSnapshot(agg, snap); err != nil {
				r.log.Warn("dropping cached state", snap.logAttrs(), slog.Any("error", err))
				r.cache.Delete(key)
				r.reset(agg)
			} else {
				r.metrics.CacheHit(aggType)
				restored = true
			}
		} else {
			r.metrics.CacheMiss(aggType)
		}

		if !restored && r.snapshotter != nil {
			restored = r.loadSnapshot(ctx, agg)
		}
	}

	t := r.metrics.StoreLoadDuration(aggType)
	loaded, err := r.store.Load(ctx, aggType, aggID, WithFromVersion(agg.GetVersion()))
	t.ObserveDuration()
	if err != nil {
		return fmt.Errorf("load agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}
	if err = Replay(agg, r.decoder, loaded...); err != nil {
		return err
	}
	if agg.GetVersion() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrAggregateNotFound, aggType, aggID)
	}

	r.log.Debug(
		"loaded",
		aggAttr(agg),
		slog.Bool("snapshot", restored),
		slog.Int("num_events", len(loaded)),
	)

	r.remember(agg)
	return nil
}

// loadSnapshot applies the stored snapshot. A missing or unusable snapshot is
// not an error: the caller falls back to a full replay.
func (r *repository) loadSnapshot(ctx context.Context, agg Aggregate) bool {
	defer r.metrics.SnapshotLoadDuration(agg.GetAggType()).ObserveDuration()

	err := ApplySnapshot(ctx, r.snapshotter, agg)
	switch {
	case err == nil:
		r.log.Debug("snapshot applied", aggAttr(agg))
		return true
	case errors.Is(err, ErrSnapshotNotFound):
	default:
		r.log.Warn("ignoring snapshot", aggAttr(agg), slog.Any("error", err))
	}
	r.reset(agg)
	return false
}

// reset discards state a failed restore may have left behind.
func (r *repository) reset(agg Aggregate) {
	if rs, ok := agg.(interface{ ResetState() }); ok {
		rs.ResetState()
	}
	agg.setVersion(0)
	agg.setSeq(0)
}

func (r *repository) remember(agg Aggregate) {
	snap, err := CreateSnapshot(agg)
	if err != nil {
		r.log.Debug("not caching", aggAttr(agg), slog.Any("error", err))
		return
	}
	var opts []cache.PutOption
	if r.cacheTTL > 0 {
		opts = append(opts, cache.WithTTL(r.cacheTTL))
	}
	r.cache.Put(snapshotKey(agg.GetAggType(), agg.GetID()), snap, opts...)
}

func (r *repository) Save(ctx context.Context, agg Aggregate, saveOpts ...SaveOption) error {
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil
	}
	if err := checkIdentity(agg); err != nil {
		return err
	}

	var (
		aggType     = agg.GetAggType()
		aggID       = agg.GetID()
		saveOptions = newSaveOptions(saveOpts...)
		version     = agg.GetVersion()
		expect      = version - Version(len(uncommitted))
	)
	defer r.metrics.RepoSaveDuration(aggType).ObserveDuration()

	envelopes, err := NewEnvelopes(aggType, aggID, expect, saveOptions.metadata, r.newID, uncommitted...)
	if err != nil {
		return err
	}

	t := r.metrics.StoreAppendDuration(aggType)
	res, err := r.store.Append(ctx, aggType, aggID, expect, envelopes)
	t.ObserveDuration()
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(aggType)
			r.cache.Delete(snapshotKey(aggType, aggID))
		}
		return fmt.Errorf("save agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}
	if res == nil {
		return errors.New("append returned nil result")
	}

	agg.setSeq(res.LastSeq)
	agg.ClearUncommitted()
	r.metrics.EventsAppended(aggType, len(res.Envelopes))

	r.log.Debug(
		"saved",
		aggAttr(agg),
		slog.Int("num_events", len(envelopes)),
	)

	if r.snapshotter != nil && r.snapshotEvery > 0 &&
		expect.Uint64()/r.snapshotEvery != version.Uint64()/r.snapshotEvery {
		if _, err := r.CreateSnapshot(ctx, agg); err != nil {
			r.log.Warn("snapshot failed", aggAttr(agg), slog.Any("error", err))
		}
	}

	r.remember(agg)
	r.publish(ctx, aggType, res.Envelopes)
	return nil
}

// publish hands committed envelopes to the bus. The events are already
// durable, so failures are only reported.
func (r *repository) publish(ctx context.Context, aggType string, envelopes []Envelope) {
	if r.bus == nil || len(envelopes) == 0 {
		return
	}
	if err := r.bus.Publish(ctx, envelopes...); err != nil {
		r.metrics.BusPublishFailed(aggType)
		r.log.Error(
			"publish failed",
			slog.String("agg_type", aggType),
			slog.Uint64("last_seq", envelopes[len(envelopes)-1].Seq),
			slog.Any("error", err),
		)
	}
}

// CreateSnapshot stores the committed state of agg.
func (r *repository) CreateSnapshot(ctx context.Context, agg Aggregate) (*Snapshot, error) {
	if r.snapshotter == nil {
		return nil, ErrSnapshotterUnconfigured
	}
	defer r.metrics.SnapshotSaveDuration(agg.GetAggType()).ObserveDuration()

	ss, err := CreateSnapshot(agg)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	if err = r.snapshotter.SaveSnapshot(ctx, ss); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	r.log.Debug("snapshot saved", ss.logAttrs())
	return ss, nil
}

var _ Repository = &repository{}

// === TypedRepository ===

// TypedRepository is a Repository bound to one aggregate type.
type TypedRepository[T Aggregate] struct {
	r     Repository
	log   *slog.Logger
	newFn func() T
	keys  *perkey.Scheduler[string]
}

// NewTypedRepository wraps r. newFn returns a zero aggregate of type T.
func NewTypedRepository[T Aggregate](log *slog.Logger, r Repository, newFn func() T) *TypedRepository[T] {
	return &TypedRepository[T]{
		r:     r,
		newFn: newFn,
		keys:  perkey.New[string](),
		log:   log.With(slog.String("agg_type", newFn().GetAggType())),
	}
}

func (t *TypedRepository[T]) GetAggType() string { return t.newFn().GetAggType() }

// New returns an empty aggregate with the given id.
func (t *TypedRepository[T]) New(id string) T {
	a := t.newFn()
	a.SetID(id)
	return a
}

// FindByID loads the aggregate with the given id.
func (t *TypedRepository[T]) FindByID(ctx context.Context, id string, opts ...LoadOption) (a T, err error) {
	if id == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.New(id)
	if err = t.r.Load(ctx, a, opts...); err != nil {
		return a, err
	}
	return a, nil
}

func (t *TypedRepository[T]) Save(ctx context.Context, agg T, opts ...SaveOption) error {
	return t.r.Save(ctx, agg, opts...)
}

// Update loads the aggregate, runs fn and saves the result. Calls for the
// same id are serialized within this process; a conflict with another
// writer is still reported as ErrConcurrencyConflict.
func (t *TypedRepository[T]) Update(
	ctx context.Context,
	id string,
	fn func(agg T) error,
	opts ...SaveOption,
) (agg T, err error) {
	err = t.keys.DoContext(ctx, id, func() error {
		a, err := t.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := t.Save(ctx, a, opts...); err != nil {
			return err
		}
		agg = a
		return nil
	})
	return agg, err
}

// Create saves a new aggregate. fn raises the creation events.
func (t *TypedRepository[T]) Create(
	ctx context.Context,
	id string,
	fn func(agg T) error,
	opts ...SaveOption,
) (agg T, err error) {
	err = t.keys.DoContext(ctx, id, func() error {
		a := t.New(id)
		if err := fn(a); err != nil {
			return err
		}
		if err := t.Save(ctx, a, opts...); err != nil {
			return err
		}
		agg = a
		return nil
	})
	return agg, err
}
