// Package es provides the event sourcing building blocks the vfs domain is
// written against.
//
// # Aggregates
//
// An aggregate embeds [BaseAggregate] and mutates its state only in Apply.
// Business methods validate their input, build an event and pass it to
// [RaiseAndApply], which applies it, stages it as uncommitted and advances the
// version by one:
//
//	type Counter struct {
//	    es.BaseAggregate
//	    Count int
//	}
//
//	func (c *Counter) Inc() error {
//	    return es.RaiseAndApply(c, &Incremented{By: 1})
//	}
//
// # Store
//
// [EventStore] is an append-only log. Append succeeds only when the stored
// version equals the expected version; otherwise it fails with
// [ErrConcurrencyConflict] and writes nothing. Every appended event gets a
// global position ([Envelope.Seq]) that projections use as their checkpoint.
// [InMemoryStore] is the reference implementation; adapters/sql provides the
// durable one.
//
// # Repository
//
// [Repository] rebuilds aggregates from their events, optionally starting from
// a [Snapshot] or a cached state, and saves uncommitted events. After a
// successful append the new envelopes are published to the configured
// [EventBus]. [TypedRepository] binds a repository to one aggregate type and
// serializes updates per aggregate id:
//
//	files := es.NewTypedRepository(log, repo, func() *File { return &File{} })
//	f, err := files.Update(ctx, id, func(f *File) error { return f.Rename("b.txt", actor) })
//
// # Projections
//
// A [Projection] folds events into a read model and stores the position it
// has reached. [CatchUp] resumes from that position, [Rebuild] starts over from
// zero, and a [Consumer] keeps a projection current in the background:
//
//	c := es.NewConsumer(store, registry, proj, es.WithBus(bus))
//	err := c.Start(ctx)
//	defer c.Stop()
//
// # Environment
//
// [Env] bundles a store, registry, repository and consumers with a shared
// lifetime. Tests use [StartTestEnv].
package es
