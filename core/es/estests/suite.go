// Package estests holds behaviour tests for the es package and a contract
// suite that every EventStore implementation runs.
package estests

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/estests/domain"
)

// StoreFactory returns a fresh, empty store.
type StoreFactory func(t *testing.T) es.EventStore

const aggType = "counter"

func incs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = &domain.Incremented{Inc: 1}
	}
	return out
}

// RunStoreSuite checks the EventStore contract against stores built by newStore.
func RunStoreSuite(t *testing.T, newStore StoreFactory) {
	t.Run("empty", func(t *testing.T) {
		s := newStore(t)
		v, err := s.GetVersion(t.Context(), "a")
		require.NoError(t, err)
		require.Equal(t, es.Version(0), v)

		pos, err := s.GetGlobalPosition(t.Context())
		require.NoError(t, err)
		require.Zero(t, pos)

		loaded, err := s.Load(t.Context(), aggType, "a")
		require.NoError(t, err)
		require.Empty(t, loaded)

		all, err := s.LoadAll(t.Context(), 0, 10)
		require.NoError(t, err)
		require.Empty(t, all)
	})

	t.Run("append and load", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		res, err := es.AppendEvents(ctx, s, aggType, "a", 0, incs(2)...)
		require.NoError(t, err)
		require.Len(t, res.Envelopes, 2)
		require.Equal(t, uint64(2), res.LastSeq)
		require.Equal(t, uint64(1), res.Envelopes[0].Seq)

		_, err = es.AppendEvents(ctx, s, aggType, "b", 0, incs(1)...)
		require.NoError(t, err)
		_, err = es.AppendEvents(ctx, s, aggType, "a", 2, incs(3)...)
		require.NoError(t, err)

		loaded, err := s.Load(ctx, aggType, "a")
		require.NoError(t, err)
		require.Len(t, loaded, 5)
		for i, e := range loaded {
			require.Equal(t, es.Version(i+1), e.Version)
			require.Equal(t, "a", e.AggregateID)
			require.Equal(t, "incremented", e.Type)
			require.False(t, e.OccurredAt.IsZero())
			require.JSONEq(t, `{"inc":1}`, string(e.Data))
		}

		v, err := s.GetVersion(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, es.Version(5), v)

		pos, err := s.GetGlobalPosition(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(6), pos)
	})

	t.Run("load from version", func(t *testing.T) {
		s := newStore(t)
		_, err := es.AppendEvents(t.Context(), s, aggType, "a", 0, incs(4)...)
		require.NoError(t, err)

		loaded, err := s.Load(t.Context(), aggType, "a", es.WithFromVersion(2))
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		require.Equal(t, es.Version(3), loaded[0].Version)
		require.Equal(t, es.Version(4), loaded[1].Version)
	})

	t.Run("load all", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		for _, id := range []string{"a", "b", "c"} {
			_, err := es.AppendEvents(ctx, s, aggType, id, 0, incs(2)...)
			require.NoError(t, err)
		}

		all, err := s.LoadAll(ctx, 0, 100)
		require.NoError(t, err)
		require.Len(t, all, 6)
		for i, e := range all {
			require.Equal(t, uint64(i+1), e.Seq)
		}

		page, err := s.LoadAll(ctx, 2, 3)
		require.NoError(t, err)
		require.Len(t, page, 3)
		require.Equal(t, uint64(3), page[0].Seq)
		require.Equal(t, uint64(5), page[2].Seq)

		tail, err := s.LoadAll(ctx, 6, 100)
		require.NoError(t, err)
		require.Empty(t, tail)
	})

	t.Run("load all with zero limit", func(t *testing.T) {
		s := newStore(t)
		_, err := es.AppendEvents(t.Context(), s, aggType, "a", 0, incs(2)...)
		require.NoError(t, err)

		for _, limit := range []int{0, -1} {
			page, err := s.LoadAll(t.Context(), 0, limit)
			require.NoError(t, err)
			require.Empty(t, page, "limit %d", limit)
		}
	})

	t.Run("positions become visible in order", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		const (
			writers = 6
			each    = 10
		)
		var wg sync.WaitGroup
		for w := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := fmt.Sprintf("agg-%d", w)
				for v := range each {
					_, err := es.AppendEvents(ctx, s, aggType, id, es.Version(v), incs(1)...)
					assert.NoError(t, err)
				}
			}()
		}
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		// a reader that checkpoints the last position it saw must never miss one
		var pos uint64
		for pos < writers*each {
			page, err := s.LoadAll(ctx, pos, 7)
			require.NoError(t, err)
			for _, e := range page {
				require.Equal(t, pos+1, e.Seq, "gap after position %d", pos)
				pos = e.Seq
			}
			if len(page) == 0 {
				select {
				case <-done:
					got, err := s.GetGlobalPosition(ctx)
					require.NoError(t, err)
					require.Equal(t, pos, got)
					if pos < writers*each {
						t.Fatalf("stopped at position %d", pos)
					}
				case <-time.After(time.Millisecond):
				}
			}
		}
	})

	t.Run("metadata round trip", func(t *testing.T) {
		s := newStore(t)
		md := es.Metadata{ActorID: "u1", CorrelationID: "c1", Extra: map[string]string{"k": "v"}}
		envs, err := es.NewEnvelopes(aggType, "a", 0, md, nil, incs(1)...)
		require.NoError(t, err)
		_, err = s.Append(t.Context(), aggType, "a", 0, envs)
		require.NoError(t, err)

		loaded, err := s.Load(t.Context(), aggType, "a")
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		require.Equal(t, md, loaded[0].Metadata)
		require.Equal(t, envs[0].ID, loaded[0].ID)
		require.True(t, envs[0].OccurredAt.Equal(loaded[0].OccurredAt))
	})

	t.Run("stale expected version writes nothing", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		_, err := es.AppendEvents(ctx, s, aggType, "a", 0, incs(2)...)
		require.NoError(t, err)

		_, err = es.AppendEvents(ctx, s, aggType, "a", 0, incs(1)...)
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
		require.True(t, es.IsRetryable(err))

		_, err = es.AppendEvents(ctx, s, aggType, "a", 5, incs(1)...)
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		v, err := s.GetVersion(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, es.Version(2), v)
		pos, err := s.GetGlobalPosition(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(2), pos)
	})

	t.Run("no events", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Append(t.Context(), aggType, "a", 0, nil)
		require.ErrorIs(t, err, es.ErrStoreNoEvents)
	})

	t.Run("concurrent appends from same base", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		_, err := es.AppendEvents(ctx, s, aggType, "a", 0, incs(1)...)
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := es.AppendEvents(ctx, s, aggType, "a", 1, incs(2)...)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case es.IsRetryable(err):
					conflicts++
				default:
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, ok)
		require.Equal(t, writers-1, conflicts)

		loaded, err := s.Load(ctx, aggType, "a")
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		for i, e := range loaded {
			require.Equal(t, es.Version(i+1), e.Version)
		}
	})
}

// SnapshotterFactory returns a fresh, empty snapshotter.
type SnapshotterFactory func(t *testing.T) es.Snapshotter

// RunSnapshotterSuite checks the Snapshotter contract.
func RunSnapshotterSuite(t *testing.T, newSnapshotter SnapshotterFactory) {
	newSnap := func(t *testing.T, id string, count uint8) *es.Snapshot {
		a := domain.New(id)
		require.NoError(t, a.IncBy(count))
		a.ClearUncommitted()
		s, err := es.CreateSnapshot(a)
		require.NoError(t, err)
		return s
	}

	t.Run("not found", func(t *testing.T) {
		s := newSnapshotter(t)
		_, err := s.LoadSnapshot(t.Context(), aggType, "missing")
		require.ErrorIs(t, err, es.ErrSnapshotNotFound)
		require.NoError(t, s.DeleteSnapshot(t.Context(), aggType, "missing"))
	})

	t.Run("save load delete", func(t *testing.T) {
		s := newSnapshotter(t)
		snap := newSnap(t, "a", 3)
		require.NoError(t, s.SaveSnapshot(t.Context(), snap))

		loaded, err := s.LoadSnapshot(t.Context(), aggType, "a")
		require.NoError(t, err)
		require.Equal(t, snap.SnapshotID, loaded.SnapshotID)
		require.Equal(t, snap.ObjVersion, loaded.ObjVersion)
		require.Equal(t, snap.Checksum, loaded.Checksum)
		require.Equal(t, snap.Data, loaded.Data)
		require.NoError(t, loaded.Verify())

		require.NoError(t, s.DeleteSnapshot(t.Context(), aggType, "a"))
		_, err = s.LoadSnapshot(t.Context(), aggType, "a")
		require.ErrorIs(t, err, es.ErrSnapshotNotFound)
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newSnapshotter(t)
		require.NoError(t, s.SaveSnapshot(t.Context(), newSnap(t, "a", 1)))
		newer := newSnap(t, "a", 2)
		require.NoError(t, s.SaveSnapshot(t.Context(), newer))

		loaded, err := s.LoadSnapshot(t.Context(), aggType, "a")
		require.NoError(t, err)
		require.Equal(t, newer.SnapshotID, loaded.SnapshotID)
	})
}
