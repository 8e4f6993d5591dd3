package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/estests"
	"github.com/codewandler/vfs-es/ports/kv"
)

func TestKV(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	connect := ReuseConnection(NewTestContainer(t))

	newKV := func(t *testing.T, bucket string) *KV {
		store, err := NewKV(t.Context(), KvConfig{Connect: connect, Bucket: bucket, Memory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("put get delete", func(t *testing.T) {
		type fruit struct {
			Name  string
			Count int
		}
		store := newKV(t, "fruits")
		_, err := kv.Get[fruit](t.Context(), store, "apple")
		require.ErrorIs(t, err, kv.ErrNotFound)

		require.NoError(t, kv.Put(t.Context(), store, "apple", fruit{Name: "apple", Count: 10}, kv.PutOptions{}))
		v, err := kv.Get[fruit](t.Context(), store, "apple")
		require.NoError(t, err)
		require.Equal(t, fruit{Name: "apple", Count: 10}, v)

		require.NoError(t, store.Delete(t.Context(), "apple"))
		require.NoError(t, store.Delete(t.Context(), "apple"))
		_, err = kv.Get[fruit](t.Context(), store, "apple")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("rejects bad keys and ttl", func(t *testing.T) {
		store := newKV(t, "rejects")
		require.ErrorIs(t, store.Put(t.Context(), "a b", kv.Entry{}, kv.PutOptions{}), kv.ErrInvalidKey)
		require.ErrorIs(t, store.Put(t.Context(), "a", kv.Entry{}, kv.PutOptions{TTL: 1}), ErrTTLUnsupported)
	})

	t.Run("checkpoints", func(t *testing.T) {
		cp := NewCpStore(newKV(t, "checkpoints"))
		pos, err := cp.Get(t.Context(), "file_views")
		require.NoError(t, err)
		require.Zero(t, pos)

		require.NoError(t, cp.Set(t.Context(), "file_views", 123))
		pos, err = cp.Get(t.Context(), "file_views")
		require.NoError(t, err)
		require.Equal(t, uint64(123), pos)
	})

	t.Run("snapshotter", func(t *testing.T) {
		n := 0
		estests.RunSnapshotterSuite(t, func(t *testing.T) es.Snapshotter {
			n++
			return NewSnapshotter(newKV(t, "snapshots_"+string(rune('a'+n))))
		})
	})
}
