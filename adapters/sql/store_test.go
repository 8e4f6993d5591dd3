package sql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/estests"
)

func TestEventStore_sqlite(t *testing.T) {
	estests.RunStoreSuite(t, func(t *testing.T) es.EventStore {
		return NewEventStore(NewTestSQLite(t))
	})
}

func TestSnapshotter_sqlite(t *testing.T) {
	estests.RunSnapshotterSuite(t, func(t *testing.T) es.Snapshotter {
		return NewSnapshotter(NewTestSQLite(t))
	})
}

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	db := NewTestPostgres(t)

	// the suites need empty tables per run
	truncate := func(t *testing.T) {
		_, err := db.ExecContext(t.Context(), `TRUNCATE events, snapshots RESTART IDENTITY`)
		require.NoError(t, err)
	}
	t.Run("store", func(t *testing.T) {
		estests.RunStoreSuite(t, func(t *testing.T) es.EventStore {
			truncate(t)
			return NewEventStore(db)
		})
	})
	t.Run("snapshotter", func(t *testing.T) {
		estests.RunSnapshotterSuite(t, func(t *testing.T) es.Snapshotter {
			truncate(t)
			return NewSnapshotter(db)
		})
	})
}

func TestMigrate(t *testing.T) {
	db := NewTestSQLite(t)
	require.NoError(t, db.Migrate(t.Context()), "migrating twice is a no-op")

	v, err := db.MigrationVersion(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

func TestOpen_unknownDialect(t *testing.T) {
	_, err := Open(t.Context(), Config{Dialect: "oracle"})
	require.Error(t, err)
}

func TestCpStore(t *testing.T) {
	cp := NewCpStore(NewTestSQLite(t))
	ctx := t.Context()

	pos, err := cp.Get(ctx, "p")
	require.NoError(t, err)
	require.Zero(t, pos)

	require.NoError(t, cp.Set(ctx, "p", 7))
	require.NoError(t, cp.Set(ctx, "p", 9))
	pos, err = cp.Get(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, uint64(9), pos)

	pos, err = cp.Get(ctx, "other")
	require.NoError(t, err)
	require.Zero(t, pos)
}
