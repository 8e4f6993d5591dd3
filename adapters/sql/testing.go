package sql

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Cleanup(func())
	TempDir() string
}

// NewTestSQLite opens a migrated sqlite database in a temporary directory.
func NewTestSQLite(t Testing) *DB {
	db, err := Open(t.Context(), Config{
		Dialect: DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "vfs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(t.Context()))
	return db
}

// NewTestPostgres starts a postgres container and returns a migrated
// database on it.
func NewTestPostgres(t Testing) *DB {
	ctx := t.Context()
	pgC, err := testcontainers.Run(
		ctx, "postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "vfs",
			"POSTGRES_PASSWORD": "vfs",
			"POSTGRES_DB":       "vfs",
		}),
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	ip, err := pgC.ContainerIP(ctx)
	require.NoError(t, err)
	t.Logf("postgres ip: %s", ip)

	db, err := Open(ctx, Config{
		Dialect: DialectPostgres,
		DSN:     fmt.Sprintf("postgres://vfs:vfs@%s:5432/vfs?sslmode=disable", ip),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}
