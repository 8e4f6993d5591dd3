package sql

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/estests/domain"
)

func setupStoreMock(t *testing.T) (*EventStore, sqlmock.Sqlmock) {
	return setupDialectMock(t, DialectPostgres)
}

func setupDialectMock(t *testing.T, dialect Dialect) (*EventStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewEventStore(NewDB(sqlx.NewDb(conn, "sqlmock"), dialect, nil)), mock
}

func envelopes(t *testing.T, expect es.Version, n int) []es.Envelope {
	t.Helper()
	events := make([]any, n)
	for i := range events {
		events[i] = &domain.Incremented{Inc: 1}
	}
	envs, err := es.NewEnvelopes("counter", "a", expect, es.Metadata{}, nil, events...)
	require.NoError(t, err)
	return envs
}

const (
	versionQuery = `SELECT COALESCE\(MAX\(version\), 0\) FROM events WHERE aggregate_id = \?`
	insertQuery  = `INSERT INTO events`
	lockQuery    = `SELECT pg_advisory_xact_lock\(\$1\)`
)

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(lockQuery).WithArgs(appendLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestEventStore_Append_rollback(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "version mismatch",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectLock(mock)
				mock.ExpectQuery(versionQuery).WithArgs("a").
					WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(2))
				mock.ExpectRollback()
			},
			wantErr: es.ErrConcurrencyConflict,
		},
		{
			name: "unique violation from a racing writer",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectLock(mock)
				mock.ExpectQuery(versionQuery).WithArgs("a").
					WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
				mock.ExpectQuery(insertQuery).WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(1))
				mock.ExpectQuery(insertQuery).WillReturnError(&pgconn.PgError{Code: "23505"})
				mock.ExpectRollback()
			},
			wantErr: es.ErrConcurrencyConflict,
		},
		{
			name: "insert fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectLock(mock)
				mock.ExpectQuery(versionQuery).WithArgs("a").
					WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
				mock.ExpectQuery(insertQuery).WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantErr: es.ErrStorage,
		},
		{
			name: "commit fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectLock(mock)
				mock.ExpectQuery(versionQuery).WithArgs("a").
					WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
				mock.ExpectQuery(insertQuery).WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(1))
				mock.ExpectQuery(insertQuery).WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(2))
				mock.ExpectCommit().WillReturnError(errors.New("connection reset"))
			},
			wantErr: es.ErrStorage,
		},
		{
			name: "append lock fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(lockQuery).WithArgs(appendLockKey).WillReturnError(errors.New("lock timeout"))
				mock.ExpectRollback()
			},
			wantErr: es.ErrStorage,
		},
		{
			name: "begin fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("pool closed"))
			},
			wantErr: es.ErrStorage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupStoreMock(t)
			tt.setup(mock)

			res, err := store.Append(t.Context(), "counter", "a", 0, envelopes(t, 0, 2))
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, res)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventStore_Append_commit(t *testing.T) {
	store, mock := setupStoreMock(t)
	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectQuery(versionQuery).WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
	mock.ExpectQuery(insertQuery).WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(41))
	mock.ExpectQuery(insertQuery).WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(42))
	mock.ExpectCommit()

	res, err := store.Append(t.Context(), "counter", "a", 0, envelopes(t, 0, 2))
	require.NoError(t, err)
	require.Equal(t, uint64(42), res.LastSeq)
	require.Equal(t, uint64(41), res.Envelopes[0].Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_Append_sqliteTakesNoLock(t *testing.T) {
	store, mock := setupDialectMock(t, DialectSQLite)
	mock.ExpectBegin()
	mock.ExpectQuery(versionQuery).WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
	mock.ExpectQuery(insertQuery).WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(1))
	mock.ExpectCommit()

	_, err := store.Append(t.Context(), "counter", "a", 0, envelopes(t, 0, 1))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_LoadAll_zeroLimit(t *testing.T) {
	store, mock := setupStoreMock(t)
	envs, err := store.LoadAll(t.Context(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, envs)
	require.NoError(t, mock.ExpectationsWereMet(), "no query for an empty page")
}

func TestEventStore_Append_rejectsForeignEnvelopes(t *testing.T) {
	store, mock := setupStoreMock(t)

	_, err := store.Append(t.Context(), "counter", "b", 0, envelopes(t, 0, 1))
	require.Error(t, err)
	_, err = store.Append(t.Context(), "counter", "a", 1, envelopes(t, 0, 1))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "nothing reaches the database")
}

func TestEventStore_Load_corruptRow(t *testing.T) {
	store, mock := setupStoreMock(t)
	cols := []string{"position", "id", "aggregate_id", "aggregate_type", "event_type", "event_data", "version", "occurred_at", "metadata"}
	mock.ExpectQuery(`SELECT position, id`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "e1", "a", "counter", "incremented", `{"inc":1}`, 1, "yesterday", "{}"))

	_, err := store.Load(t.Context(), "counter", "a")
	require.ErrorIs(t, err, es.ErrCorruptEvent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_GetVersion_empty(t *testing.T) {
	store, mock := setupStoreMock(t)
	mock.ExpectQuery(`SELECT MAX\(version\) FROM events`).WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	v, err := store.GetVersion(t.Context(), "a")
	require.NoError(t, err)
	require.Zero(t, v)
	require.NoError(t, mock.ExpectationsWereMet())
}
