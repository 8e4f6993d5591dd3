// Package sql persists the event store, snapshots, checkpoints and the file
// read model in sqlite or postgres through sqlx.
package sql

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/codewandler/vfs-es/core/es"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unknown sql dialect %q", d)
	}
}

//go:embed migrations
var migrationsFS embed.FS

type Config struct {
	Dialect Dialect
	DSN     string
	// OpTimeout bounds every store call. Zero disables it.
	OpTimeout time.Duration
	Log       *slog.Logger
}

// DB is a connection pool bound to one dialect.
type DB struct {
	*sqlx.DB
	dialect   Dialect
	opTimeout time.Duration
	log       *slog.Logger
}

// Open connects and pings the database. A sqlite pool is limited to one
// connection, so its transactions never interleave.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver, err := cfg.Dialect.driverName()
	if err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", es.ErrStorage, cfg.Dialect, err)
	}
	if cfg.Dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", es.ErrStorage, cfg.Dialect, err)
	}

	if cfg.Dialect == DialectSQLite {
		for _, pragma := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA journal_mode = WAL",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("%w: %s: %w", es.ErrStorage, pragma, err)
			}
		}
	}

	log.Debug("database opened", slog.String("dialect", string(cfg.Dialect)))
	return &DB{
		DB:        db,
		dialect:   cfg.Dialect,
		opTimeout: cfg.OpTimeout,
		log:       log.With(slog.String("component", "sql")),
	}, nil
}

// NewDB wraps an existing pool, e.g. one backed by sqlmock.
func NewDB(db *sqlx.DB, dialect Dialect, log *slog.Logger) *DB {
	if log == nil {
		log = slog.Default()
	}
	return &DB{DB: db, dialect: dialect, log: log.With(slog.String("component", "sql"))}
}

func (db *DB) Dialect() Dialect { return db.dialect }

// Migrate applies the embedded migrations of the dialect.
func (db *DB) Migrate(ctx context.Context) error {
	provider, err := db.migrations()
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: migrate: %w", es.ErrStorage, err)
	}
	for _, r := range results {
		db.log.Info("migration applied", slog.String("source", r.Source.Path), slog.Duration("took", r.Duration))
	}
	return nil
}

// MigrationVersion returns the current schema version.
func (db *DB) MigrationVersion(ctx context.Context) (int64, error) {
	provider, err := db.migrations()
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func (db *DB) migrations() (*goose.Provider, error) {
	dir, err := fs.Sub(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		return nil, err
	}
	gooseDialect := goose.DialectSQLite3
	if db.dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}
	return goose.NewProvider(gooseDialect, db.DB.DB, dir)
}

// withTimeout applies the configured per-operation timeout.
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.opTimeout)
}

// inTx runs fn in a transaction and rolls back when fn fails.
func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", es.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.log.Warn("rollback failed", slog.Any("error", rbErr))
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", es.ErrStorage, err)
	}
	return nil
}

// isUniqueViolation recognizes unique constraint failures of both drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", es.ErrStorage, op, err)
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q: %w", es.ErrCorruptEvent, s, err)
	}
	return t, nil
}
