package sql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/codewandler/vfs-es/core/es"
)

// CpStore keeps projection positions in projection_positions.
type CpStore struct {
	db *DB
}

func NewCpStore(db *DB) *CpStore { return &CpStore{db: db} }

func getPosition(ctx context.Context, q sqlx.ExtContext, name string) (uint64, error) {
	var pos uint64
	err := sqlx.GetContext(ctx, q, &pos,
		q.Rebind(`SELECT position FROM projection_positions WHERE projection_name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("read checkpoint", err)
	}
	return pos, nil
}

func setPosition(ctx context.Context, ex sqlx.ExtContext, name string, pos uint64) error {
	_, err := ex.ExecContext(ctx, ex.Rebind(`INSERT INTO projection_positions (projection_name, position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (projection_name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`),
		name, pos, formatTime(time.Now()))
	if err != nil {
		return storageErr("write checkpoint", err)
	}
	return nil
}

func (s *CpStore) Get(ctx context.Context, name string) (uint64, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()
	return getPosition(ctx, s.db, name)
}

func (s *CpStore) Set(ctx context.Context, name string, position uint64) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()
	return setPosition(ctx, s.db, name, position)
}

var _ es.CpStore = (*CpStore)(nil)
