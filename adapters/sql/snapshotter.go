package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codewandler/vfs-es/core/es"
)

type snapshotRow struct {
	AggregateType string `db:"aggregate_type"`
	AggregateID   string `db:"aggregate_id"`
	SnapshotID    string `db:"snapshot_id"`
	Version       uint64 `db:"version"`
	StreamSeq     uint64 `db:"stream_seq"`
	SchemaVersion int    `db:"schema_version"`
	Encoding      string `db:"encoding"`
	Checksum      string `db:"checksum"`
	Data          []byte `db:"data"`
	CreatedAt     string `db:"created_at"`
}

// Snapshotter keeps the latest snapshot per aggregate in the snapshots table.
type Snapshotter struct {
	db *DB
}

func NewSnapshotter(db *DB) *Snapshotter { return &Snapshotter{db: db} }

func (s *Snapshotter) SaveSnapshot(ctx context.Context, snap *es.Snapshot) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	q := s.db.Rebind(`INSERT INTO snapshots
		(aggregate_type, aggregate_id, snapshot_id, version, stream_seq, schema_version, encoding, checksum, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			version = excluded.version,
			stream_seq = excluded.stream_seq,
			schema_version = excluded.schema_version,
			encoding = excluded.encoding,
			checksum = excluded.checksum,
			data = excluded.data,
			created_at = excluded.created_at`)
	_, err := s.db.ExecContext(ctx, q,
		snap.ObjType, snap.ObjID, snap.SnapshotID, uint64(snap.ObjVersion), snap.StreamSeq,
		snap.SchemaVersion, snap.Encoding, snap.Checksum, snap.Data, formatTime(snap.CreatedAt),
	)
	if err != nil {
		return storageErr("save snapshot", err)
	}
	return nil
}

func (s *Snapshotter) LoadSnapshot(ctx context.Context, objType, objID string) (*es.Snapshot, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var row snapshotRow
	q := s.db.Rebind(`SELECT aggregate_type, aggregate_id, snapshot_id, version, stream_seq, schema_version,
		encoding, checksum, data, created_at FROM snapshots WHERE aggregate_type = ? AND aggregate_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, objType, objID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", es.ErrSnapshotNotFound, objType, objID)
		}
		return nil, storageErr("load snapshot", err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	snap := &es.Snapshot{
		SnapshotID:    row.SnapshotID,
		ObjID:         row.AggregateID,
		ObjType:       row.AggregateType,
		ObjVersion:    es.Version(row.Version),
		StreamSeq:     row.StreamSeq,
		CreatedAt:     createdAt,
		SchemaVersion: row.SchemaVersion,
		Encoding:      row.Encoding,
		Checksum:      row.Checksum,
		Data:          row.Data,
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Snapshotter) DeleteSnapshot(ctx context.Context, objType, objID string) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	q := s.db.Rebind(`DELETE FROM snapshots WHERE aggregate_type = ? AND aggregate_id = ?`)
	if _, err := s.db.ExecContext(ctx, q, objType, objID); err != nil {
		return storageErr("delete snapshot", err)
	}
	return nil
}

var _ es.Snapshotter = (*Snapshotter)(nil)
