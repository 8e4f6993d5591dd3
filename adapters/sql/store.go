package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/codewandler/vfs-es/core/es"
)

type eventRow struct {
	Position      uint64 `db:"position"`
	ID            string `db:"id"`
	AggregateID   string `db:"aggregate_id"`
	AggregateType string `db:"aggregate_type"`
	EventType     string `db:"event_type"`
	EventData     string `db:"event_data"`
	Version       uint64 `db:"version"`
	OccurredAt    string `db:"occurred_at"`
	Metadata      string `db:"metadata"`
}

func (r eventRow) envelope() (es.Envelope, error) {
	at, err := parseTime(r.OccurredAt)
	if err != nil {
		return es.Envelope{}, err
	}
	env := es.Envelope{
		ID:            r.ID,
		Seq:           r.Position,
		Version:       es.Version(r.Version),
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		Type:          r.EventType,
		OccurredAt:    at,
		Data:          json.RawMessage(r.EventData),
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &env.Metadata); err != nil {
			return es.Envelope{}, fmt.Errorf("%w: metadata of %s: %w", es.ErrCorruptEvent, r.ID, err)
		}
	}
	return env, nil
}

const selectEvents = `SELECT position, id, aggregate_id, aggregate_type, event_type, event_data, version, occurred_at, metadata FROM events`

// EventStore is the durable es.EventStore.
type EventStore struct {
	db  *DB
	log *slog.Logger
}

func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db, log: db.log.With(slog.String("store", "events"))}
}

func (s *EventStore) Append(
	ctx context.Context,
	aggType string,
	aggID string,
	expectedVersion es.Version,
	events []es.Envelope,
) (*es.AppendResult, error) {
	if len(events) == 0 {
		return nil, es.ErrStoreNoEvents
	}
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if e.AggregateID != aggID || e.AggregateType != aggType {
			return nil, fmt.Errorf("envelope %s does not belong to %s/%s", e.ID, aggType, aggID)
		}
		if want := expectedVersion + es.Version(i+1); e.Version != want {
			return nil, fmt.Errorf("envelope %s has version %d, want %d", e.ID, e.Version, want)
		}
	}

	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	appended := make([]es.Envelope, 0, len(events))
	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.lockAppends(ctx, tx); err != nil {
			return err
		}
		var current uint64
		q := tx.Rebind(`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`)
		if err := tx.GetContext(ctx, &current, q, aggID); err != nil {
			return storageErr("read version", err)
		}
		if es.Version(current) != expectedVersion {
			return fmt.Errorf(
				"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
				es.ErrConcurrencyConflict, expectedVersion, current, aggType, aggID,
			)
		}

		insert := tx.Rebind(`INSERT INTO events
			(id, aggregate_id, aggregate_type, event_type, event_data, version, occurred_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING position`)
		for _, e := range events {
			md, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			var pos uint64
			err = tx.GetContext(ctx, &pos, insert,
				e.ID, e.AggregateID, e.AggregateType, e.Type, string(e.Data),
				uint64(e.Version), formatTime(e.OccurredAt), string(md),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: version %d of %s/%s written concurrently: %w",
						es.ErrConcurrencyConflict, e.Version, aggType, aggID, err)
				}
				return storageErr("insert event", err)
			}
			e.Seq = pos
			appended = append(appended, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	last := appended[len(appended)-1].Seq
	s.log.Debug("append", slog.String("agg_id", aggID), slog.Uint64("last_seq", last), slog.Int("num_events", len(appended)))
	return &es.AppendResult{LastSeq: last, Envelopes: appended}, nil
}

// appendLockKey is the advisory lock every postgres append holds until commit.
const appendLockKey = 0x7666735f6576 // "vfs_ev"

// lockAppends serializes appends on postgres. A BIGSERIAL position is taken
// at insert time, so without the lock a later position could commit first
// and a reader checkpointing past it would never see the earlier one.
// sqlite pools a single connection and needs no lock.
func (s *EventStore) lockAppends(ctx context.Context, tx *sqlx.Tx) error {
	if s.db.dialect != DialectPostgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return storageErr("lock appends", err)
	}
	return nil
}

func (s *EventStore) query(ctx context.Context, q string, args ...any) ([]es.Envelope, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, storageErr("load events", err)
	}
	out := make([]es.Envelope, 0, len(rows))
	for _, r := range rows {
		env, err := r.envelope()
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (s *EventStore) Load(ctx context.Context, aggType, aggID string, opts ...es.StoreLoadOption) ([]es.Envelope, error) {
	from := es.NewStoreLoadOptions(opts...)
	return s.query(ctx,
		selectEvents+` WHERE aggregate_type = ? AND aggregate_id = ? AND version > ? ORDER BY version`,
		aggType, aggID, uint64(from),
	)
}

func (s *EventStore) LoadAll(ctx context.Context, fromPosition uint64, limit int) ([]es.Envelope, error) {
	if limit <= 0 {
		return []es.Envelope{}, nil
	}
	return s.query(ctx, selectEvents+` WHERE position > ? ORDER BY position LIMIT ?`, fromPosition, limit)
}

func (s *EventStore) scalar(ctx context.Context, q string, args ...any) (uint64, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var v sql.NullInt64
	if err := s.db.GetContext(ctx, &v, s.db.Rebind(q), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, storageErr("read scalar", err)
	}
	return uint64(v.Int64), nil
}

func (s *EventStore) GetVersion(ctx context.Context, aggID string) (es.Version, error) {
	v, err := s.scalar(ctx, `SELECT MAX(version) FROM events WHERE aggregate_id = ?`, aggID)
	return es.Version(v), err
}

func (s *EventStore) GetGlobalPosition(ctx context.Context) (uint64, error) {
	return s.scalar(ctx, `SELECT MAX(position) FROM events`)
}

var _ es.EventStore = (*EventStore)(nil)
