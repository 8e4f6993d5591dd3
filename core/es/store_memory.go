package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryStore is a simple, correct (optimistic) store for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	seq     uint64
	all     []Envelope
	streams map[string][]int // aggID -> indexes into all
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		log:     slog.Default().With(slog.String("store", "memory")),
		streams: map[string][]int{},
	}
}

func (s *InMemoryStore) Load(
	_ context.Context,
	aggType,
	aggID string,
	opts ...StoreLoadOption,
) ([]Envelope, error) {
	fromVersion := NewStoreLoadOptions(opts...)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Envelope, 0)
	for _, idx := range s.streams[aggID] {
		e := s.all[idx]
		if e.AggregateType != aggType || e.Version <= fromVersion {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) LoadAll(_ context.Context, fromPosition uint64, limit int) ([]Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || fromPosition >= uint64(len(s.all)) {
		return []Envelope{}, nil
	}
	rest := s.all[fromPosition:]
	if len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]Envelope, len(rest))
	copy(out, rest)
	return out, nil
}

func (s *InMemoryStore) GetVersion(_ context.Context, aggID string) (Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionLocked(aggID), nil
}

func (s *InMemoryStore) GetGlobalPosition(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq, nil
}

func (s *InMemoryStore) versionLocked(aggID string) Version {
	idx := s.streams[aggID]
	if len(idx) == 0 {
		return 0
	}
	return s.all[idx[len(idx)-1]].Version
}

func (s *InMemoryStore) Append(
	_ context.Context,
	aggType string,
	aggID string,
	expectedVersion Version,
	events []Envelope,
) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.versionLocked(aggID); cur != expectedVersion {
		return nil, fmt.Errorf(
			"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
			ErrConcurrencyConflict, expectedVersion, cur, aggType, aggID,
		)
	}

	// validate everything before touching state
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if e.AggregateID != aggID || e.AggregateType != aggType {
			return nil, fmt.Errorf("envelope %s does not belong to %s/%s", e.ID, aggType, aggID)
		}
		if want := expectedVersion + Version(i+1); e.Version != want {
			return nil, fmt.Errorf("envelope %s has version %d, want %d", e.ID, e.Version, want)
		}
	}

	appended := make([]Envelope, 0, len(events))
	for _, e := range events {
		s.seq++
		e.Seq = s.seq
		s.all = append(s.all, e)
		s.streams[aggID] = append(s.streams[aggID], len(s.all)-1)
		appended = append(appended, e)
	}

	s.log.Debug(
		"append",
		slog.Uint64("last_seq", s.seq),
		slog.Int("num_events", len(appended)),
	)

	return &AppendResult{LastSeq: s.seq, Envelopes: appended}, nil
}

var _ EventStore = (*InMemoryStore)(nil)
