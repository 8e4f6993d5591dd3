package es

import (
	"context"
	"errors"
	"fmt"

	"github.com/codewandler/vfs-es/ports/kv"
)

// KVSnapshotter keeps one snapshot per aggregate in a key-value store.
type KVSnapshotter struct {
	store kv.Store
}

func NewKVSnapshotter(store kv.Store) *KVSnapshotter {
	return &KVSnapshotter{store: store}
}

func (k *KVSnapshotter) key(objType, objID string) string {
	return fmt.Sprintf("snapshot.%s.%s", objType, objID)
}

func (k *KVSnapshotter) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	return kv.Put(ctx, k.store, k.key(snapshot.ObjType, snapshot.ObjID), snapshot, kv.PutOptions{})
}

func (k *KVSnapshotter) LoadSnapshot(ctx context.Context, objType, objID string) (*Snapshot, error) {
	s, err := kv.Get[Snapshot](ctx, k.store, k.key(objType, objID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot %s/%s: %w", objType, objID, err)
	}
	return &s, nil
}

func (k *KVSnapshotter) DeleteSnapshot(ctx context.Context, objType, objID string) error {
	err := k.store.Delete(ctx, k.key(objType, objID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

var _ Snapshotter = (*KVSnapshotter)(nil)
