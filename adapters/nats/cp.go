package nats

import (
	"context"
	"errors"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/ports/kv"
)

// CpStore keeps projection checkpoints in a KV bucket.
type CpStore struct {
	kv kv.Store
}

func NewCpStore(store kv.Store) *CpStore { return &CpStore{kv: store} }

func (c *CpStore) key(name string) string { return "checkpoint." + name }

func (c *CpStore) Get(ctx context.Context, name string) (uint64, error) {
	pos, err := kv.Get[uint64](ctx, c.kv, c.key(name))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	return pos, err
}

func (c *CpStore) Set(ctx context.Context, name string, position uint64) error {
	return kv.Put(ctx, c.kv, c.key(name), position, kv.PutOptions{})
}

var _ es.CpStore = (*CpStore)(nil)
