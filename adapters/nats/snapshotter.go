package nats

import (
	"github.com/codewandler/vfs-es/core/es"
)

// NewSnapshotter keeps aggregate snapshots in the KV bucket.
func NewSnapshotter(kv *KV) *es.KVSnapshotter {
	return es.NewKVSnapshotter(kv)
}
