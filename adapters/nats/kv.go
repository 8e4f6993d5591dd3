package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/vfs-es/ports/kv"
)

const DefaultKVBucket = "vfs_kv"

var ErrTTLUnsupported = errors.New("per-key ttl is not supported; set KvConfig.TTL")

type KvConfig struct {
	Connect Connector
	Log     *slog.Logger
	Bucket  string
	// TTL expires every key of the bucket.
	TTL      time.Duration
	MaxBytes int64
	Memory   bool
}

// KV is a kv.Store on a JetStream key-value bucket.
type KV struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
	log     *slog.Logger
}

func NewKV(ctx context.Context, cfg KvConfig) (*KV, error) {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultKVBucket
	}
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	kvCfg := jetstream.KeyValueConfig{
		Bucket:   bucket,
		Storage:  jetstream.FileStorage,
		TTL:      cfg.TTL,
		MaxBytes: cfg.MaxBytes,
	}
	if cfg.Memory {
		kvCfg.Storage = jetstream.MemoryStorage
	}
	if kvCfg.MaxBytes == 0 {
		kvCfg.MaxBytes = 64 * 1024 * 1024
	}
	bkt, err := js.CreateOrUpdateKeyValue(ctx, kvCfg)
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}

	return &KV{
		kv:      bkt,
		closeNc: closeNc,
		log:     log.With(slog.String("component", "nats_kv"), slog.String("bucket", bucket)),
	}, nil
}

func (k *KV) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if opts.TTL > 0 {
		return ErrTTLUnsupported
	}
	if _, err := k.kv.Put(ctx, key, entry.Data); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (k *KV) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("kv get %s: %w", key, err)
	}
	return kv.Entry{Data: v.Value()}, nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (k *KV) Close() error {
	k.closeNc()
	k.log.Debug("closed")
	return nil
}

var _ kv.Store = (*KV)(nil)
