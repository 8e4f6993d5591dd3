package cache

import "time"

type putOptions struct {
	ttl time.Duration
}

type PutOption func(*putOptions)

func WithTTL(ttl time.Duration) PutOption {
	return func(o *putOptions) { o.ttl = ttl }
}

type Cache[V any] interface {
	Get(key string) (V, bool)
	Put(key string, val V, opts ...PutOption)
	Delete(key string)
}
