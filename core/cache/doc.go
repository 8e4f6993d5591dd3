// Package cache provides a small typed cache interface with an LRU
// implementation and a no-op one.
//
// The repository in core/es uses it to keep recently loaded aggregate
// state in memory:
//
//	c := cache.NewLRU[*es.Snapshot](cache.LRUOpts{Size: 1000})
//	c.Put("file/8c1f", snap, cache.WithTTL(5*time.Minute))
//
// Expired entries are evicted lazily on access.
package cache
