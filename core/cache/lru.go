package cache

import (
	"container/list"
	"sync"
	"time"
)

const defaultSize = 128

type LRUOpts struct {
	Size int
}

type entry[V any] struct {
	key       string
	val       V
	expiresAt time.Time
}

// LRU is a size bounded cache with optional per-entry TTL.
type LRU[V any] struct {
	mu    sync.Mutex
	size  int
	ll    *list.List
	items map[string]*list.Element
	now   func() time.Time
}

func NewLRU[V any](opts LRUOpts) *LRU[V] {
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}
	return &LRU[V]{
		size:  opts.Size,
		ll:    list.New(),
		items: make(map[string]*list.Element, opts.Size),
		now:   time.Now,
	}
}

func (l *LRU[V]) Get(key string) (v V, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ele, ok := l.items[key]
	if !ok {
		return v, false
	}
	e := ele.Value.(*entry[V])
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		l.removeLocked(ele)
		return v, false
	}
	l.ll.MoveToFront(ele)
	return e.val, true
}

func (l *LRU[V]) Put(key string, val V, opts ...PutOption) {
	o := putOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	var expiresAt time.Time
	if o.ttl > 0 {
		expiresAt = l.now().Add(o.ttl)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ele, ok := l.items[key]; ok {
		e := ele.Value.(*entry[V])
		e.val, e.expiresAt = val, expiresAt
		l.ll.MoveToFront(ele)
		return
	}

	l.items[key] = l.ll.PushFront(&entry[V]{key: key, val: val, expiresAt: expiresAt})
	if l.ll.Len() > l.size {
		l.removeLocked(l.ll.Back())
	}
}

func (l *LRU[V]) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ele, ok := l.items[key]; ok {
		l.removeLocked(ele)
	}
}

func (l *LRU[V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ll.Len()
}

func (l *LRU[V]) removeLocked(ele *list.Element) {
	l.ll.Remove(ele)
	delete(l.items, ele.Value.(*entry[V]).key)
}

var _ Cache[any] = (*LRU[any])(nil)
