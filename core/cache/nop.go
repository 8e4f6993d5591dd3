package cache

type Nop[V any] struct{}

func NewNop[V any]() *Nop[V] { return &Nop[V]{} }

func (*Nop[V]) Get(string) (v V, ok bool)   { return v, false }
func (*Nop[V]) Put(string, V, ...PutOption) {}
func (*Nop[V]) Delete(string)               {}

var _ Cache[any] = (*Nop[any])(nil)
