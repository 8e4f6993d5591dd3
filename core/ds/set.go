// Package ds holds small generic data structures shared by the domain.
package ds

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
)

// Set is a set of ordered values. Values and the JSON form are always sorted,
// so two equal sets encode to the same bytes.
//
// Add, Remove and Merge mutate the receiver; Union, Intersect and Copy
// return new sets. The zero value is an empty set ready for use.
type Set[T cmp.Ordered] struct {
	items map[T]struct{}
}

func NewSet[T cmp.Ordered](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(items))}
	for _, v := range items {
		s.items[v] = struct{}{}
	}
	return s
}

func (s *Set[T]) String() string { return fmt.Sprintf("%v", s.Values()) }

func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Set[T]) IsEmpty() bool { return s.Len() == 0 }

// Add reports whether v was not yet present.
func (s *Set[T]) Add(v T) bool {
	if s.items == nil {
		s.items = map[T]struct{}{}
	}
	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = struct{}{}
	return true
}

func (s *Set[T]) Remove(vs ...T) {
	for _, v := range vs {
		delete(s.items, v)
	}
}

func (s *Set[T]) Contains(v T) bool {
	if s == nil {
		return false
	}
	_, ok := s.items[v]
	return ok
}

func (s *Set[T]) ContainsAll(vs ...T) bool {
	for _, v := range vs {
		if !s.Contains(v) {
			return false
		}
	}
	return true
}

func (s *Set[T]) ContainsAny(vs ...T) bool {
	for _, v := range vs {
		if s.Contains(v) {
			return true
		}
	}
	return false
}

// Values returns the members in ascending order.
func (s *Set[T]) Values() []T {
	if s == nil {
		return []T{}
	}
	out := make([]T, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (s *Set[T]) Copy() *Set[T] { return NewSet(s.Values()...) }

func (s *Set[T]) Merge(other *Set[T]) {
	for _, v := range other.Values() {
		s.Add(v)
	}
}

func (s *Set[T]) Union(other *Set[T]) *Set[T] {
	out := s.Copy()
	out.Merge(other)
	return out
}

func (s *Set[T]) Intersect(other *Set[T]) *Set[T] {
	out := NewSet[T]()
	for _, v := range s.Values() {
		if other.Contains(v) {
			out.Add(v)
		}
	}
	return out
}

func (s *Set[T]) Equal(other *Set[T]) bool {
	return s.Len() == other.Len() && s.ContainsAll(other.Values()...)
}

func (s *Set[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.Values()) }

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = *NewSet(items...)
	return nil
}
