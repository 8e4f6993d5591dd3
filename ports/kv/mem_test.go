package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type Foo struct {
		Name string
		Age  int
	}
	s := NewMemStore()

	_, err := Get[Foo](t.Context(), s, "foobar")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put[Foo](t.Context(), s, "p1", Foo{Name: "P1", Age: 10}, PutOptions{}))
	require.NoError(t, Put[Foo](t.Context(), s, "p2", Foo{Name: "P2", Age: 20}, PutOptions{}))

	loaded, err := Get[Foo](t.Context(), s, "p1")
	require.NoError(t, err)
	require.Equal(t, Foo{Name: "P1", Age: 10}, loaded)

	require.NoError(t, s.Delete(t.Context(), "p1"))
	_, err = Get[Foo](t.Context(), s, "p1")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_Memory_TTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemStore()
	s.now = func() time.Time { return now }

	require.NoError(t, Put(t.Context(), s, "k", 1, PutOptions{TTL: time.Minute}))
	v, err := Get[int](t.Context(), s, "k")
	require.NoError(t, err)
	require.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, err = Get[int](t.Context(), s, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_ValidateKey(t *testing.T) {
	require.NoError(t, ValidateKey("snapshot.file.0b6f-11"))
	require.ErrorIs(t, ValidateKey(""), ErrInvalidKey)
	require.ErrorIs(t, ValidateKey("a b"), ErrInvalidKey)
	require.ErrorIs(t, Put(t.Context(), NewMemStore(), "a*b", 1, PutOptions{}), ErrInvalidKey)
}
