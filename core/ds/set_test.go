package ds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := NewSet("write", "read")
	require.True(t, s.Add("admin"))
	require.False(t, s.Add("read"))
	require.Equal(t, 3, s.Len())
	require.Equal(t, []string{"admin", "read", "write"}, s.Values())
	require.True(t, s.ContainsAll("read", "write"))
	require.False(t, s.ContainsAll("read", "share"))
	require.True(t, s.ContainsAny("share", "admin"))

	s.Remove("admin", "missing")
	require.Equal(t, []string{"read", "write"}, s.Values())
}

func TestSet_zeroAndNil(t *testing.T) {
	var s Set[int]
	require.True(t, s.IsEmpty())
	require.True(t, s.Add(3))
	require.True(t, s.Contains(3))

	var n *Set[int]
	require.Equal(t, 0, n.Len())
	require.False(t, n.Contains(1))
	require.Empty(t, n.Values())
}

func TestSet_algebra(t *testing.T) {
	a := NewSet(1, 2, 3)
	b := NewSet(3, 4)

	require.Equal(t, []int{1, 2, 3, 4}, a.Union(b).Values())
	require.Equal(t, []int{3}, a.Intersect(b).Values())
	require.Equal(t, []int{1, 2, 3}, a.Values())

	c := a.Copy()
	c.Add(9)
	require.False(t, a.Contains(9))
	require.True(t, NewSet(3, 2, 1).Equal(a))
	require.False(t, c.Equal(a))

	a.Merge(b)
	require.Equal(t, []int{1, 2, 3, 4}, a.Values())
}

func TestSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewSet("write", "read"))
	require.NoError(t, err)
	require.JSONEq(t, `["read","write"]`, string(data))

	var s Set[string]
	require.NoError(t, json.Unmarshal([]byte(`["share","read","read"]`), &s))
	require.Equal(t, []string{"read", "share"}, s.Values())

	type wrapper struct {
		Perms *Set[string] `json:"perms"`
	}
	data, err = json.Marshal(wrapper{Perms: NewSet("b", "a")})
	require.NoError(t, err)
	require.JSONEq(t, `{"perms":["a","b"]}`, string(data))
}
