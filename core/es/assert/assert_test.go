package assert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssert(t *testing.T) {
	mustBeTrue := True(true, "must be true")
	require.True(t, mustBeTrue.Eval())
	require.NoError(t, mustBeTrue.Check())
	require.Equal(t, "must be true", mustBeTrue.String())

	mustBeFalse := False(false, "must be false")
	require.True(t, mustBeFalse.Eval())
	require.NoError(t, mustBeFalse.Check())

	require.NoError(t, All(mustBeTrue, mustBeFalse).Check())

	err := All(mustBeTrue, True(false, "foo")).Check()
	require.ErrorIs(t, err, ErrFailed)
	require.Contains(t, err.Error(), "foo")

	require.False(t, Not(mustBeTrue).Eval())
	require.Error(t, Assert(Not(mustBeTrue))())
}

func TestStrings(t *testing.T) {
	require.NoError(t, NotEmpty("a", "name").Check())
	require.Error(t, NotEmpty("  ", "name").Check())

	require.NoError(t, MaxLen("äöü", 3, "len").Check())
	require.Error(t, MaxLen("abcd", 3, "len").Check())
}

func TestBecause(t *testing.T) {
	errInvalid := errors.New("invalid")

	err := Because(errInvalid, NotEmpty("", "name is required")).Check()
	require.ErrorIs(t, err, errInvalid)
	require.NotErrorIs(t, err, ErrFailed)
	require.EqualError(t, err, "invalid: name is required")

	require.NoError(t, Because(errInvalid, NotEmpty("x", "name")).Check())
}
