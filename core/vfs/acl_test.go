package vfs_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/ds"
	"github.com/codewandler/vfs-es/core/vfs"
)

func TestAllowed(t *testing.T) {
	acl := vfs.ACL{
		vfs.NewACE(vfs.User("bob"), vfs.PermRead),
		vfs.NewACE(vfs.Group("eng"), vfs.PermWrite),
		vfs.NewACE(vfs.User("dave"), vfs.PermAdmin),
	}
	eng := ds.NewSet("eng")

	tests := []struct {
		name   string
		user   string
		groups *ds.Set[string]
		perm   vfs.Permission
		want   bool
	}{
		{"owner always", "alice", nil, vfs.PermShare, true},
		{"direct grant", "bob", nil, vfs.PermRead, true},
		{"direct grant only", "bob", nil, vfs.PermWrite, false},
		{"through group", "bob", eng, vfs.PermWrite, true},
		{"admin implies all", "dave", nil, vfs.PermDelete, true},
		{"stranger", "eve", nil, vfs.PermRead, false},
		{"empty user is not the owner", "", nil, vfs.PermRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, vfs.Allowed("alice", acl, tt.user, tt.groups, tt.perm))
		})
	}

	require.True(t, vfs.ACL{vfs.NewACE(vfs.Everyone(), vfs.PermRead)}.Allows("eve", nil, vfs.PermRead))
	require.True(t, vfs.Allowed("", vfs.ACL{vfs.NewACE(vfs.Everyone(), vfs.PermRead)}, "", nil, vfs.PermRead))
}

func TestParseACE(t *testing.T) {
	ace, err := vfs.ParseACE("group:eng=read, WRITE")
	require.NoError(t, err)
	require.Equal(t, vfs.Group("eng"), ace.Subject)
	require.Equal(t, []vfs.Permission{vfs.PermRead, vfs.PermWrite}, ace.Permissions.Values())

	ace, err = vfs.ParseACE("everyone=read")
	require.NoError(t, err)
	require.Equal(t, vfs.Everyone(), ace.Subject)

	for _, bad := range []string{"user:bob", "user:=read", "robot:x=read", "user:bob=fly", "bob=read"} {
		_, err := vfs.ParseACE(bad)
		require.ErrorIs(t, err, vfs.ErrValidation, bad)
	}
}

func TestACL_Validate(t *testing.T) {
	require.NoError(t, vfs.DefaultACL("alice").Validate())
	require.ErrorIs(t, vfs.ACL{vfs.NewACE(vfs.User("bob"))}.Validate(), vfs.ErrValidation)
	require.ErrorIs(t, vfs.ACL{vfs.NewACE(vfs.Group(""), vfs.PermRead)}.Validate(), vfs.ErrValidation)
	require.ErrorIs(t, vfs.ACL{vfs.NewACE(vfs.User("bob"), "fly")}.Validate(), vfs.ErrValidation)
}

func TestACL_JSON(t *testing.T) {
	acl := vfs.ACL{vfs.NewACE(vfs.Everyone(), vfs.PermWrite, vfs.PermRead)}
	b, err := json.Marshal(acl)
	require.NoError(t, err)
	require.JSONEq(t, `[{"subject":{"type":"everyone"},"permissions":["read","write"],"inherited":false}]`, string(b))

	var back vfs.ACL
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, acl, back)
}
