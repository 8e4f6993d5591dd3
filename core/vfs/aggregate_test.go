package vfs_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
)

func history(t *testing.T, agg es.Aggregate) []vfs.Event {
	t.Helper()
	var out []vfs.Event
	for _, e := range agg.Uncommitted() {
		ev, ok := e.(vfs.Event)
		require.True(t, ok, "%T is not a vfs.Event", e)
		out = append(out, ev)
	}
	return out
}

func TestFile_reportScenario(t *testing.T) {
	f := vfs.NewFile("f1")
	require.NoError(t, f.Create("report.pdf", vfs.JoinPath("", "report.pdf"), "", 1024, "application/pdf", "u1"))
	require.Equal(t, es.Version(1), f.GetVersion())
	require.Equal(t, "/report.pdf", f.Path)
	require.Equal(t, "u1", f.CreatedBy)
	require.True(t, f.ACL.Allows("u1", nil, vfs.PermAdmin))

	require.NoError(t, f.Rename("final.pdf", "/final.pdf", "u1"))
	require.Equal(t, es.Version(2), f.GetVersion())
	require.Equal(t, "final.pdf", f.Name)
	require.Equal(t, "/final.pdf", f.Path)

	require.NoError(t, f.Move("F1", "/folder/final.pdf", "u1"))
	require.Equal(t, es.Version(3), f.GetVersion())
	require.Equal(t, "F1", f.ParentID)

	require.NoError(t, f.Delete("u1"))
	require.Equal(t, es.Version(4), f.GetVersion())
	require.True(t, f.IsDeleted())

	events := history(t, f)
	require.Len(t, events, 4)

	rebuilt, ok, err := vfs.RebuildFile(events...)
	require.NoError(t, err)
	require.True(t, ok)
	f.ClearUncommitted()
	require.Equal(t, f, rebuilt)
}

func TestFile_rebuildThroughStore(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	live := fx.files.New("f1")
	require.NoError(t, live.Create("a.txt", "/a.txt", "", 3, "text/plain", "u1"))
	require.NoError(t, live.Rename("b.txt", "/b.txt", "u2"))
	require.NoError(t, live.ChangePermissions(vfs.ACL{vfs.NewACE(vfs.Everyone(), vfs.PermRead)}, "u1"))
	require.NoError(t, live.Delete("u2"))
	require.NoError(t, live.Restore(""))
	require.NoError(t, fx.files.Save(ctx, live))

	loaded, err := fx.files.FindByID(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, live, loaded)
	require.Equal(t, es.Version(5), loaded.GetVersion())
}

func TestFile_rebuildEmpty(t *testing.T) {
	f, ok, err := vfs.RebuildFile()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, f)

	_, _, err = vfs.RebuildFile(&vfs.FileDeleted{FileID: "f1", DeletedBy: "u1"})
	require.ErrorIs(t, err, es.ErrCorruptEvent)

	d, ok, err := vfs.RebuildFolder()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, d)
}

func TestFile_deleteRestoreRoundTrip(t *testing.T) {
	f := vfs.NewFile("f1")
	require.NoError(t, f.Create("a.txt", "/a.txt", "", 3, "text/plain", "u1"))
	require.NoError(t, f.Rename("b.txt", "/b.txt", "u2"))
	before := *f

	require.NoError(t, f.Delete("u3"))
	require.Equal(t, "u2", f.UpdatedBy, "delete does not touch updated_by")
	require.Equal(t, "u3", f.DeletedBy)

	require.NoError(t, f.Restore(""))
	require.False(t, f.IsDeleted())
	require.Empty(t, f.DeletedBy)
	require.Equal(t, "u2", f.UpdatedBy, "restore defaults to the last updater")

	require.Equal(t, before.Name, f.Name)
	require.Equal(t, before.Path, f.Path)
	require.Equal(t, before.ParentID, f.ParentID)
	require.Equal(t, before.OwnerID, f.OwnerID)
	require.Equal(t, before.ACL, f.ACL)
	require.Equal(t, before.Size, f.Size)
	require.Equal(t, before.MimeType, f.MimeType)
	require.Equal(t, before.CreatedAt, f.CreatedAt)
	require.Equal(t, before.CreatedBy, f.CreatedBy)
	require.Equal(t, es.Version(4), f.GetVersion())
}

func TestFolder_restoreFallsBackToOwner(t *testing.T) {
	f := vfs.NewFolder("d1")
	require.NoError(t, f.Create("docs", "/docs", "", "u1"))
	require.NoError(t, f.Delete("u2"))
	require.NoError(t, f.Restore(""))
	require.Equal(t, "u1", f.UpdatedBy)

	rebuilt, ok, err := vfs.RebuildFolder(history(t, f)...)
	require.NoError(t, err)
	require.True(t, ok)
	f.ClearUncommitted()
	require.Equal(t, f, rebuilt)
}

func TestFile_validation(t *testing.T) {
	f := vfs.NewFile("f1")
	require.ErrorIs(t, f.Create("", "/", "", 1, "", "u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Create("   ", "/", "", 1, "", "u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Create(strings.Repeat("a", 256), "/x", "", 1, "", "u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Create("a", "/a", "", -1, "", "u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Create("a", "/a", "", 1, "", ""), vfs.ErrValidation)
	require.ErrorIs(t, f.Rename("b", "/b", "u1"), vfs.ErrNotFound)
	require.ErrorIs(t, f.Restore("u1"), vfs.ErrNotFound)
	require.Zero(t, f.GetVersion())

	require.NoError(t, f.Create("a", "/a", "", 1, "", "u1"))
	require.ErrorIs(t, f.Create("a", "/a", "", 1, "", "u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Rename("", "/", "u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Restore("u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.ChangePermissions(vfs.ACL{{Subject: vfs.User("")}}, "u1"), vfs.ErrValidation)

	require.NoError(t, f.Delete("u1"))
	require.ErrorIs(t, f.Delete("u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Move("p", "/p/a", "u1"), vfs.ErrValidation)
	require.ErrorIs(t, f.Rename("b", "/b", "u1"), vfs.ErrValidation)

	require.Equal(t, es.Version(2), f.GetVersion())
	require.Len(t, f.Uncommitted(), 2)
}

func TestFolder_notItsOwnParent(t *testing.T) {
	f := vfs.NewFolder("d1")
	require.ErrorIs(t, f.Create("docs", "/docs", "d1", "u1"), vfs.ErrValidation)
	require.NoError(t, f.Create("docs", "/docs", "", "u1"))
	require.ErrorIs(t, f.Move("d1", "/docs/docs", "u1"), vfs.ErrValidation)
}

func TestApply_unknownEvent(t *testing.T) {
	require.ErrorIs(t, vfs.NewFile("f1").Apply(&vfs.FolderCreated{}), es.ErrUnknownEventType)
	require.ErrorIs(t, vfs.NewFolder("d1").Apply(&vfs.FileCreated{}), es.ErrUnknownEventType)
	require.ErrorIs(t, vfs.NewFolder("d1").Apply("nope"), es.ErrUnknownEventType)
}

func TestFile_snapshotRestore(t *testing.T) {
	fx := newFixture(t,
		es.WithSnapshotEvery(2),
	)
	ctx := t.Context()

	f := fx.files.New("f1")
	require.NoError(t, f.Create("a.txt", "/a.txt", "", 3, "text/plain", "u1"))
	require.NoError(t, f.ChangePermissions(vfs.ACL{vfs.NewACE(vfs.Group("eng"), vfs.PermWrite)}, "u1"))
	require.NoError(t, fx.files.Save(ctx, f))
	require.NoError(t, f.Delete("u1"))
	require.NoError(t, fx.files.Save(ctx, f))

	snap, err := fx.te.Snapshotter().LoadSnapshot(ctx, vfs.FileAggType, "f1")
	require.NoError(t, err)
	require.Equal(t, es.Version(2), snap.ObjVersion)

	loaded, err := fx.files.FindByID(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, f, loaded)
}
