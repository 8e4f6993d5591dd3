package vfs_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
)

func TestCommands_create(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	docs := fx.folder(t, "docs", "", "alice")
	specs := fx.folder(t, "specs", docs, "alice")
	id := fx.file(t, "a.txt", specs, "alice")

	v, err := fx.q.GetFile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "/docs/specs/a.txt", v.Path)
	require.Equal(t, specs, v.ParentID)
	require.Equal(t, vfs.ItemFile, v.ItemType)
	require.Equal(t, int64(10), v.Size)
	require.Equal(t, "alice", v.CreatedBy)

	envs, err := fx.te.Store().Load(ctx, vfs.FileAggType, id)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, "alice", envs[0].Metadata.ActorID)
	require.NotEmpty(t, envs[0].Metadata.CorrelationID)

	_, err = fx.cmd.CreateFile(ctx, vfs.CreateFileCmd{Name: "a.txt", ParentID: specs, OwnerID: "alice"})
	require.ErrorIs(t, err, vfs.ErrAlreadyExists)

	_, err = fx.cmd.CreateFolder(ctx, vfs.CreateFolderCmd{Name: "docs", OwnerID: "bob"})
	require.ErrorIs(t, err, vfs.ErrAlreadyExists)

	_, err = fx.cmd.CreateFile(ctx, vfs.CreateFileCmd{Name: "", OwnerID: "alice"})
	require.ErrorIs(t, err, vfs.ErrValidation)

	_, err = fx.cmd.CreateFile(ctx, vfs.CreateFileCmd{Name: "b.txt", ParentID: "missing", OwnerID: "alice"})
	require.ErrorIs(t, err, vfs.ErrNotFound)

	_, err = fx.cmd.CreateFile(ctx, vfs.CreateFileCmd{Name: "b.txt", ParentID: id, OwnerID: "alice"})
	require.ErrorIs(t, err, vfs.ErrNotFound, "a file is no parent")
}

func TestCommands_permissions(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	docs := fx.folder(t, "docs", "", "alice")
	_, err := fx.cmd.CreateFile(ctx, vfs.CreateFileCmd{Name: "x", ParentID: docs, OwnerID: "bob"})
	require.ErrorIs(t, err, vfs.ErrPermissionDenied)

	// bob may not share what is not his
	_, err = fx.cmd.SetFolderPermissions(ctx, vfs.SetPermissionsCmd{
		ID: docs, ACL: vfs.ACL{vfs.NewACE(vfs.User("bob"), vfs.PermAdmin)}, ActorID: "bob",
	})
	require.ErrorIs(t, err, vfs.ErrPermissionDenied)

	_, err = fx.cmd.SetFolderPermissions(ctx, vfs.SetPermissionsCmd{
		ID: docs, ACL: vfs.ACL{vfs.NewACE(vfs.Group("eng"), vfs.PermWrite)}, ActorID: "alice",
	})
	require.NoError(t, err)

	ok, err := fx.q.CheckPermission(ctx, docs, "bob", vfs.PermWrite)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = fx.q.CheckPermission(ctx, docs, "carol", vfs.PermWrite)
	require.NoError(t, err)
	require.False(t, ok)

	id := fx.file(t, "x", docs, "bob")
	v, err := fx.q.GetFile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "bob", v.OwnerID)

	// the owner keeps every right on their file
	_, err = fx.cmd.DeleteFile(ctx, vfs.DeleteCmd{ID: id, ActorID: "carol"})
	require.ErrorIs(t, err, vfs.ErrPermissionDenied)
	_, err = fx.cmd.DeleteFile(ctx, vfs.DeleteCmd{ID: id, ActorID: "bob"})
	require.NoError(t, err)
}

func TestCommands_moveAndRename(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	a := fx.folder(t, "a", "", "alice")
	b := fx.folder(t, "b", a, "alice")
	c := fx.folder(t, "c", "", "alice")
	id := fx.file(t, "report.pdf", "", "alice")

	f, err := fx.cmd.RenameFile(ctx, vfs.RenameCmd{ID: id, NewName: "final.pdf", ActorID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "/final.pdf", f.Path)
	require.Equal(t, es.Version(2), f.GetVersion())

	f, err = fx.cmd.MoveFile(ctx, vfs.MoveCmd{ID: id, NewParentID: b, ActorID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "/a/b/final.pdf", f.Path)
	require.Equal(t, es.Version(3), f.GetVersion())

	v, err := fx.q.GetFile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "/a/b/final.pdf", v.Path)
	require.Equal(t, b, v.ParentID)

	_, err = fx.cmd.RenameFile(ctx, vfs.RenameCmd{ID: id, NewName: "", ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrValidation)

	_, err = fx.cmd.MoveFolder(ctx, vfs.MoveCmd{ID: a, NewParentID: b, ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrValidation)
	_, err = fx.cmd.MoveFolder(ctx, vfs.MoveCmd{ID: a, NewParentID: a, ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrValidation)

	d, err := fx.cmd.MoveFolder(ctx, vfs.MoveCmd{ID: b, NewParentID: c, ActorID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "/c/b", d.Path)

	d, err = fx.cmd.RenameFolder(ctx, vfs.RenameCmd{ID: c, NewName: "z", ActorID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "/z", d.Path)

	// a sibling with the target name blocks both
	fx.folder(t, "taken", "", "alice")
	_, err = fx.cmd.RenameFolder(ctx, vfs.RenameCmd{ID: a, NewName: "taken", ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrAlreadyExists)

	_, err = fx.cmd.MoveFile(ctx, vfs.MoveCmd{ID: "missing", ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrNotFound)
	_, err = fx.cmd.MoveFile(ctx, vfs.MoveCmd{ID: a, ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrNotFound, "a folder is not a file")
}

func TestCommands_deleteRestore(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	docs := fx.folder(t, "docs", "", "alice")
	id := fx.file(t, "a.txt", docs, "alice")

	_, err := fx.cmd.DeleteFile(ctx, vfs.DeleteCmd{ID: id, ActorID: "alice"})
	require.NoError(t, err)

	_, err = fx.q.GetFile(ctx, id)
	require.ErrorIs(t, err, vfs.ErrNotFound)
	children, err := fx.q.ListChildren(ctx, docs, vfs.Page{})
	require.NoError(t, err)
	require.Empty(t, children)

	_, err = fx.cmd.DeleteFile(ctx, vfs.DeleteCmd{ID: id, ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrValidation)

	// a new file took the name in the meantime
	other := fx.file(t, "a.txt", docs, "alice")
	_, err = fx.cmd.RestoreFile(ctx, vfs.RestoreCmd{ID: id, ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrAlreadyExists)

	_, err = fx.cmd.DeleteFile(ctx, vfs.DeleteCmd{ID: other, ActorID: "alice"})
	require.NoError(t, err)
	f, err := fx.cmd.RestoreFile(ctx, vfs.RestoreCmd{ID: id, ActorID: "alice"})
	require.NoError(t, err)
	require.False(t, f.IsDeleted())
	require.Equal(t, es.Version(3), f.GetVersion())

	v, err := fx.q.GetFile(ctx, id)
	require.NoError(t, err)
	require.Nil(t, v.DeletedAt)

	_, err = fx.cmd.RestoreFile(ctx, vfs.RestoreCmd{ID: id, ActorID: "alice"})
	require.ErrorIs(t, err, vfs.ErrValidation)
	_, err = fx.cmd.RestoreFile(ctx, vfs.RestoreCmd{ID: id})
	require.ErrorIs(t, err, vfs.ErrValidation)

	_, err = fx.cmd.DeleteFolder(ctx, vfs.DeleteCmd{ID: docs, ActorID: "alice"})
	require.NoError(t, err)
	_, err = fx.cmd.CreateFile(ctx, vfs.CreateFileCmd{Name: "b.txt", ParentID: docs, OwnerID: "alice"})
	require.ErrorIs(t, err, vfs.ErrNotFound)
	_, err = fx.cmd.RestoreFolder(ctx, vfs.RestoreCmd{ID: docs, ActorID: "alice"})
	require.NoError(t, err)
}

func TestCommands_concurrentRenames(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()
	id := fx.file(t, "f", "", "alice")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.cmd.RenameFile(ctx, vfs.RenameCmd{ID: id, NewName: fmt.Sprintf("f%d", i), ActorID: "alice"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	fx.te.Assert().Version(ctx, id, n+1)
}

func TestCommands_projectionRebuild(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	docs := fx.folder(t, "docs", "", "alice")
	a := fx.file(t, "a.txt", docs, "alice")
	fx.file(t, "b.txt", docs, "alice")
	_, err := fx.cmd.RenameFile(ctx, vfs.RenameCmd{ID: a, NewName: "c.txt", ActorID: "alice"})
	require.NoError(t, err)
	_, err = fx.cmd.DeleteFile(ctx, vfs.DeleteCmd{ID: a, ActorID: "alice"})
	require.NoError(t, err)

	snapshot := func() []vfs.FileView {
		out, err := fx.rm.Search(ctx, "/", vfs.Page{Limit: vfs.MaxPageSize})
		require.NoError(t, err)
		deleted, err := fx.rm.View(ctx, a)
		require.NoError(t, err)
		return append(out, deleted)
	}
	live := snapshot()

	_, err = es.Rebuild(ctx, fx.te.Store(), fx.te.Registry(), fx.proj)
	require.NoError(t, err)
	require.Equal(t, live, snapshot())

	pos, err := fx.proj.Position(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), pos)

	// handling the log again changes nothing
	envs, err := fx.te.Store().LoadAll(ctx, 0, 100)
	require.NoError(t, err)
	for _, env := range envs {
		evt, err := fx.te.Registry().Decode(env)
		require.NoError(t, err)
		require.NoError(t, fx.proj.Handle(ctx, env, evt))
	}
	require.Equal(t, live, snapshot())
}
