package vfs_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
)

func TestQueries_listChildren(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	docs := fx.folder(t, "docs", "", "alice")
	fx.file(t, "b.txt", docs, "alice")
	fx.file(t, "a.txt", docs, "alice")
	fx.folder(t, "zeta", docs, "alice")
	fx.folder(t, "alpha", docs, "alice")

	children, err := fx.q.ListChildren(ctx, docs, vfs.Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "zeta", "a.txt", "b.txt"}, names(children))

	page, err := fx.q.ListChildren(ctx, docs, vfs.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "a.txt"}, names(page))

	page, err = fx.q.ListChildren(ctx, docs, vfs.Page{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, page)

	root, err := fx.q.ListChildren(ctx, "", vfs.Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"docs"}, names(root))

	_, err = fx.q.ListChildren(ctx, "missing", vfs.Page{})
	require.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestPage_Normalize(t *testing.T) {
	require.Equal(t, vfs.Page{Limit: vfs.DefaultPageSize}, vfs.Page{}.Normalize())
	require.Equal(t, vfs.Page{Limit: vfs.MaxPageSize, Offset: 3}, vfs.Page{Limit: 1000, Offset: 3}.Normalize())
	require.Equal(t, vfs.Page{Limit: 5}, vfs.Page{Limit: 5, Offset: -1}.Normalize())
}

func TestQueries_search(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	reports := fx.folder(t, "Reports", "", "alice")
	fx.file(t, "q1.pdf", reports, "alice")
	fx.file(t, "q2.pdf", reports, "alice")
	gone := fx.file(t, "q3.pdf", reports, "alice")
	fx.file(t, "notes.txt", "", "alice")
	_, err := fx.cmd.DeleteFile(ctx, vfs.DeleteCmd{ID: gone, ActorID: "alice"})
	require.NoError(t, err)

	found, err := fx.q.Search(ctx, "report", vfs.Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"Reports", "q1.pdf", "q2.pdf"}, names(found))

	found, err = fx.q.Search(ctx, ".pdf", vfs.Page{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"q1.pdf"}, names(found))

	_, err = fx.q.Search(ctx, " ", vfs.Page{})
	require.ErrorIs(t, err, vfs.ErrValidation)
}

func treeNames(tree *vfs.FolderTree) map[string]int {
	out := map[string]int{}
	tree.Walk(func(depth int, n *vfs.FolderTree) { out[n.Folder.Name] = depth })
	return out
}

func TestQueries_folderTree(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	root := fx.folder(t, "root", "", "alice")
	a := fx.folder(t, "a", root, "alice")
	b := fx.folder(t, "b", root, "alice")
	a1 := fx.folder(t, "a1", a, "alice")
	fx.folder(t, "a1x", a1, "alice")
	fx.file(t, "file.txt", a, "alice")
	_, err := fx.cmd.DeleteFolder(ctx, vfs.DeleteCmd{ID: b, ActorID: "alice"})
	require.NoError(t, err)

	tree, err := fx.q.FolderTree(ctx, root, 0)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"root": 0, "a": 1, "a1": 2, "a1x": 3}, treeNames(tree))
	require.Len(t, tree.Children, 1)
	require.Equal(t, a, tree.Children[0].Folder.ID)

	tree, err = fx.q.FolderTree(ctx, root, 2)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"root": 0, "a": 1, "a1": 2}, treeNames(tree))

	tree, err = fx.q.FolderTree(ctx, a1, 1)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a1": 0, "a1x": 1}, treeNames(tree))

	_, err = fx.q.FolderTree(ctx, b, 0)
	require.ErrorIs(t, err, vfs.ErrNotFound)
	_, err = fx.q.FolderTree(ctx, "missing", 0)
	require.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestQueries_folderTreeDepthCap(t *testing.T) {
	fx := newFixture(t)
	parent := ""
	var ids []string
	for i := range 6 {
		parent = fx.folder(t, string(rune('a'+i)), parent, "alice")
		ids = append(ids, parent)
	}

	q := vfs.NewQueries(fx.rm, vfs.QueriesOpts{DefaultDepth: 2, MaxDepth: 3})
	tree, err := q.FolderTree(t.Context(), ids[0], 0)
	require.NoError(t, err)
	require.Len(t, treeNames(tree), 3)

	tree, err = q.FolderTree(t.Context(), ids[0], 100)
	require.NoError(t, err)
	require.Len(t, treeNames(tree), 4)
}

func TestQueries_folderTreeCycle(t *testing.T) {
	rm := vfs.NewMemReadModel()
	at := time.Now().UTC()
	for _, e := range []any{
		&vfs.FolderCreated{FolderID: "a", Name: "a", Path: "/a", ParentID: "b", OwnerID: "u", OccurredAt: at},
		&vfs.FolderCreated{FolderID: "b", Name: "b", Path: "/a/b", ParentID: "a", OwnerID: "u", OccurredAt: at},
	} {
		require.NoError(t, rm.Apply(t.Context(), es.Envelope{}, e))
	}

	tree, err := vfs.NewQueries(rm, vfs.QueriesOpts{}).FolderTree(t.Context(), "a", 50)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 0, "b": 1}, treeNames(tree))
}

func TestQueries_folderTreeConcurrent(t *testing.T) {
	fx := newFixture(t)
	root := fx.folder(t, "root", "", "alice")
	for _, n := range []string{"x", "y", "z"} {
		fx.folder(t, n, root, "alice")
	}

	var wg sync.WaitGroup
	trees := make([]*vfs.FolderTree, 16)
	for i := range trees {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := fx.q.FolderTree(t.Context(), root, 0)
			if err == nil {
				trees[i] = tree
			}
		}()
	}
	wg.Wait()
	for _, tree := range trees {
		require.NotNil(t, tree)
		require.Len(t, tree.Children, 3)
	}
}
