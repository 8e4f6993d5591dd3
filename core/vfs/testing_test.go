package vfs_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
)

type fixture struct {
	te      *es.TestingEnv
	rm      *vfs.MemReadModel
	proj    es.Projection
	files   *es.TypedRepository[*vfs.File]
	folders *es.TypedRepository[*vfs.Folder]
	cmd     *vfs.Commands
	q       *vfs.Queries
}

var groups = vfs.StaticGroups{"bob": {"eng"}, "carol": {"ops"}}

func newFixture(t *testing.T, opts ...es.EnvOption) *fixture {
	t.Helper()
	rm := vfs.NewMemReadModel()
	proj, err := vfs.NewMemProjection("file_views", rm, nil)
	require.NoError(t, err)

	te := es.StartTestEnv(t,
		es.WithAggregates(new(vfs.File), new(vfs.Folder)),
		es.WithProjection(proj),
		es.WithEnvOpts(opts...),
	)
	fx := &fixture{
		te:      te,
		rm:      rm,
		proj:    proj,
		files:   es.NewTypedRepository(slog.Default(), te.Repository(), func() *vfs.File { return &vfs.File{} }),
		folders: es.NewTypedRepository(slog.Default(), te.Repository(), func() *vfs.Folder { return &vfs.Folder{} }),
		q:       vfs.NewQueries(rm, vfs.QueriesOpts{Groups: groups}),
	}
	fx.cmd, err = vfs.NewCommands(vfs.CommandsOpts{
		Files:     fx.files,
		Folders:   fx.folders,
		ReadModel: rm,
		Groups:    groups,
		Syncer:    te,
	})
	require.NoError(t, err)
	return fx
}

func (fx *fixture) folder(t *testing.T, name, parentID, owner string) string {
	t.Helper()
	f, err := fx.cmd.CreateFolder(t.Context(), vfs.CreateFolderCmd{Name: name, ParentID: parentID, OwnerID: owner})
	require.NoError(t, err)
	return f.GetID()
}

func (fx *fixture) file(t *testing.T, name, parentID, owner string) string {
	t.Helper()
	f, err := fx.cmd.CreateFile(t.Context(), vfs.CreateFileCmd{
		Name: name, ParentID: parentID, Size: 10, MimeType: "text/plain", OwnerID: owner,
	})
	require.NoError(t, err)
	return f.GetID()
}

func names(views []vfs.FileView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Name
	}
	return out
}
