package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
)

func setupCLI(t *testing.T) {
	t.Setenv("VFS_CONFIG", "")
	t.Setenv("VFS_DB_DRIVER", "sqlite")
	t.Setenv("VFS_DB_DSN", filepath.Join(t.TempDir(), "vfs.db"))
	t.Setenv("VFS_NATS_ENABLED", "false")
	t.Setenv("VFS_SNAPSHOT_BACKEND", "sql")
	t.Setenv("VFS_LOG_LEVEL", "error")
}

func execCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return stdout.String(), err
}

func mustExec(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCLI(t, args...)
	require.NoError(t, err, "vfsctl %s", strings.Join(args, " "))
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestVfsctl(t *testing.T) {
	setupCLI(t)
	as := func(user string, args ...string) []string {
		return append([]string{"--as", user, "--json"}, args...)
	}

	docs := decode[changed](t, mustExec(t, as("alice", "folder", "create", "docs")...))
	require.Equal(t, "created", docs.Kind)
	require.Equal(t, es.Version(1), docs.Version)

	sub := decode[changed](t, mustExec(t, as("alice", "folder", "create", "sub", "--parent", docs.ID)...))
	report := decode[changed](t, mustExec(t, as("alice",
		"file", "create", "report.txt", "--parent", docs.ID, "--size", "12", "--mime", "text/plain")...))

	t.Run("ls", func(t *testing.T) {
		views := decode[[]vfs.FileView](t, mustExec(t, as("alice", "ls", docs.ID)...))
		require.Len(t, views, 2)
		require.Equal(t, sub.ID, views[0].ID)
		require.Equal(t, report.ID, views[1].ID)
		require.Equal(t, "/docs/report.txt", views[1].Path)
		require.Equal(t, int64(12), views[1].Size)

		root := decode[[]vfs.FileView](t, mustExec(t, as("alice", "ls")...))
		require.Len(t, root, 1)
	})

	t.Run("tree", func(t *testing.T) {
		tree := decode[vfs.FolderTree](t, mustExec(t, as("alice", "tree", docs.ID)...))
		require.Equal(t, docs.ID, tree.Folder.ID)
		require.Len(t, tree.Children, 1)
		require.Equal(t, sub.ID, tree.Children[0].Folder.ID)

		text := mustExec(t, "tree", docs.ID)
		require.Contains(t, text, "docs/")
		require.Contains(t, text, "  sub/")
	})

	t.Run("permissions", func(t *testing.T) {
		type verdict struct {
			Allowed bool `json:"allowed"`
		}
		v := decode[verdict](t, mustExec(t, as("alice", "check", report.ID, "read", "--user", "bob")...))
		require.False(t, v.Allowed)

		_, err := execCLI(t, as("bob", "file", "rename", report.ID, "stolen.txt")...)
		require.ErrorIs(t, err, vfs.ErrPermissionDenied)

		mustExec(t, as("alice", "file", "chmod", report.ID, "user:bob=read,write")...)
		v = decode[verdict](t, mustExec(t, as("alice", "check", report.ID, "write", "--user", "bob")...))
		require.True(t, v.Allowed)

		renamed := decode[changed](t, mustExec(t, as("bob", "file", "rename", report.ID, "final.txt")...))
		require.Equal(t, "renamed", renamed.Kind)

		stat := decode[vfs.FileView](t, mustExec(t, as("alice", "stat", report.ID)...))
		require.Equal(t, "/docs/final.txt", stat.Path)
	})

	t.Run("search", func(t *testing.T) {
		hits := decode[[]vfs.FileView](t, mustExec(t, as("alice", "search", "FINAL")...))
		require.Len(t, hits, 1)
		require.Equal(t, report.ID, hits[0].ID)
	})

	t.Run("delete and restore", func(t *testing.T) {
		mustExec(t, as("alice", "folder", "rm", sub.ID)...)
		_, err := execCLI(t, as("alice", "stat", sub.ID)...)
		require.ErrorIs(t, err, vfs.ErrNotFound)

		mustExec(t, as("alice", "folder", "restore", sub.ID)...)
		mustExec(t, as("alice", "stat", sub.ID)...)
	})

	t.Run("events and rebuild", func(t *testing.T) {
		envs := decode[[]es.Envelope](t, mustExec(t, as("alice", "events", "--limit", "1000")...))
		require.NotEmpty(t, envs)
		for i, e := range envs {
			require.Equal(t, uint64(i+1), e.Seq)
		}

		type rebuilt struct {
			Events int `json:"events"`
		}
		r := decode[rebuilt](t, mustExec(t, as("alice", "rebuild")...))
		require.Equal(t, len(envs), r.Events)

		views := decode[[]vfs.FileView](t, mustExec(t, as("alice", "ls", docs.ID)...))
		require.Len(t, views, 2)
	})
}

func TestVfsctl_errors(t *testing.T) {
	setupCLI(t)

	_, err := execCLI(t, "--as", "alice", "file", "create", "x.txt", "--parent", "missing")
	require.ErrorIs(t, err, vfs.ErrNotFound)

	_, err = execCLI(t, "--as", "alice", "folder", "create", "")
	require.ErrorIs(t, err, vfs.ErrValidation)

	_, err = execCLI(t, "--as", "alice", "file", "chmod", "id", "nobody")
	require.ErrorIs(t, err, vfs.ErrValidation)

	_, err = execCLI(t, "check", "id", "fly")
	require.ErrorIs(t, err, vfs.ErrValidation)
}

func TestVfsctl_config(t *testing.T) {
	setupCLI(t)
	t.Setenv("VFS_TREE_MAX_DEPTH", "7")

	out := mustExec(t, "config")
	require.Contains(t, out, "max_depth = 7")
	require.Contains(t, out, `driver = "sqlite"`)

	out = mustExec(t, "migrate")
	require.Contains(t, out, "schema at version")
}
