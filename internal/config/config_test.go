package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lookupIn(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefault_isValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestRead(t *testing.T) {
	cfg, err := Read(strings.NewReader(`
op_timeout = "2s"

[log]
level = "debug"
format = "json"

[database]
driver = "postgres"
dsn = "postgres://vfs@localhost/vfs"

[nats]
enabled = true
url = "nats://nats:4222"

[snapshot]
every = 10
backend = "kv"

[projection]
poll_interval = "250ms"

[tree]
max_depth = 32
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.NATS.Enabled)
	require.Equal(t, "vfs.events", cfg.NATS.SubjectPrefix, "default kept")
	require.Equal(t, uint64(10), cfg.Snapshot.Every)
	require.Equal(t, 250*time.Millisecond, cfg.Projection.PollInterval)
	require.Equal(t, 256, cfg.Projection.BatchSize, "default kept")
	require.Equal(t, 32, cfg.Tree.MaxDepth)
	require.Equal(t, 10, cfg.Tree.DefaultDepth)
	require.Equal(t, 2*time.Second, cfg.OpTimeout)
}

func TestRead_unknownKey(t *testing.T) {
	_, err := Read(strings.NewReader("[database]\ndirver = \"sqlite\"\n"))
	require.ErrorIs(t, err, ErrInvalid)
	require.Contains(t, err.Error(), "database.dirver")
}

func TestWriteRead_roundTrip(t *testing.T) {
	want := Default()
	want.NATS.Enabled = true
	want.Snapshot.Backend = "kv"

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, want))
	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestApplyEnv(t *testing.T) {
	vars := map[string]string{
		"VFS_DB_DRIVER":                "postgres",
		"VFS_DB_DSN":                   "postgres://x",
		"VFS_NATS_ENABLED":             "true",
		"VFS_SNAPSHOT_EVERY":           "0",
		"VFS_PROJECTION_POLL_INTERVAL": "1s",
		"VFS_TREE_MAX_DEPTH":           "20",
		"VFS_LOG_LEVEL":                "",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookupIn(vars)))
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "postgres://x", cfg.Database.DSN)
	require.True(t, cfg.NATS.Enabled)
	require.Zero(t, cfg.Snapshot.Every)
	require.Equal(t, time.Second, cfg.Projection.PollInterval)
	require.Equal(t, 20, cfg.Tree.MaxDepth)
	require.Equal(t, "info", cfg.Log.Level, "empty values are ignored")
}

func TestApplyEnv_badValues(t *testing.T) {
	vars := map[string]string{
		"VFS_NATS_ENABLED":   "maybe",
		"VFS_TREE_MAX_DEPTH": "deep",
		"VFS_OP_TIMEOUT":     "soon",
	}
	cfg := Default()
	err := cfg.ApplyEnv(lookupIn(vars))
	require.ErrorIs(t, err, ErrInvalid)
	for k := range vars {
		require.Contains(t, err.Error(), k)
	}
	require.Equal(t, Default(), cfg, "nothing half applied")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"kv without nats", func(c *Config) { c.Snapshot.Backend = "kv" }, "nats.enabled"},
		{"batch size", func(c *Config) { c.Projection.BatchSize = 0 }, "batch_size"},
		{"poll interval", func(c *Config) { c.Projection.PollInterval = time.Millisecond }, "poll_interval"},
		{"default above max", func(c *Config) { c.Tree.DefaultDepth = 100 }, "tree.default_depth"},
		{"max depth", func(c *Config) { c.Tree.MaxDepth = 0 }, "tree.max_depth"},
		{"timeout", func(c *Config) { c.OpTimeout = -time.Second }, "op_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vfs.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\ndsn = \"/tmp/x.db\"\n"), 0o600))
	t.Setenv("VFS_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.db", cfg.Database.DSN)
	require.Equal(t, "json", cfg.Log.Format)

	t.Setenv("VFS_LOG_FORMAT", "xml")
	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
