// Package config loads vfsctl settings from a TOML file and VFS_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Log        LogConfig        `toml:"log"`
	Database   DatabaseConfig   `toml:"database"`
	NATS       NATSConfig       `toml:"nats"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Projection ProjectionConfig `toml:"projection"`
	Tree       TreeConfig       `toml:"tree"`
	Metrics    MetricsConfig    `toml:"metrics"`
	// Groups maps user ids to the groups they belong to.
	Groups map[string][]string `toml:"groups"`
	// OpTimeout bounds every database call. Zero disables it.
	OpTimeout time.Duration `toml:"op_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn or error
	Format string `toml:"format"` // text or json
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite or postgres
	DSN    string `toml:"dsn"`
}

type NATSConfig struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"`
	Stream        string `toml:"stream"`
	SubjectPrefix string `toml:"subject_prefix"`
	KVBucket      string `toml:"kv_bucket"`
	Durable       string `toml:"durable"`
}

type SnapshotConfig struct {
	// Every takes a snapshot each time a save crosses a multiple of Every
	// versions. Zero disables snapshots.
	Every   uint64 `toml:"every"`
	Backend string `toml:"backend"` // sql, kv or memory
}

type ProjectionConfig struct {
	Name         string        `toml:"name"`
	BatchSize    int           `toml:"batch_size"`
	PollInterval time.Duration `toml:"poll_interval"`
}

type TreeConfig struct {
	DefaultDepth int `toml:"default_depth"`
	MaxDepth     int `toml:"max_depth"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "vfs.db"},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Stream:        "VFS_EVENTS",
			SubjectPrefix: "vfs.events",
			KVBucket:      "vfs_kv",
		},
		Snapshot: SnapshotConfig{Every: 50, Backend: "sql"},
		Projection: ProjectionConfig{
			Name:         "file_views",
			BatchSize:    256,
			PollInterval: 5 * time.Second,
		},
		Tree:      TreeConfig{DefaultDepth: 10, MaxDepth: 64},
		Metrics:   MetricsConfig{Addr: ":9090"},
		OpTimeout: 10 * time.Second,
	}
}

// Read decodes r over the defaults. Unknown keys are an error.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Load reads path (when set) over the defaults, applies the environment and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		if cfg, err = Read(f); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(oneOf(c.Log.Level, "debug", "info", "warn", "error"), "log.level %q", c.Log.Level)
	check(oneOf(c.Log.Format, "text", "json"), "log.format %q", c.Log.Format)
	check(oneOf(c.Database.Driver, "sqlite", "postgres"), "database.driver %q", c.Database.Driver)
	check(c.Database.DSN != "", "database.dsn is empty")
	check(oneOf(c.Snapshot.Backend, "sql", "kv", "memory"), "snapshot.backend %q", c.Snapshot.Backend)
	check(c.Snapshot.Backend != "kv" || c.NATS.Enabled, "snapshot.backend kv needs nats.enabled")
	check(!c.NATS.Enabled || c.NATS.URL != "", "nats.url is empty")
	check(c.Projection.Name != "", "projection.name is empty")
	check(c.Projection.BatchSize > 0 && c.Projection.BatchSize <= 10_000, "projection.batch_size %d not in 1..10000", c.Projection.BatchSize)
	check(c.Projection.PollInterval >= 10*time.Millisecond, "projection.poll_interval %s below 10ms", c.Projection.PollInterval)
	check(c.Tree.MaxDepth > 0 && c.Tree.MaxDepth <= 1024, "tree.max_depth %d not in 1..1024", c.Tree.MaxDepth)
	check(c.Tree.DefaultDepth > 0 && c.Tree.DefaultDepth <= c.Tree.MaxDepth,
		"tree.default_depth %d not in 1..%d", c.Tree.DefaultDepth, c.Tree.MaxDepth)
	check(c.OpTimeout >= 0, "op_timeout is negative")

	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ApplyEnv overrides settings from VFS_* variables looked up through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := env{lookup: lookup}
	e.str("VFS_LOG_LEVEL", &c.Log.Level)
	e.str("VFS_LOG_FORMAT", &c.Log.Format)
	e.str("VFS_DB_DRIVER", &c.Database.Driver)
	e.str("VFS_DB_DSN", &c.Database.DSN)
	e.flag("VFS_NATS_ENABLED", &c.NATS.Enabled)
	e.str("VFS_NATS_URL", &c.NATS.URL)
	e.str("VFS_NATS_STREAM", &c.NATS.Stream)
	e.str("VFS_NATS_DURABLE", &c.NATS.Durable)
	e.unum("VFS_SNAPSHOT_EVERY", &c.Snapshot.Every)
	e.str("VFS_SNAPSHOT_BACKEND", &c.Snapshot.Backend)
	e.num("VFS_PROJECTION_BATCH_SIZE", &c.Projection.BatchSize)
	e.dur("VFS_PROJECTION_POLL_INTERVAL", &c.Projection.PollInterval)
	e.num("VFS_TREE_DEFAULT_DEPTH", &c.Tree.DefaultDepth)
	e.num("VFS_TREE_MAX_DEPTH", &c.Tree.MaxDepth)
	e.str("VFS_METRICS_ADDR", &c.Metrics.Addr)
	e.dur("VFS_OP_TIMEOUT", &c.OpTimeout)
	return errors.Join(e.errs...)
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *env) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, key, v, err))
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *env) flag(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *env) num(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *env) unum(key string, dst *uint64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *env) dur(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
