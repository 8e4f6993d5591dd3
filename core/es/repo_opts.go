package es

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codewandler/vfs-es/core/cache"
)

// IDGenerator generates envelope ids.
type IDGenerator func() string

// DefaultIDGenerator returns random uuids in canonical text form.
func DefaultIDGenerator() IDGenerator {
	return func() string { return uuid.NewString() }
}

type (
	repoOpts struct {
		log           *slog.Logger
		snapshotter   Snapshotter
		snapshotEvery uint64
		cache         cache.Cache[*Snapshot]
		cacheTTL      time.Duration
		bus           EventBus
		idGenerator   IDGenerator
		metrics       ESMetrics
	}

	repoSaveOptions struct {
		metadata Metadata
	}

	repoLoadOptions struct {
		skipSnapshot bool
	}
)

type (
	RepositoryOption      interface{ applyToRepository(*repoOpts) }
	RepoCacheOption       valueOption[cache.Cache[*Snapshot]]
	RepoCacheTTLOption    valueOption[time.Duration]
	RepoIDGeneratorOption valueOption[IDGenerator]

	SaveOption     interface{ applyToSaveOptions(*repoSaveOptions) }
	MetadataOption valueOption[Metadata]

	LoadOption         interface{ applyToLoadOptions(*repoLoadOptions) }
	SkipSnapshotOption struct{}
)

// WithRepoCache keeps the committed state of loaded and saved aggregates in c.
func WithRepoCache(c cache.Cache[*Snapshot]) RepoCacheOption { return RepoCacheOption{v: c} }

// WithRepoCacheLRU is WithRepoCache backed by an LRU of the given size.
func WithRepoCacheLRU(size int) RepoCacheOption {
	return WithRepoCache(cache.NewLRU[*Snapshot](cache.LRUOpts{Size: size}))
}

func WithRepoCacheTTL(ttl time.Duration) RepoCacheTTLOption { return RepoCacheTTLOption{v: ttl} }

// WithIDGenerator sets a custom ID generator for event envelope IDs.
func WithIDGenerator(gen IDGenerator) RepoIDGeneratorOption {
	return RepoIDGeneratorOption{v: gen}
}

// WithMetadata attaches md to every envelope written by one Save.
func WithMetadata(md Metadata) MetadataOption { return MetadataOption{v: md} }

// WithoutSnapshot forces a full replay from version 1.
func WithoutSnapshot() SkipSnapshotOption { return SkipSnapshotOption{} }

// === repo ==

func (o LogOption) applyToRepository(r *repoOpts)             { r.log = o.v }
func (o SnapshotterOption) applyToRepository(r *repoOpts)     { r.snapshotter = o.v }
func (o SnapshotEveryOption) applyToRepository(r *repoOpts)   { r.snapshotEvery = o.v }
func (o BusOption) applyToRepository(r *repoOpts)             { r.bus = o.v }
func (o ESMetricsOption) applyToRepository(r *repoOpts)       { r.metrics = o.v }
func (o RepoCacheOption) applyToRepository(r *repoOpts)       { r.cache = o.v }
func (o RepoCacheTTLOption) applyToRepository(r *repoOpts)    { r.cacheTTL = o.v }
func (o RepoIDGeneratorOption) applyToRepository(r *repoOpts) { r.idGenerator = o.v }

func newRepoOpts(opts ...RepositoryOption) repoOpts {
	options := repoOpts{
		log:         slog.Default(),
		cache:       cache.NewNop[*Snapshot](),
		idGenerator: DefaultIDGenerator(),
		metrics:     NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	return options
}

// === save ==

func (o MetadataOption) applyToSaveOptions(s *repoSaveOptions) { s.metadata = o.v }

func newSaveOptions(opts ...SaveOption) repoSaveOptions {
	options := repoSaveOptions{}
	for _, opt := range opts {
		opt.applyToSaveOptions(&options)
	}
	return options
}

// === load ==

func (SkipSnapshotOption) applyToLoadOptions(l *repoLoadOptions) { l.skipSnapshot = true }

func newLoadOptions(opts ...LoadOption) repoLoadOptions {
	options := repoLoadOptions{}
	for _, opt := range opts {
		opt.applyToLoadOptions(&options)
	}
	return options
}
