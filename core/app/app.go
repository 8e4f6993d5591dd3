package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/prometheus/client_golang/prometheus"

	natsadapter "github.com/codewandler/vfs-es/adapters/nats"
	promadapter "github.com/codewandler/vfs-es/adapters/prometheus"
	sqladapter "github.com/codewandler/vfs-es/adapters/sql"
	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
	"github.com/codewandler/vfs-es/internal/config"
)

const repoCacheSize = 1024

type Options struct {
	Config *config.Config
	Log    *slog.Logger
	// Projector runs the file view projection in this process.
	Projector bool
	// SkipMigrate leaves the schema alone.
	SkipMigrate bool
}

type App struct {
	id       string
	log      *slog.Logger
	cfg      *config.Config
	closers  []func() error
	registry *prometheus.Registry
	db       *sqladapter.DB
	env      *es.Env
	proj     *sqladapter.FileViewProjection
	rm       *sqladapter.ReadModel
	files    *es.TypedRepository[*vfs.File]
	folders  *es.TypedRepository[*vfs.Folder]
	commands *vfs.Commands
	queries  *vfs.Queries
}

func (a *App) Log() *slog.Logger                          { return a.log }
func (a *App) Config() *config.Config                     { return a.cfg }
func (a *App) Registry() *prometheus.Registry             { return a.registry }
func (a *App) DB() *sqladapter.DB                         { return a.db }
func (a *App) Env() *es.Env                               { return a.env }
func (a *App) Projection() *sqladapter.FileViewProjection { return a.proj }
func (a *App) ReadModel() vfs.ReadModel                   { return a.rm }
func (a *App) Files() *es.TypedRepository[*vfs.File]      { return a.files }
func (a *App) Folders() *es.TypedRepository[*vfs.Folder]  { return a.folders }
func (a *App) Commands() *vfs.Commands                    { return a.commands }
func (a *App) Queries() *vfs.Queries                      { return a.queries }

func New(ctx context.Context, opts Options) (app *App, err error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	app = &App{
		id:       gonanoid.Must(6),
		cfg:      cfg,
		registry: promadapter.NewRegistry(),
	}
	app.log = log.With(slog.String("app", app.id))
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	// === database ===
	app.db, err = sqladapter.Open(ctx, sqladapter.Config{
		Dialect:   sqladapter.Dialect(cfg.Database.Driver),
		DSN:       cfg.Database.DSN,
		OpTimeout: cfg.OpTimeout,
		Log:       app.log,
	})
	if err != nil {
		return nil, err
	}
	app.onClose(app.db.Close)
	if !opts.SkipMigrate {
		if err = app.db.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	// === bus + snapshots ===
	bus, snapshotter, err := app.transport(ctx)
	if err != nil {
		return nil, err
	}

	// === event sourcing ===
	metrics := promadapter.NewESMetrics(app.registry)
	app.proj = sqladapter.NewFileViewProjection(app.db, cfg.Projection.Name)
	app.rm = sqladapter.NewReadModel(app.db)

	envOpts := []es.EnvOption{
		es.WithCtx(ctx),
		es.WithLog(app.log),
		es.WithStore(sqladapter.NewEventStore(app.db)),
		es.WithBus(bus),
		es.WithMetrics(metrics),
		es.WithAggregates(new(vfs.File), new(vfs.Folder)),
		es.WithSnapshotEvery(cfg.Snapshot.Every),
		es.WithRepoOpts(es.WithRepoCacheLRU(repoCacheSize)),
	}
	if snapshotter != nil {
		envOpts = append(envOpts, es.WithSnapshotter(snapshotter))
	}
	if opts.Projector {
		envOpts = append(envOpts, es.WithProjection(app.proj,
			es.WithBatchSize(cfg.Projection.BatchSize),
			es.WithPollInterval(cfg.Projection.PollInterval),
		))
	}
	app.env, err = es.NewEnv(envOpts...)
	if err != nil {
		return nil, err
	}
	app.onClose(func() error {
		app.env.Shutdown()
		return nil
	})

	// === vfs services ===
	app.files = es.NewTypedRepository(app.log, app.env.Repository(), func() *vfs.File { return &vfs.File{} })
	app.folders = es.NewTypedRepository(app.log, app.env.Repository(), func() *vfs.Folder { return &vfs.Folder{} })

	var syncer vfs.Syncer
	if opts.Projector {
		syncer = app.env
	}
	app.commands, err = vfs.NewCommands(vfs.CommandsOpts{
		Log:       app.log,
		Files:     app.files,
		Folders:   app.folders,
		ReadModel: app.rm,
		Groups:    vfs.StaticGroups(cfg.Groups),
		Syncer:    syncer,
	})
	if err != nil {
		return nil, err
	}
	app.queries = vfs.NewQueries(app.rm, vfs.QueriesOpts{
		Log:          app.log,
		Groups:       vfs.StaticGroups(cfg.Groups),
		DefaultDepth: cfg.Tree.DefaultDepth,
		MaxDepth:     cfg.Tree.MaxDepth,
	})

	app.log.Info("app ready",
		slog.String("db", cfg.Database.Driver),
		slog.Bool("nats", cfg.NATS.Enabled),
		slog.String("snapshots", cfg.Snapshot.Backend),
		slog.Bool("projector", opts.Projector),
	)
	return app, nil
}

// transport picks the event bus and the snapshot store.
func (a *App) transport(ctx context.Context) (es.EventBus, es.Snapshotter, error) {
	var (
		cfg         = a.cfg
		bus         es.EventBus
		snapshotter es.Snapshotter
	)
	switch cfg.Snapshot.Backend {
	case "sql":
		snapshotter = sqladapter.NewSnapshotter(a.db)
	case "memory":
		snapshotter = es.NewInMemorySnapshotter()
	}

	if !cfg.NATS.Enabled {
		return es.NewInMemoryBus(), snapshotter, nil
	}

	connect := natsadapter.ReuseConnection(natsadapter.ConnectURL(cfg.NATS.URL))
	natsBus, err := natsadapter.NewBus(ctx, natsadapter.BusConfig{
		Connect:       connect,
		Log:           a.log,
		StreamName:    cfg.NATS.Stream,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Durable:       cfg.NATS.Durable,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("nats bus: %w", err)
	}
	a.onClose(natsBus.Close)
	bus = natsBus

	if cfg.Snapshot.Backend == "kv" {
		kv, err := natsadapter.NewKV(ctx, natsadapter.KvConfig{
			Connect: connect,
			Log:     a.log,
			Bucket:  cfg.NATS.KVBucket,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("nats kv: %w", err)
		}
		a.onClose(kv.Close)
		snapshotter = natsadapter.NewSnapshotter(kv)
	}
	return bus, snapshotter, nil
}

func (a *App) onClose(fn func() error) { a.closers = append(a.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.log != nil {
		a.log.Debug("app closed")
	}
	return errors.Join(errs...)
}
