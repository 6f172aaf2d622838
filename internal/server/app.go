// Package server builds the application's dependencies and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ramtracker/internal/api"
	"github.com/JakeFAU/ramtracker/internal/clock/system"
	"github.com/JakeFAU/ramtracker/internal/config"
	"github.com/JakeFAU/ramtracker/internal/hash/sha256"
	"github.com/JakeFAU/ramtracker/internal/id/uuid"
	"github.com/JakeFAU/ramtracker/internal/ingest"
	"github.com/JakeFAU/ramtracker/internal/logging"
	"github.com/JakeFAU/ramtracker/internal/metrics"
	"github.com/JakeFAU/ramtracker/internal/parser"
	memorypublisher "github.com/JakeFAU/ramtracker/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/ramtracker/internal/publisher/pubsub"
	"github.com/JakeFAU/ramtracker/internal/query"
	"github.com/JakeFAU/ramtracker/internal/ram"
	collysource "github.com/JakeFAU/ramtracker/internal/source/colly"
	gcsstorage "github.com/JakeFAU/ramtracker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/ramtracker/internal/storage/local"
	memorystorage "github.com/JakeFAU/ramtracker/internal/storage/memory"
	pgstore "github.com/JakeFAU/ramtracker/internal/storage/postgres"
	"github.com/JakeFAU/ramtracker/internal/tracking"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store       ram.Store
	pg          *pgstore.Store
	blobs       ram.BlobStore
	gcs         *gcsstorage.BlobStore
	publisher   ram.Publisher
	pubsub      *gcppublisher.Publisher
	promoter    *tracking.Promoter
	queries     *query.Service
	ingester    *ingest.Ingester
	apiServer   *api.Server
	ownedLogger bool
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger *zap.Logger
	store  ram.Store
	source ram.Source
}

// WithLogger injects a logger instead of building one from config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithStore injects a store instead of connecting one from config.
func WithStore(store ram.Store) Option {
	return func(o *buildOptions) { o.store = store }
}

// WithSource injects the page source instead of the colly fetcher.
func WithSource(source ram.Source) Option {
	return func(o *buildOptions) { o.source = source }
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	app := &App{cfg: cfg, logger: bo.logger}
	if app.logger == nil {
		logger, err := logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		app.ownedLogger = true
	}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.Database.DSN != ""),
	)
	metrics.Init()

	if err := app.setupStore(ctx, bo.store); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.setupBlobs(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	clock := system.New()
	source := bo.source
	if source == nil {
		source = collysource.New(collysource.Config{
			URL:         cfg.Source.URL,
			SelectName:  cfg.Source.SelectName,
			UserAgent:   cfg.Source.UserAgent,
			SkipValue:   cfg.Source.SkipValue,
			Timeout:     cfg.SourceTimeout(),
			RandomDelay: time.Duration(cfg.Source.RandomDelaySeconds) * time.Second,
		}, clock)
	}

	app.promoter = tracking.New(app.store, clock)
	app.queries = query.New(app.store, app.promoter)

	var err error
	app.ingester, err = ingest.New(ingest.Config{
		Topic:               cfg.PubSub.TopicName,
		SnapshotPrefix:      cfg.Storage.Prefix,
		SnapshotContentType: cfg.Storage.ContentType,
	}, ingest.Deps{
		Store: app.store,
		Parser: parser.New(parser.Config{
			CurrencyMarker:    cfg.Parser.CurrencyMarker,
			OutOfStockMarker:  cfg.Parser.OutOfStockMarker,
			DualChannelMarker: cfg.Parser.DualChannelMarker,
		}),
		Clock:     clock,
		IDs:       uuid.New(),
		Source:    source,
		Blobs:     app.blobs,
		Hasher:    sha256.New(),
		Publisher: app.publisher,
		Logger:    app.logger,
	})
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("ingester init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.queries, api.Config{
		CORSOrigins: cfg.Server.CORSOrigins,
		Ready:       app.ready,
	}, app.logger)

	return app, nil
}

func (a *App) setupStore(ctx context.Context, injected ram.Store) error {
	if injected != nil {
		a.store = injected
		return nil
	}
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory store")
		a.store = memorystorage.NewStore()
		return nil
	}
	pg, err := pgstore.NewStore(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pg = pg
	a.store = pg
	if a.cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres migrate failed: %w", err)
		}
		a.logger.Info("postgres schema applied")
	}
	a.logger.Info("postgres store initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	return nil
}

func (a *App) setupBlobs(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = store
		a.blobs = store
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = store
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
	default:
		a.logger.Info("using in-memory storage backend")
		a.blobs = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = pub
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pg == nil {
		return nil
	}
	return a.pg.Ping(ctx)
}

// Migrate applies the Postgres schema. It fails when no database is configured.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		return errors.New("database.dsn is not configured")
	}
	if err := a.pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the active store.
func (a *App) Store() ram.Store { return a.store }

// Postgres returns the Postgres store, or nil when running in memory.
func (a *App) Postgres() *pgstore.Store { return a.pg }

// Queries returns the read service.
func (a *App) Queries() *query.Service { return a.queries }

// Ingester returns the ingestion pipeline.
func (a *App) Ingester() *ingest.Ingester { return a.ingester }

// Categories returns the reclassification labels from config.
func (a *App) Categories() config.CategoriesConfig { return a.cfg.Categories }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run starts the HTTP server and blocks until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure clients and flushes the logger.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	if a.ownedLogger {
		_ = a.logger.Sync()
	}
}

func (a *App) closeInfrastructure() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.pg != nil {
		a.pg.Close()
		a.pg = nil
	}
}
