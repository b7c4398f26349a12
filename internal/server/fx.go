// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/translation-progress/internal/aggregate"
	"github.com/JakeFAU/translation-progress/internal/api"
	"github.com/JakeFAU/translation-progress/internal/archive"
	"github.com/JakeFAU/translation-progress/internal/clock/system"
	"github.com/JakeFAU/translation-progress/internal/config"
	"github.com/JakeFAU/translation-progress/internal/id/uuid"
	flocklease "github.com/JakeFAU/translation-progress/internal/lease/flock"
	memorylease "github.com/JakeFAU/translation-progress/internal/lease/memory"
	pglease "github.com/JakeFAU/translation-progress/internal/lease/postgres"
	"github.com/JakeFAU/translation-progress/internal/logging"
	"github.com/JakeFAU/translation-progress/internal/metrics"
	"github.com/JakeFAU/translation-progress/internal/pipeline"
	"github.com/JakeFAU/translation-progress/internal/progress"
	progresssinks "github.com/JakeFAU/translation-progress/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/translation-progress/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/translation-progress/internal/publisher/pubsub"
	"github.com/JakeFAU/translation-progress/internal/publishing"
	gcsstorage "github.com/JakeFAU/translation-progress/internal/storage/gcs"
	localstorage "github.com/JakeFAU/translation-progress/internal/storage/local"
	memorystorage "github.com/JakeFAU/translation-progress/internal/storage/memory"
	pgstore "github.com/JakeFAU/translation-progress/internal/storage/postgres"
	"github.com/JakeFAU/translation-progress/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	progressHub     *progress.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storageClient   *storage.Client
	itemStore       *pgstore.ItemStore
	leasePool       *pgxpool.Pool
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_backend", cfg.DB.Backend),
		zap.String("lease_backend", cfg.Lease.Backend),
		zap.Int("tracks", len(cfg.Tracks)),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
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

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.itemStore != nil {
		a.itemStore.Close()
	}
	if a.leasePool != nil {
		a.leasePool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	app.logger.Info("building application dependencies")

	items, attempts, err := setupStores(ctx, app)
	if err != nil {
		return nil, err
	}

	lease, err := setupLease(ctx, app)
	if err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	blobStore, err := setupArchiveStorage(ctx, app)
	if err != nil {
		return nil, err
	}

	emitter := setupProgress(ctx, app)

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	roller := aggregate.NewRoller(items, emitter, clock, cfg.Aggregation.Streaming)
	orch := publishing.New(
		roller,
		items,
		attempts,
		publisher,
		lease,
		clock,
		idGen,
		emitter,
		publishing.Config{
			Topic:          cfg.PubSub.TopicName,
			PublishTimeout: cfg.PublishTimeout(),
		},
		logger.Named("publishing"),
	)

	archiver, err := archive.New(blobStore, clock)
	if err != nil {
		return nil, fmt.Errorf("archiver init failed: %w", err)
	}

	app.apiServer = api.NewServer(
		roller,
		orch,
		items,
		attempts,
		archiver,
		*cfg,
		logger.Named("api"),
	)

	return app, nil
}

func setupStores(ctx context.Context, app *App) (store.ItemRepository, store.AttemptRepository, error) {
	switch app.cfg.DB.Backend {
	case "postgres":
		app.logger.Info("using postgres item store")
		itemStore, err := pgstore.NewItemStore(ctx, pgstore.ItemStoreConfig{
			DSN:      app.cfg.DB.DSN,
			MaxConns: app.cfg.DB.MaxConns,
			MinConns: app.cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("item store init failed: %w", err)
		}
		app.itemStore = itemStore
		return itemStore, itemStore, nil
	default:
		app.logger.Info("using in-memory item store")
		memStore := memorystorage.NewItemStore()
		return memStore, memStore, nil
	}
}

func setupLease(ctx context.Context, app *App) (pipeline.Lease, error) {
	switch app.cfg.Lease.Backend {
	case "flock":
		app.logger.Info("using flock lease backend", zap.String("lock_dir", app.cfg.Lease.LockDir))
		lease, err := flocklease.New(app.cfg.Lease.LockDir)
		if err != nil {
			return nil, fmt.Errorf("flock lease init failed: %w", err)
		}
		return lease, nil
	case "postgres":
		app.logger.Info("using postgres advisory lock lease backend")
		pool, err := pgxpool.New(ctx, app.cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("lease pool init failed: %w", err)
		}
		app.leasePool = pool
		lease, err := pglease.New(pool)
		if err != nil {
			return nil, fmt.Errorf("postgres lease init failed: %w", err)
		}
		return lease, nil
	default:
		app.logger.Info("using in-process lease backend")
		return memorylease.New(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (pipeline.Publisher, error) {
	if app.cfg.PubSub.Backend != "pubsub" {
		app.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubPublisher = client.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info("pubsub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupArchiveStorage(ctx context.Context, app *App) (pipeline.BlobStore, error) {
	switch app.cfg.Archive.Backend {
	case "gcs":
		app.logger.Info("using GCS archive backend", zap.String("bucket", app.cfg.Archive.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storageClient = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		app.logger.Info("using local archive backend", zap.String("dir", app.cfg.Archive.LocalDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		app.logger.Info("using in-memory archive backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupProgress(ctx context.Context, app *App) progress.Emitter {
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		app.logger.Warn("prometheus progress sink init failed", zap.Error(err))
	}
	sinks := []progress.Sink{
		progresssinks.NewLogSink(app.logger.Named("progress_log")),
	}
	if promSink != nil {
		sinks = append(sinks, promSink)
	}
	app.progressHub = progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      app.logger.Named("progress_hub"),
	}, sinks...)
	return app.progressHub
}
