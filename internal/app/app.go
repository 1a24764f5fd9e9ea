// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/api"
	"github.com/JakeFAU/catalog-linker/internal/audit"
	"github.com/JakeFAU/catalog-linker/internal/audit/sinks"
	"github.com/JakeFAU/catalog-linker/internal/clock/system"
	"github.com/JakeFAU/catalog-linker/internal/config"
	"github.com/JakeFAU/catalog-linker/internal/dispatcher"
	"github.com/JakeFAU/catalog-linker/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-linker/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-linker/internal/fetcher/headless"
	hashsha "github.com/JakeFAU/catalog-linker/internal/hash/sha256"
	"github.com/JakeFAU/catalog-linker/internal/id/uuid"
	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/match"
	"github.com/JakeFAU/catalog-linker/internal/paginate"
	"github.com/JakeFAU/catalog-linker/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-linker/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-linker/internal/reconciler"
	"github.com/JakeFAU/catalog-linker/internal/storage/gcs"
	"github.com/JakeFAU/catalog-linker/internal/storage/local"
	"github.com/JakeFAU/catalog-linker/internal/storage/memory"
	"github.com/JakeFAU/catalog-linker/internal/storage/postgres"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and closed by the command that built it.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	service    *reconciler.Service
	dispatcher *dispatcher.Dispatcher
	hub        *audit.Hub
	ready      api.ReadinessFunc
	closers    []func() error
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	provider   linker.DocumentProvider
}

// WithRegisterer registers audit collectors against reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithDocumentProvider replaces the configured fetcher.
func WithDocumentProvider(p linker.DocumentProvider) Option {
	return func(o *options) { o.provider = p }
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Service exposes the reconciliation service.
func (a *App) Service() *reconciler.Service {
	return a.service
}

// Dispatcher exposes the run dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Handler builds the HTTP API around the dispatcher.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.dispatcher, a.ready, a.cfg, a.logger).Handler()
}

// NewApp creates and initializes every collaborator from cfg. It fails fast
// if any critical service cannot be initialized, releasing what it opened.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.hub.Close(context.Background())
			_ = a.closeAll()
		}
	}()
	logger.Info("initializing application services")

	ext, err := extract.New(cfg.Source.BaseURL, extract.DefaultSelectors())
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	provider := o.provider
	if provider == nil {
		provider, err = a.buildProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	provider = ratelimit.Wrap(provider, ratelimit.New(ratelimit.Config{
		RPS:   cfg.Source.RequestsPerSecond,
		Burst: cfg.Source.Burst,
	}))

	catalog, links, auditRepo, err := a.buildStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	auditSinks := []audit.Sink{sinks.NewLogSink(logger.Named("audit"))}
	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("init audit metrics: %w", err)
	}
	auditSinks = append(auditSinks, promSink)
	if cfg.Audit.Persist && auditRepo != nil {
		auditSinks = append(auditSinks, sinks.NewStoreSink(auditRepo, logger))
	}
	a.hub = audit.NewHub(audit.Config{
		BufferSize:     cfg.Audit.BufferSize,
		MaxBatchEvents: cfg.Audit.MaxBatchEvents,
		MaxBatchWait:   time.Duration(cfg.Audit.MaxBatchWaitMs) * time.Millisecond,
		Logger:         logger,
	}, auditSinks...)

	snapshots, err := a.buildSnapshots(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var publisher linker.Publisher
	if cfg.PubSub.TopicName != "" {
		pub, pubErr := pubsub.Open(ctx, cfg.PubSub.ProjectID)
		if pubErr != nil {
			return nil, fmt.Errorf("init pubsub: %w", pubErr)
		}
		a.closers = append(a.closers, pub.Close)
		publisher = pub
		logger.Info("publishing link notifications", zap.String("topic", cfg.PubSub.TopicName))
	}

	clock := system.New()
	deps := reconciler.Deps{
		Provider:  provider,
		Catalog:   catalog,
		Links:     links,
		Audit:     a.hub,
		Engine:    match.NewEngine(cfg.Match.Threshold, cfg.Match.AmbiguityThreshold),
		Walker:    paginate.NewWalker(provider, ext, clock, cfg.RequestDelay(), logger),
		Extractor: ext,
		Publisher: publisher,
		Clock:     clock,
		Logger:    logger,
	}
	if snapshots != nil {
		deps.Snapshots = snapshots
		deps.Hasher = hashsha.New()
	}
	a.service, err = reconciler.New(reconciler.Config{
		SiteName:       cfg.Source.SiteName,
		LinkType:       linker.LinkType(cfg.Source.LinkType),
		Language:       cfg.Source.Language,
		ClusterSize:    cfg.Source.ClusterSize,
		Sections:       cfg.Sweep.Sections,
		SearchMaxPages: cfg.Search.MaxPages,
		NotifyTopic:    cfg.PubSub.TopicName,
		SnapshotPrefix: cfg.Storage.Prefix,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("build reconciler: %w", err)
	}

	a.dispatcher = dispatcher.New(context.Background(), a.service, uuid.NewGenerator(), clock, logger)
	logger.Info("application services initialized")
	return a, nil
}

func (a *App) buildProvider(cfg config.Config, logger *zap.Logger) (linker.DocumentProvider, error) {
	headers := http.Header{}
	origin := strings.TrimRight(cfg.Source.BaseURL, "/")
	headers.Set("Origin", origin)
	headers.Set("Referer", origin+"/")
	if cfg.Headless.Enabled {
		p, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Source.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			Headers:           headers,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless browser: %w", err)
		}
		a.closers = append(a.closers, func() error {
			p.Close()
			return nil
		})
		logger.Info("using headless document provider", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		return p, nil
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		Headers:   headers,
	}), nil
}

func (a *App) buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (linker.CatalogRepository, linker.LinkRepository, sinks.Repository, error) {
	switch cfg.DB.Driver {
	case config.DriverMemory:
		var entries []linker.CanonicalEntry
		if cfg.DB.SeedFile != "" {
			f, err := os.Open(cfg.DB.SeedFile)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("open catalog seed: %w", err)
			}
			defer func() { _ = f.Close() }()
			entries, err = memory.LoadCatalogJSON(f)
			if err != nil {
				return nil, nil, nil, err
			}
		}
		logger.Info("using in-memory catalog", zap.Int("entries", len(entries)))
		store := memory.NewCatalogStore(entries, cfg.Match.CandidateLimit)
		return store, store, nil, nil
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.DB.DSN,
			MaxConns:       int32(cfg.DB.MaxConns),
			MinConns:       int32(cfg.DB.MinConns),
			CandidateLimit: cfg.Match.CandidateLimit,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		a.ready = store.Ping
		logger.Info("connected to postgres")
		return store, store, store, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown db driver: %s", cfg.DB.Driver)
	}
}

func (a *App) buildSnapshots(ctx context.Context, cfg config.Config, logger *zap.Logger) (linker.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "", config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local snapshots: %w", err)
		}
		logger.Info("writing snapshots to disk", zap.String("dir", cfg.Storage.LocalDir))
		return store, nil
	case config.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshots: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		logger.Info("writing snapshots to gcs", zap.String("bucket", cfg.Storage.GCSBucket))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// Close stops running work, flushes the audit hub and releases clients.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close audit hub: %w", err))
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// closeAll releases clients in reverse order of creation.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Execute runs a strategy synchronously through the dispatcher.
func (a *App) Execute(ctx context.Context, strategy linker.Strategy, startPage int) (string, error) {
	return a.dispatcher.Execute(ctx, strategy, startPage)
}
