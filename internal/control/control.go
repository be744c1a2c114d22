// Package control wires the gigwatch components together and manages
// their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/gigwatch/internal/api"
	"github.com/vietddude/gigwatch/internal/core/config"
	"github.com/vietddude/gigwatch/internal/datastream"
	"github.com/vietddude/gigwatch/internal/indexing/health"
	"github.com/vietddude/gigwatch/internal/indexing/readmodel"
	"github.com/vietddude/gigwatch/internal/indexing/recovery"
	"github.com/vietddude/gigwatch/internal/indexing/relay"
	"github.com/vietddude/gigwatch/internal/infra/chain/evm"
	"github.com/vietddude/gigwatch/internal/infra/llm"
	redisclient "github.com/vietddude/gigwatch/internal/infra/redis"
	"github.com/vietddude/gigwatch/internal/infra/rpc"
	"github.com/vietddude/gigwatch/internal/infra/storage"
	"github.com/vietddude/gigwatch/internal/infra/storage/memory"
	"github.com/vietddude/gigwatch/internal/infra/storage/postgres"
)

// App owns every long-lived component of the service.
type App struct {
	cfg *config.AppConfig

	client      *rpc.Client
	source      *evm.Adapter
	models      *readmodel.Accessors
	invalidator *readmodel.Invalidator
	streams     *datastream.Service
	healthMon   *health.Monitor
	server      *http.Server

	db          *postgres.DB
	redisClient *redisclient.Client

	group  *errgroup.Group
	cancel context.CancelFunc
	log    *slog.Logger
}

// New builds the application from cfg. It connects to the database and
// cache when they are configured and falls back to memory otherwise.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := slog.Default().With("component", "control")

	// 1. RPC router & client
	router := rpc.NewRouter()
	for _, p := range cfg.Chain.Providers {
		router.AddProvider(cfg.Chain.ChainID, rpc.NewHTTPProvider(p.Name, p.URL, p.Timeout))
	}
	client := rpc.NewClient(cfg.Chain.ChainID, router)

	// 2. Log source & contract reader
	source, err := evm.NewAdapter(client, evm.Options{
		ContractAddress: cfg.Chain.ContractAddress,
		WSURL:           cfg.Chain.WSURL,
		AvgBlockTime:    cfg.Chain.AvgBlockTime,
		PollInterval:    cfg.Chain.PollInterval,
		HeadCacheTTL:    cfg.Chain.HeadCacheTTL,
		MaxBlockRange:   cfg.Chain.MaxBlockRange,
		Reconnect:       recovery.PolicyFromConfig(cfg.Chain.Reconnect),
	})
	if err != nil {
		return nil, fmt.Errorf("init log source: %w", err)
	}
	reader := evm.NewReader(client, source.Contract())

	healthMon := health.NewMonitor(cfg.Chain.ChainID, source, client)

	app := &App{
		cfg:       cfg,
		client:    client,
		source:    source,
		healthMon: healthMon,
		log:       log,
	}

	// 3. Read-model cache
	var cache readmodel.Cache
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, using in-memory read-model cache", "error", err)
		} else {
			app.redisClient = rc
			cache = rc
			healthMon.AddCheck("redis", rc.Ping)
			log.Info("Using Redis read-model cache")
		}
	}
	app.models = readmodel.NewAccessors(reader, cache, cfg.Cache.TTL)
	app.invalidator = readmodel.NewInvalidator(source, app.models)

	// 4. Data stream storage
	var (
		schemaRepo storage.SchemaRepository
		recordRepo storage.RecordRepository
	)
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			app.closeStores()
			return nil, fmt.Errorf("init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			app.closeStores()
			return nil, fmt.Errorf("migrate db: %w", err)
		}
		app.db = db
		schemaRepo = postgres.NewSchemaRepo(db)
		recordRepo = postgres.NewRecordRepo(db)
		healthMon.AddCheck("database", db.Health)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		schemaRepo = memory.NewSchemaRepo(store)
		recordRepo = memory.NewRecordRepo(store)
		log.Info("Using Memory storage")
	}
	app.streams = datastream.NewService(schemaRepo, recordRepo)

	jobSchemaID, err := app.streams.Register(ctx, datastream.JobRecordSchema)
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("register job schema: %w", err)
	}
	log.Info("Job record schema registered", "schema_id", jobSchemaID)

	// 5. Text generation
	gen := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Models:  cfg.LLM.Models,
		Timeout: cfg.LLM.Timeout,
	})
	if !gen.Configured() {
		log.Warn("LLM api key not set, /api/ai endpoints will return 503")
	}

	// 6. HTTP surface
	handler := api.New(api.Config{
		Relay: relay.NewHandler(source, relay.Options{
			Heartbeat:      cfg.Server.HeartbeatInterval,
			BackfillBlocks: cfg.Chain.BackfillBlocks,
		}),
		Models:  app.models,
		LLM:     gen,
		Streams: app.streams,
		Health:  healthMon,
	})
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

// Handler returns the HTTP handler the server serves.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Start launches the HTTP server and background workers. It returns
// immediately; Wait blocks until they exit.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	a.group = g

	g.Go(func() error {
		a.log.Info("HTTP server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.invalidator.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	g.Go(func() error {
		a.runProviderReporter(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return nil
}

// Wait blocks until every component started by Start has exited.
func (a *App) Wait() error {
	if a.group == nil {
		return nil
	}
	return a.group.Wait()
}

// Stop shuts the server down, waits for the workers and closes the stores.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping gigwatch...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan error, 1)
	go func() { done <- a.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	a.closeStores()
	return err
}

func (a *App) closeStores() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

// runProviderReporter logs the provider dashboard periodically at debug.
func (a *App) runProviderReporter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.log.Debug("RPC providers\n"+a.client.Dashboard(),
				"subscriptions", a.source.ActiveSubscriptions())
		}
	}
}
