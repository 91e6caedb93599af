package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/vietddude/vidgate/internal/core/config"
	"github.com/vietddude/vidgate/internal/core/worker"
	redisclient "github.com/vietddude/vidgate/internal/infra/redis"
	"github.com/vietddude/vidgate/internal/infra/rpc"
	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
	"github.com/vietddude/vidgate/internal/infra/rpc/provider"
	"github.com/vietddude/vidgate/internal/infra/rpc/retry"
	"github.com/vietddude/vidgate/internal/infra/storage"
	"github.com/vietddude/vidgate/internal/infra/storage/memory"
	"github.com/vietddude/vidgate/internal/infra/storage/postgres"
	"github.com/vietddude/vidgate/internal/monitor"
	"github.com/vietddude/vidgate/internal/telemetry"
)

// Version is reported to the tracing backend.
var Version = "dev"

var initTelemetry = telemetry.Init

// Gateway owns the monitored API client and its background workers.
type Gateway struct {
	cfg         *config.AppConfig
	client      *rpc.Client
	transport   provider.Transport
	monitor     *monitor.Monitor
	refresher   *monitor.Refresher
	pruner      *worker.Pruner
	server      *monitor.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	shutdown    telemetry.ShutdownFunc
	log         *slog.Logger
}

// Options holds dependencies that cannot come from the YAML config.
type Options struct {
	// GRPCHandlers binds generated stubs when api.transport is grpc.
	GRPCHandlers provider.GRPCHandlers
	// Transport overrides the configured transport.
	Transport provider.Transport
	Logger    *slog.Logger
}

// NewGateway creates a Gateway with all dependencies initialized.
func NewGateway(ctx context.Context, cfg *config.AppConfig, opts Options) (*Gateway, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{cfg: cfg, log: log}

	// 1. Storage
	metricRepo, targetRepo, err := g.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	sinks := []storage.HealthSnapshotStore{targetRepo}
	if cfg.Redis.URL != "" {
		g.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			g.release(ctx)
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		// Redis answers cached reads first.
		sinks = []storage.HealthSnapshotStore{g.redisClient, targetRepo}
		log.Info("Using Redis health cache", "ttl", cfg.Redis.HealthTTL)
	}

	// 2. Monitoring
	g.monitor = monitor.New(metricRepo, cfg.Monitor,
		monitor.WithLogger(log),
		monitor.WithTargets(targetRepo),
		monitor.WithSnapshotStores(sinks...),
	)
	g.refresher = monitor.NewRefresher(g.monitor, log)
	if cfg.Monitor.Retention > 0 {
		g.pruner = worker.NewPruner(cfg.Monitor.Retention, metricRepo, log)
	}
	g.server = monitor.NewServer(g.monitor, ":"+strconv.Itoa(cfg.Server.Port), log)

	// 3. Tracing
	g.shutdown, err = initTelemetry(ctx, cfg.Telemetry, Version)
	if err != nil {
		g.release(ctx)
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	// 4. API client
	g.transport = opts.Transport
	if g.transport == nil {
		g.transport, err = NewTransport(cfg.API, opts.GRPCHandlers)
		if err != nil {
			g.release(ctx)
			return nil, err
		}
	}
	engine, err := NewEngine(cfg.Retry, log)
	if err != nil {
		g.release(ctx)
		return nil, err
	}
	clientOpts := []rpc.Option{
		rpc.WithEngine(engine),
		rpc.WithPolicies(cfg.Retry.Policies),
		rpc.WithRecorder(g.monitor),
		rpc.WithLogger(log),
	}
	if cfg.API.RateLimit > 0 {
		clientOpts = append(clientOpts, rpc.WithLimiter(rate.NewLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.Burst)))
	}
	g.client = rpc.NewClient(g.transport, clientOpts...)

	return g, nil
}

// targetStore is a target registry that also keeps health snapshots.
type targetStore interface {
	storage.TargetRepository
	storage.HealthSnapshotStore
}

func (g *Gateway) openStorage(ctx context.Context) (storage.MetricRepository, targetStore, error) {
	if g.cfg.Database.URL == "" {
		store := memory.NewMemoryStorage()
		g.log.Info("Using Memory storage")
		return memory.NewMetricRepo(store), memory.NewTargetRepo(store), nil
	}

	db, err := postgres.NewDB(ctx, g.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	g.db = db
	g.log.Info("Using PostgreSQL storage")
	return postgres.NewMetricRepo(db), postgres.NewTargetRepo(db), nil
}

// release undoes a partially built gateway.
func (g *Gateway) release(ctx context.Context) {
	if g.transport != nil {
		_ = g.transport.Close()
	}
	if g.shutdown != nil {
		if err := g.shutdown(ctx); err != nil {
			g.log.Warn("Failed to shut down telemetry", "error", err)
		}
	}
	if g.redisClient != nil {
		_ = g.redisClient.Close()
	}
	if g.db != nil {
		_ = g.db.Close()
	}
}

// NewTransport builds the configured transport to the generation API.
func NewTransport(cfg config.APIConfig, h provider.GRPCHandlers) (provider.Transport, error) {
	switch cfg.Transport {
	case "grpc":
		t, err := provider.NewGRPCTransport("grpc", cfg.GRPCEndpoint, cfg.Token, h)
		if err != nil {
			return nil, fmt.Errorf("failed to init grpc transport: %w", err)
		}
		return t, nil
	case "", "rest":
		return provider.NewHTTPTransport(provider.HTTPConfig{
			Name:      "rest",
			BaseURL:   cfg.BaseURL,
			Token:     cfg.Token,
			Timeout:   cfg.Timeout,
			UserAgent: cfg.UserAgent,
		}), nil
	default:
		return nil, fmt.Errorf("unknown api transport %q", cfg.Transport)
	}
}

// NewEngine builds the retry engine from config. Explicit kind overrides
// win over the built-in presets.
func NewEngine(cfg config.RetryConfig, log *slog.Logger) (*retry.Engine, error) {
	opts := []retry.Option{
		retry.WithLogger(log),
		retry.WithRetryObserver(rpc.CountRetries),
	}
	if cfg.KindPresets {
		opts = append(opts, retry.KindPresets(cfg.Policies.Create.JitterFactor)...)
	}
	for name, p := range cfg.KindOverrides {
		kind := classify.Kind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown error kind %q", name)
		}
		opts = append(opts, retry.WithKindPolicy(kind, p))
	}
	return retry.NewEngine(opts...), nil
}

// Client returns the unbound API client. Bind it with WithContext to record
// metrics.
func (g *Gateway) Client() *rpc.Client {
	return g.client
}

// Monitor returns the performance monitor.
func (g *Gateway) Monitor() *monitor.Monitor {
	return g.monitor
}

// Handler returns the monitoring HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler()
}

// Start starts the HTTP server and background workers.
func (g *Gateway) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := g.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("Monitor server failed", "error", err)
		}
	}()

	// Start health cache refresher
	go g.refresher.Start(ctx)

	// Start DB Metrics Collector
	if g.db != nil {
		g.db.StartMetricsCollector(ctx)
	}

	if g.pruner != nil {
		g.log.Info("Starting metric pruner", "retention", g.cfg.Monitor.Retention)
		go g.pruner.Start(ctx)
	}

	g.log.Info("Gateway started",
		"port", g.cfg.Server.Port,
		"transport", g.transport.Name(),
	)
	return nil
}

// Stop stops the gateway and flushes pending health snapshots.
func (g *Gateway) Stop(ctx context.Context) error {
	g.log.Info("Stopping Gateway...")

	var errs []error
	if err := g.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("monitor server: %w", err))
	}
	if n := g.refresher.Flush(ctx); n > 0 {
		g.log.Debug("Flushed health snapshots", "count", n)
	}
	if err := g.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	if g.shutdown != nil {
		if err := g.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}

	// Close Redis
	if g.redisClient != nil {
		if err := g.redisClient.Close(); err != nil {
			g.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
