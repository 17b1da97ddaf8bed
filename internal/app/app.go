package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/deployify/internal/config"
	"github.com/wisbric/deployify/internal/httpserver"
	"github.com/wisbric/deployify/internal/platform"
	"github.com/wisbric/deployify/internal/ratelimit"
	"github.com/wisbric/deployify/internal/telemetry"
	"github.com/wisbric/deployify/pkg/builder"
	"github.com/wisbric/deployify/pkg/credential"
	"github.com/wisbric/deployify/pkg/deployment"
	"github.com/wisbric/deployify/pkg/logbus"
	"github.com/wisbric/deployify/pkg/provider"
	"github.com/wisbric/deployify/pkg/provider/netlify"
	"github.com/wisbric/deployify/pkg/provider/vercel"
	"github.com/wisbric/deployify/pkg/queue"
	"github.com/wisbric/deployify/pkg/worker"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api, worker, or migrate).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting deployify",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL(), cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL())
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL(), cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	dockerClient, err := platform.NewDockerClient(cfg.ContainerHost)
	if err != nil {
		logger.Warn("creating docker client, builds for non-static workspaces will fail", "error", err)
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	registry := provider.NewRegistry(netlify.New(), vercel.New())
	credStore := credential.NewStore(db)
	vault := credential.NewVault(credStore, registry, cfg.EncryptionKey, logger)
	b := builder.New(cfg.WorkspaceBaseDir, dockerClient)
	deployStore := deployment.NewStore(db)
	bus := logbus.New(db, rdb, logger)
	q := queue.New(rdb)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, registry, vault, b, deployStore, bus, q)
	case "worker":
		return runWorker(ctx, cfg, logger, registry, vault, b, deployStore, bus, q)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	registry *provider.Registry,
	vault *credential.Vault,
	b *builder.Builder,
	deployStore *deployment.Store,
	bus *logbus.Bus,
	q *queue.Queue,
) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	var intakeLimit *ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		intakeLimit = ratelimit.New(rdb, cfg.RateLimitPerMinute, time.Minute)
	}

	credentialHandler := credential.NewHandler(vault, logger)
	srv.APIRouter.Mount("/credentials", credentialHandler.Routes())

	jobTimeout := time.Duration(cfg.JobTimeoutMS) * time.Millisecond
	deploymentHandler := deployment.NewHandler(deployStore, q, bus, b, registry, logger, cfg.MaxAttempts, jobTimeout, intakeLimit)
	srv.APIRouter.Mount("/deploy", deploymentHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	registry *provider.Registry,
	vault *credential.Vault,
	b *builder.Builder,
	deployStore *deployment.Store,
	bus *logbus.Bus,
	q *queue.Queue,
) error {
	logger.Info("worker started")

	reaper := queue.NewReaper(q, logger)
	go func() {
		if err := reaper.Run(ctx); err != nil {
			logger.Error("queue reaper stopped", "error", err)
		}
	}()

	retention, err := time.ParseDuration(cfg.LogRetention)
	if err != nil {
		return fmt.Errorf("parsing LOG_RETENTION %q: %w", cfg.LogRetention, err)
	}
	go logbus.RunRetentionSweepLoop(ctx, bus, retention, 1*time.Hour, logger)

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	logger.Info("starting worker pool", "count", workerCount)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		pipeline := worker.New(q, deployStore, bus, vault, registry, b, logger.With("worker_id", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pipeline.Run(ctx); err != nil {
				logger.Error("worker pipeline stopped", "error", err)
			}
		}()
	}

	wg.Wait()
	return nil
}
