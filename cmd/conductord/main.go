// Command conductord runs the trading-pipeline daemon: the single-flight
// job scheduler, its handlers, the cron loop, and the WebSocket feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quantfold/conductor/archive"
	"github.com/quantfold/conductor/broker"
	"github.com/quantfold/conductor/cron"
	"github.com/quantfold/conductor/engine"
	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/feed"
	"github.com/quantfold/conductor/handlers"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/observability"
	"github.com/quantfold/conductor/scheduler"
	"github.com/quantfold/conductor/store"
	"github.com/quantfold/conductor/store/memory"
	mongostore "github.com/quantfold/conductor/store/mongo"
	"github.com/quantfold/conductor/store/postgres"
	redisstore "github.com/quantfold/conductor/store/redis"
	"github.com/quantfold/conductor/store/sqlite"
	"github.com/quantfold/conductor/stream"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "conductor.yaml", "path to config yaml")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Persistence ─────────────────────────────────

	st, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck // best-effort close on teardown
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}

	// ── Collaborators ───────────────────────────────

	runner := engine.NewBinaryRunner(cfg.Engine.Binary,
		engine.WithWorkDir(cfg.Engine.WorkDir),
		engine.WithRunnerLogger(logger),
	)
	if err := runner.Check(); err != nil {
		logger.Warn("engine binary not found, compile before running pipeline jobs",
			"path", cfg.Engine.Binary, "error", err)
	}
	var builder *engine.Builder
	if len(cfg.Engine.BuildCommand) > 0 {
		builder = engine.NewBuilder(cfg.Engine.BuildCommand, cfg.Engine.BuildDir, logger)
	}

	cash, err := decimal.NewFromString(cfg.Broker.PaperStartingCash)
	if err != nil {
		return fmt.Errorf("config: broker.paper_starting_cash: %w", err)
	}
	brokerClient := broker.NewPaperClient(cash)

	// ── Scheduler assembly ──────────────────────────

	set := handlers.NewSet(handlers.Deps{
		Engine:   runner,
		Builder:  builder,
		Broker:   brokerClient,
		Settings: st,
		Logger:   logger,
	})

	extensions := ext.NewRegistry(logger)
	extensions.Register(archive.New(st, archive.WithLogger(logger)))
	events := stream.NewBroker(logger)
	extensions.Register(events)

	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return err
	}

	sched, err := scheduler.New(set.Registry(),
		scheduler.WithConfig(schedCfg),
		scheduler.WithLogger(logger),
		scheduler.WithExtensions(extensions),
		scheduler.WithSettings(store.NewPipelineSettings(st)),
		scheduler.WithAutoOptimize(cfg.AutoOptimize()),
	)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	metrics, err := observability.NewMetricsExtension(func() int64 {
		return int64(len(sched.QueuedJobs()))
	})
	if err != nil {
		return fmt.Errorf("build metrics extension: %w", err)
	}
	extensions.Register(metrics)

	// ── Cron ────────────────────────────────────────

	crond := cron.NewScheduler(sched, logger, cron.WithEmitter(extensions))
	for _, entry := range cfg.Cron {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		if err := crond.Register(&cron.Entry{
			Name:        entry.Name,
			Schedule:    entry.Schedule,
			JobType:     job.Type(entry.JobType),
			Description: entry.Description,
			Enabled:     enabled,
		}); err != nil {
			return err
		}
	}
	if err := crond.Start(ctx); err != nil {
		return fmt.Errorf("start cron: %w", err)
	}

	// ── Feed ────────────────────────────────────────

	feedHandler := feed.NewHandler(sched, events, logger, feed.WithSettingsStore(st))
	feedServer := feed.NewServer(events, feedHandler,
		feed.WithServerLogger(logger),
		feed.WithBasePath(cfg.Feed.BasePath),
	)
	mux := http.NewServeMux()
	feedServer.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              cfg.Feed.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("feed listening", "addr", cfg.Feed.Listen, "path", cfg.Feed.BasePath)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	logger.Info("conductord started",
		"store", cfg.Store.Backend,
		"engine", cfg.Engine.Binary,
		"cron_entries", len(cfg.Cron),
	)

	// ── Wait and shut down ──────────────────────────

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErr:
		logger.Error("feed server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := crond.Stop(shutdownCtx); err != nil {
		logger.Warn("cron stop", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("feed shutdown", "error", err)
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", "error", err)
	}
	logger.Info("conductord stopped")
	return nil
}

func buildLogger(cfg LogConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("config: unknown log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", cfg.Format)
	}
}

func openStore(cfg StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath, sqlite.WithLogger(logger))
	case "postgres":
		return postgres.Open(cfg.PostgresDSN, postgres.WithLogger(logger))
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return redisstore.New(client, redisstore.WithLogger(logger)), nil
	case "mongo":
		return mongostore.Open(cfg.MongoURI, cfg.MongoDatabase, mongostore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("config: unknown store backend %q", cfg.Backend)
	}
}
