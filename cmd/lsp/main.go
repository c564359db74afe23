package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Loofy147/Lsp/internal/api"
	"github.com/Loofy147/Lsp/internal/bus"
	"github.com/Loofy147/Lsp/internal/cache"
	"github.com/Loofy147/Lsp/internal/config"
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/pipeline"
	"github.com/Loofy147/Lsp/internal/repository"
	"github.com/Loofy147/Lsp/internal/rules"
	"github.com/Loofy147/Lsp/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("no dotenv file loaded, using process environment", "path", *envFile, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting lsp analytics",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	p, err := pipeline.New(cfg.Analytics, repo, cacheImpl, busImpl, engine)
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	p.WithSweepConcurrency(cfg.Scheduler.SweepConcurrency)

	// Rebuild in-memory profiles for the tenants we know about up front.
	// Other tenants start cold and fill as activities arrive.
	for _, tenantID := range cfg.Scheduler.Tenants {
		n, err := p.Warm(ctx, tenantID)
		if err != nil {
			slog.Error("failed to warm tenant", "tenant_id", tenantID, "error", err)
			os.Exit(1)
		}
		slog.Info("tenant warmed", "tenant_id", tenantID, "users", n)
	}

	asyncWorker := worker.NewWorker(busImpl, p)
	if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Scheduler.Tenants}); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}

	var scheduler *worker.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = worker.NewScheduler(p, cfg.Scheduler)
		scheduler.Start(ctx)
	}

	srv := api.NewServer(cfg.Server, p, repo, cacheImpl, busImpl, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("lsp analytics is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("lsp analytics shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  LSP behavioral analytics")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /activities                - Assess and apply an activity")
	fmt.Println("    POST /activities/async          - Queue an activity for the worker")
	fmt.Println("    POST /assessments/structured    - Apply a graded language assessment")
	fmt.Println("    GET  /users/{id}/capabilities   - Capability estimates and curves")
	fmt.Println("    GET  /users/{id}/wellbeing      - Wellbeing assessment")
	fmt.Println("    GET  /patterns                  - Latest discovered patterns")
	fmt.Println("    POST /patterns/discover         - Run pattern discovery")
	fmt.Println("    GET  /rules                     - List alert rules")
	fmt.Println("    POST /rules                     - Create an alert rule")
	fmt.Println("    POST /rules/reload              - Hot-reload alert rules")
	fmt.Println("    GET  /health, /ready, /metrics  - Operations")
	fmt.Println()
}
