package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"complaint_server/config"
	"complaint_server/internal/bootstrap"
	"complaint_server/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "complaint-server",
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	if err := cfg.Validate(*mode); err != nil {
		logger.Fatal("Invalid config: %v", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(deps)
	case "worker":
		runWorker(deps)
	case "all":
		go runWorker(deps)
		runAPI(deps)
	case "once":
		if !runOnce(deps) {
			cleanup()
			os.Exit(1)
		}
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(deps)

	// Graceful shutdown with timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if deps.Scheduler != nil {
			deps.Scheduler.Stop()
		}
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + deps.Config.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func runWorker(deps *bootstrap.Dependencies) {
	worker, err := bootstrap.NewWorker(deps)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)
		worker.Stop()
	}()

	logger.Info("Starting worker...")
	worker.Start()
}

// runOnce runs a single batch and reports whether it succeeded.
func runOnce(deps *bootstrap.Dependencies) bool {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := bootstrap.RunOnce(ctx, deps)
	if summary != nil {
		logger.Info("Run %s: checked=%d new=%d updated=%d merged=%d filtered=%d unchanged=%d failed=%d",
			summary.RunID, summary.Checked, summary.New, summary.Updated, summary.Merged,
			summary.FilteredOut, summary.Unchanged, summary.Failed)
		for _, u := range summary.Updates {
			logger.Info("  %s", u)
		}
	}
	if err != nil {
		logger.Error("Run failed: %v", err)
		return false
	}
	return true
}
