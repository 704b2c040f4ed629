// Newsloom aggregation server — fetches items from the configured sources,
// gates duplicates against the vector index, runs editorial review, and
// serves the REST API for job control and record reads.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/newsloom/newsloom/pkg/api"
	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/database"
	"github.com/newsloom/newsloom/pkg/dedup"
	"github.com/newsloom/newsloom/pkg/editorial"
	"github.com/newsloom/newsloom/pkg/ingest"
	"github.com/newsloom/newsloom/pkg/jobs"
	"github.com/newsloom/newsloom/pkg/llm"
	"github.com/newsloom/newsloom/pkg/logstream"
	"github.com/newsloom/newsloom/pkg/pipeline"
	"github.com/newsloom/newsloom/pkg/store"
	"github.com/newsloom/newsloom/pkg/vector"
	"github.com/newsloom/newsloom/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogging configures the process-wide slog handler from LOG_LEVEL
// (debug|info|warn|error) and LOG_FORMAT (text|json).
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(getEnv("LOG_FORMAT", "text")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ensureVectorCollections creates the per-kind collections when the index
// answers. An unreachable index is tolerated at startup (deduplication
// degrades per item until it recovers); a failure on a reachable one is a
// configuration error.
func ensureVectorCollections(ctx context.Context, vec *vector.Store, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := vec.Health(ctx); err != nil {
		slog.Warn("Vector index unreachable, semantic deduplication degrades until it recovers",
			"addr", cfg.Vector.Addr, "error", err)
		return nil
	}
	if err := vec.EnsureAll(ctx, cfg.LLM.EmbeddingDim); err != nil {
		return err
	}
	slog.Info("Vector collections ready", "dim", cfg.LLM.EmbeddingDim)
	return nil
}

func main() {
	os.Exit(run())
}

// run holds main's body so deferred cleanups execute before the process
// exits. Exit codes: 0 clean shutdown, 1 failure, 130 user interrupt.
func run() int {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory before reading any settings.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err == nil {
		slog.Info("Loaded environment", "path", envPath)
	}

	setupLogging()
	if strings.ToLower(os.Getenv("LOG_LEVEL")) != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("Starting newsloom",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		return 1
	}

	// 2. Initialize database (applies pending migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		return 1
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return 1
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	st := store.New(dbClient.Pool())

	// 3. LLM client. A downed backend is not fatal: jobs that request
	// editorial processing record their items as services_unavailable
	// until it recovers.
	llmClient := llm.NewClient(cfg.LLM)
	if err := llmClient.Health(ctx); err != nil {
		slog.Warn("LLM backend unreachable at startup",
			"base_url", cfg.LLM.BaseURL, "error", err)
	}

	// 4. Vector index
	vecStore, err := vector.New(cfg.Vector)
	if err != nil {
		slog.Error("Failed to create vector store", "addr", cfg.Vector.Addr, "error", err)
		return 1
	}
	defer func() {
		if err := vecStore.Close(); err != nil {
			slog.Error("Error closing vector store", "error", err)
		}
	}()
	if err := ensureVectorCollections(ctx, vecStore, cfg); err != nil {
		slog.Error("Failed to ensure vector collections", "error", err)
		return 1
	}

	// 5. Domain services
	dedupSvc := dedup.New(llmClient, vecStore, cfg.Pipeline.SimilarityThreshold)
	editorialSvc := editorial.New(llmClient, cfg.Editorial)

	// 6. Source drivers
	drivers, err := ingest.Registry(cfg.Sources)
	if err != nil {
		slog.Error("Failed to build source drivers", "error", err)
		return 1
	}
	slog.Info("Source drivers ready", "count", len(drivers))

	// 7. Run-log store (redis with file fallback)
	logStore, err := logstream.New(ctx, cfg.Redis, cfg.Pipeline)
	if err != nil {
		slog.Error("Failed to initialize log store", "error", err)
		return 1
	}

	// 8. Pipeline and job runner
	pipe := pipeline.New(drivers, pipeline.Deps{
		Raw:       st.Raw,
		Finalizer: st,
		Dedup:     dedupSvc,
		Editorial: editorialSvc,
		Health:    llmClient,
		Logs:      logStore,
	}, cfg.Pipeline)

	runner := jobs.New(pipe, cfg.Pipeline)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runner.Start(runCtx)

	// 9. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, api.Deps{
		Jobs:      runner,
		Raw:       st.Raw,
		Processed: st.Processed,
		ShortForm: st.ShortForm,
		Stats:     st,
		Logs:      logStore,
		DB:        dbClient.Pool(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Run(runCtx)
	}()

	slog.Info("Newsloom started",
		"addr", cfg.HTTP.Addr,
		"workers", cfg.Pipeline.RunnerWorkers,
		"log_backend", logStore.Backend())

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
		if sig == syscall.SIGINT {
			exitCode = 130
		}
		cancelRun()
		if err := <-errCh; err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			exitCode = 1
		}
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		cancelRun()
		exitCode = 1
	}

	// 11. Stop the job runner. Cancelling runCtx already aborts running
	// jobs at their next item boundary; Stop waits for the workers.
	runner.Stop()

	slog.Info("Shutdown complete")
	return exitCode
}
