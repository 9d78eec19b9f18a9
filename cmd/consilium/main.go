// Consilium coordination server — hosts the blackboard HTTP API, the
// governance coordinator, the consensus engine, and the background
// maintenance loops.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/consilium-ai/consilium/pkg/api"
	"github.com/consilium-ai/consilium/pkg/blackboard"
	"github.com/consilium-ai/consilium/pkg/config"
	"github.com/consilium-ai/consilium/pkg/consensus"
	"github.com/consilium-ai/consilium/pkg/coordinator"
	"github.com/consilium-ai/consilium/pkg/database"
	"github.com/consilium-ai/consilium/pkg/events"
	"github.com/consilium-ai/consilium/pkg/monitor"
	"github.com/consilium-ai/consilium/pkg/validator"
	"github.com/consilium-ai/consilium/pkg/version"
	"github.com/consilium-ai/consilium/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting consilium", "version", version.Full(), "http_port", httpPort)

	ctx := context.Background()

	// 1. Configuration
	cfg := config.FromEnv()

	// 2. Database (runs embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Event fan-out: publisher over the pool, listener on a
	// dedicated connection.
	publisher := events.NewPublisher(dbClient.DB())
	listener := events.NewListener(dbClient.DSN())
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start event listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(ctx)

	// 4. Blackboard store, observed by the performance monitor.
	store := blackboard.NewStore(dbClient.DB(), publisher, cfg.Retention.KnowledgeCacheTTL)
	registry := prometheus.NewRegistry()
	perfMonitor := monitor.New(cfg.Monitor, store, registry)
	store.SetObserver(perfMonitor)
	perfMonitor.Start(ctx)
	defer perfMonitor.Stop()

	// 5. One-time startup recovery of tasks held by dead agents.
	recovered, err := store.RecoverOrphanedTasks(ctx)
	if err != nil {
		slog.Error("Startup orphan recovery failed", "error", err)
		// Non-fatal — the timeout scanner will catch them.
	} else if recovered > 0 {
		slog.Info("Recovered orphaned tasks at startup", "count", recovered)
	}

	// 6. Background maintenance: purge sweeper and agent-timeout scan.
	sweeper := blackboard.NewSweeper(store, *cfg.Retention)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	timeoutScanner := worker.NewTimeoutScanner(store, cfg.Worker)
	timeoutScanner.Start(ctx)
	defer timeoutScanner.Stop()

	// 7. Consensus engine with its deadline sweeper.
	engine := consensus.NewEngine(cfg.Consensus, store)
	engine.Start(ctx)
	defer engine.Stop()

	// 8. Coordinator: decomposition, integration, conflict resolution.
	validatorClient := validator.NewClient(*cfg.Validator)
	coord := coordinator.New(store, publisher, validatorClient, engine, perfMonitor)
	if err := coord.Start(ctx, listener); err != nil {
		slog.Error("Failed to start coordinator", "error", err)
		os.Exit(1)
	}
	defer coord.Stop()

	// 9. HTTP server (non-blocking)
	httpServer := api.NewServer(dbClient.DB(), store, coord, engine, perfMonitor, registry)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Consilium started successfully")

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop taking requests first, then let the
	// deferred stops unwind the background loops in reverse order.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
