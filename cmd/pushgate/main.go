package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sourcewatch/internal/config"
	"github.com/rickgao/sourcewatch/internal/dispatch"
	"github.com/rickgao/sourcewatch/internal/gateway"
	"github.com/rickgao/sourcewatch/internal/queue"
	"github.com/rickgao/sourcewatch/internal/store"
	"github.com/rickgao/sourcewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pushgate.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pushgate",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gateway_port", cfg.Gateway.Port,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	sources := store.NewSourceStore(pool)
	snapshots := store.NewSnapshotStore(pool)
	connections := store.NewConnectionStore(pool)

	// The hub is both the gateway's connection table and the dispatcher's
	// push transport.
	hub := gateway.NewHub(cfg.Gateway.WriteTimeout, logger)

	gwCfg := gateway.Config{
		WriteTimeout:  cfg.Gateway.WriteTimeout,
		ConnectionTTL: cfg.Gateway.ConnectionTTL,
	}
	server := gateway.NewServer(gwCfg, hub, connections, sources, snapshots, logger)

	dispatcher := dispatch.New(connections, hub, logger)

	consumerCfg := queue.Config{
		Channel:      cfg.Queue.Channel,
		BatchSize:    cfg.Queue.BatchSize,
		PollInterval: cfg.Queue.PollInterval,
	}
	consumer := queue.NewConsumer(consumerCfg, pool, dispatcher, logger)

	mux := http.NewServeMux()
	mux.Handle("/", server.Handler())
	mux.HandleFunc("/health", createHealthHandler(pool, hub))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting gateway listener", "port", cfg.Gateway.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("gateway listener error", "error", err)
			cancel()
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start event consumer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		consumer.Stop(shutdownCtx)
	}()

	logger.Info("pushgate running",
		"instance_id", cfg.Instance.ID,
		"ws_url", fmt.Sprintf("ws://localhost:%d/ws", cfg.Gateway.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Graceful shutdown: stop the listener, then close live websockets and
	// wait for their read loops to clean the directory.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown incomplete", "error", err)
	}

	logger.Info("pushgate stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, hub *gateway.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		health.Components["connections"] = map[string]interface{}{
			"live": hub.Len(),
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}
