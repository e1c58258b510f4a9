package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/questscript/internal/config"
	"github.com/jwebster45206/questscript/internal/handlers"
	"github.com/jwebster45206/questscript/internal/logger"
	"github.com/jwebster45206/questscript/internal/services/events"
	"github.com/jwebster45206/questscript/internal/services/queue"
	"github.com/jwebster45206/questscript/internal/storage"
	"github.com/jwebster45206/questscript/internal/worker"
	"github.com/jwebster45206/questscript/pkg/luascript"
	"github.com/jwebster45206/questscript/pkg/resolvers"
	"github.com/jwebster45206/questscript/pkg/script"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Questscript API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"data_dir", cfg.DataDir)

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}

	registry := resolvers.Base(log)
	registry.Verbose = cfg.VerboseResolvers
	parser := script.NewParser(log, cfg.ExtensionFields...)
	store.SetParser(parser)

	clock := queue.NewClock(queueClient)
	processor := worker.NewProcessor(store, queue.NewDeferredQueue(queueClient), clock, registry, log)
	processor.SetParser(parser)
	processor.SetLocker(worker.NewLocker(queueClient.GetRedisClient(), "api-"+cfg.WorkerID, cfg.LockTTL, log))
	processor.SetBroadcaster(events.NewBroadcaster(queueClient.GetRedisClient(), log))
	if cfg.ScriptsDir != "" {
		runner := luascript.New(log)
		if err := runner.LoadDir(cfg.ScriptsDir); err != nil {
			log.Error("Failed to load scripts", "error", err, "dir", cfg.ScriptsDir)
			os.Exit(1)
		}
		processor.SetScripts(runner)
	}

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, log)
	mux.Handle("/health", healthHandler)

	gameStateHandler := handlers.NewGameStateHandler(processor, store, clock, log)
	mux.Handle("/v1/gamestate", gameStateHandler)
	mux.Handle("/v1/gamestate/", gameStateHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := queueClient.Close(); err != nil {
		log.Error("Error closing queue client", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}
