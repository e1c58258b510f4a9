package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/questscript/internal/config"
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

	log.Info("Starting Questscript Worker",
		"environment", cfg.Environment,
		"worker_id", cfg.WorkerID,
		"poll_interval", cfg.PollInterval)

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	deferred := queue.NewDeferredQueue(queueClient)
	log.Info("Queue service initialized successfully")

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("Storage service initialized successfully")

	registry := resolvers.Base(log)
	registry.Verbose = cfg.VerboseResolvers
	parser := script.NewParser(log, cfg.ExtensionFields...)

	processor := worker.NewProcessor(store, deferred, queue.NewClock(queueClient), registry, log)
	processor.SetParser(parser)
	processor.SetLocker(worker.NewLocker(queueClient.GetRedisClient(), cfg.WorkerID, cfg.LockTTL, log))
	processor.SetBroadcaster(events.NewBroadcaster(queueClient.GetRedisClient(), log))
	if cfg.ScriptsDir != "" {
		runner := luascript.New(log)
		if err := runner.LoadDir(cfg.ScriptsDir); err != nil {
			log.Error("Failed to load scripts", "error", err, "dir", cfg.ScriptsDir)
			os.Exit(1)
		}
		processor.SetScripts(runner)
	}

	w := worker.New(deferred, processor, cfg.PollInterval, log, cfg.WorkerID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, polling for deferred actions...")

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	log.Info("Worker exited")
}
