package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/internal/services/queue"
)

// Worker polls the deferred queue and runs due actions for every game
type Worker struct {
	id        string
	queue     *queue.DeferredQueue
	processor *Processor
	interval  time.Duration
	log       *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a new worker instance
func New(dq *queue.DeferredQueue, processor *Processor, interval time.Duration, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		id:        workerID,
		queue:     dq,
		processor: processor,
		interval:  interval,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start polls until Stop is called
func (w *Worker) Start() error {
	defer close(w.done)
	w.log.Info("Worker starting", "worker_id", w.id, "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(w.ctx); err != nil && w.ctx.Err() == nil {
			w.log.Error("Error processing deferred actions", "error", err, "worker_id", w.id)
		}

		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		case <-ticker.C:
		}
	}
}

// Stop cancels the poll loop and waits for the current tick to finish
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
	<-w.done
}

// Tick runs due actions for every game with pending work once. Games locked
// by another worker are left for the next tick.
func (w *Worker) Tick(ctx context.Context) error {
	games, err := w.queue.Games(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, gameID := range games {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ran, err := w.processor.RunDue(ctx, gameID)
		switch {
		case errors.Is(err, ErrGameBusy):
			w.log.Debug("Game locked, skipping", "worker_id", w.id, "game_id", gameID.String())
		case err != nil:
			errs = append(errs, fmt.Errorf("game %s: %w", gameID, err))
		case ran > 0:
			w.log.Info("Ran deferred actions", "worker_id", w.id, "game_id", gameID.String(), "count", ran)
		}
	}
	return errors.Join(errs...)
}
