package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/pkg/actor"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/state"
	"github.com/jwebster45206/questscript/pkg/trigger"
	"github.com/redis/go-redis/v9"
)

// Storage combines game state persistence (Redis) with authored resource
// loading (filesystem).
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// GameState operations (Redis-backed)
	SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error
	LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error)
	DeleteGameState(ctx context.Context, id uuid.UUID) error

	// Trigger documents (filesystem-backed)
	ListTriggerFiles(ctx context.Context) ([]string, error)
	GetTriggers(ctx context.Context, filename string) (*trigger.Set, error)

	// Actor specs (filesystem-backed)
	GetActor(ctx context.Context, actorID string) (*actor.Actor, error)
	ListActors(ctx context.Context) ([]string, error)
}

// RedisStorage implements Storage using Redis for game state and the data
// directory for triggers and actors
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string
	loader  *trigger.Loader
}

var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance. redisURL is a
// redis:// URL or a bare host:port.
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) *RedisStorage {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dataDir == "" {
		dataDir = "./data"
	}

	return &RedisStorage{
		client:  redis.NewClient(opt),
		logger:  logger,
		dataDir: dataDir,
		loader:  trigger.NewLoader(nil, logger),
	}
}

// SetParser makes trigger loading recognize the parser's extension fields
func (r *RedisStorage) SetParser(p *script.Parser) {
	r.loader = trigger.NewLoader(p, r.logger)
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	const maxRetries = 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}
