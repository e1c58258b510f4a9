package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker holds per-game locks in Redis so only one process mutates a game
// at a time. Locks expire after ttl in case the holder dies.
type Locker struct {
	rdb   *redis.Client
	owner string
	ttl   time.Duration
	log   *slog.Logger
}

func NewLocker(rdb *redis.Client, owner string, ttl time.Duration, log *slog.Logger) *Locker {
	if log == nil {
		log = slog.Default()
	}
	return &Locker{rdb: rdb, owner: owner, ttl: ttl, log: log}
}

func lockKey(gameID uuid.UUID) string {
	return fmt.Sprintf("game-lock:%s", gameID.String())
}

// Acquire returns false if another owner holds the lock
func (l *Locker) Acquire(ctx context.Context, gameID uuid.UUID) (bool, error) {
	return l.rdb.SetNX(ctx, lockKey(gameID), l.owner, l.ttl).Result()
}

// Release releases the lock for a game
func (l *Locker) Release(ctx context.Context, gameID uuid.UUID) {
	// The request context may already be cancelled; the lock must still go.
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, l.rdb, []string{lockKey(gameID)}, l.owner).Err(); err != nil {
		l.log.Error("Failed to release game lock", "error", err, "game_id", gameID.String())
	}
}
