package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/pkg/queue"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/redis/go-redis/v9"
)

// GamesKey is the set of games that may have deferred actions pending.
const GamesKey = "deferred:games"

var ErrInvalidDomain = errors.New("invalid time domain")

// popDueScript claims every member scored at or below ARGV[1] in one step,
// so concurrent workers never run the same action twice.
var popDueScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
end
return items
`)

// pruneScript drops a game from the games set once all its queues are empty.
var pruneScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
	if key ~= KEYS[1] and redis.call('ZCARD', key) > 0 then
		return 0
	end
end
return redis.call('SREM', KEYS[1], ARGV[1])
`)

// DeferredQueue stores scheduled actions in one sorted set per game and
// time domain, scored by due time.
type DeferredQueue struct {
	client *Client
}

func NewDeferredQueue(client *Client) *DeferredQueue {
	return &DeferredQueue{
		client: client,
	}
}

func queueKey(gameID uuid.UUID, domain script.TimeDomain) string {
	return fmt.Sprintf("deferred:%s:%s", gameID.String(), domain)
}

func checkDomain(domain script.TimeDomain) error {
	switch domain {
	case script.DomainReal, script.DomainWorld, script.DomainGame:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidDomain, domain)
}

// Enqueue adds an action to its game's queue for its domain
func (dq *DeferredQueue) Enqueue(ctx context.Context, action *queue.ScheduledAction) error {
	if err := checkDomain(action.Domain); err != nil {
		return err
	}
	data, err := action.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize action: %w", err)
	}

	key := queueKey(action.GameID, action.Domain)
	_, err = dq.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: action.Due, Member: data})
		pipe.SAdd(ctx, GamesKey, action.GameID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue deferred action: %w", err)
	}

	dq.client.logger.Debug("Enqueued deferred action",
		"game_id", action.GameID,
		"domain", action.Domain,
		"due", action.Due)
	return nil
}

// PopDue removes and returns the actions due at or before now, ordered by
// due time then scheduling time. Entries that cannot be decoded are logged
// and dropped.
func (dq *DeferredQueue) PopDue(ctx context.Context, gameID uuid.UUID, domain script.TimeDomain, now float64) ([]*queue.ScheduledAction, error) {
	if err := checkDomain(domain); err != nil {
		return nil, err
	}
	key := queueKey(gameID, domain)
	items, err := popDueScript.Run(ctx, dq.client.rdb, []string{key}, strconv.FormatFloat(now, 'f', -1, 64)).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to pop due actions: %w", err)
	}
	return dq.decode(gameID, items), nil
}

// Pending returns the queued actions for a domain without removing them
func (dq *DeferredQueue) Pending(ctx context.Context, gameID uuid.UUID, domain script.TimeDomain) ([]*queue.ScheduledAction, error) {
	if err := checkDomain(domain); err != nil {
		return nil, err
	}
	items, err := dq.client.rdb.ZRange(ctx, queueKey(gameID, domain), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read pending actions: %w", err)
	}
	return dq.decode(gameID, items), nil
}

// Depth returns the number of actions queued for a game across all domains
func (dq *DeferredQueue) Depth(ctx context.Context, gameID uuid.UUID) (int, error) {
	total := 0
	for _, domain := range script.TimeDomains {
		count, err := dq.client.rdb.ZCard(ctx, queueKey(gameID, domain)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to get queue depth: %w", err)
		}
		total += int(count)
	}
	return total, nil
}

// Games returns the games that may have pending actions
func (dq *DeferredQueue) Games(ctx context.Context) ([]uuid.UUID, error) {
	members, err := dq.client.rdb.SMembers(ctx, GamesKey).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	games := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			dq.client.logger.Warn("Ignoring invalid game id in deferred set", "member", m)
			continue
		}
		games = append(games, id)
	}
	return games, nil
}

// Prune removes the game from the games set when nothing is queued for it
func (dq *DeferredQueue) Prune(ctx context.Context, gameID uuid.UUID) error {
	keys := []string{GamesKey}
	for _, domain := range script.TimeDomains {
		keys = append(keys, queueKey(gameID, domain))
	}
	if err := pruneScript.Run(ctx, dq.client.rdb, keys, gameID.String()).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to prune game: %w", err)
	}
	return nil
}

// Clear removes all deferred actions for a game
func (dq *DeferredQueue) Clear(ctx context.Context, gameID uuid.UUID) error {
	keys := make([]string, 0, len(script.TimeDomains))
	for _, domain := range script.TimeDomains {
		keys = append(keys, queueKey(gameID, domain))
	}
	_, err := dq.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, GamesKey, gameID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear deferred actions: %w", err)
	}
	return nil
}

func (dq *DeferredQueue) decode(gameID uuid.UUID, items []string) []*queue.ScheduledAction {
	actions := make([]*queue.ScheduledAction, 0, len(items))
	for _, item := range items {
		a, err := queue.FromJSON([]byte(item))
		if err != nil {
			dq.client.logger.Error("Dropping undecodable deferred action", "game_id", gameID, "error", err)
			continue
		}
		actions = append(actions, a)
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Due != actions[j].Due {
			return actions[i].Due < actions[j].Due
		}
		return actions[i].ScheduledAt.Before(actions[j].ScheduledAt)
	})
	return actions
}
