package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTriggerFired     EventType = "trigger.fired"
	EventTypeDeferredRan      EventType = "deferred.ran"
	EventTypeDeferredFailed   EventType = "deferred.failed"
	EventTypeGameStateUpdated EventType = "game.state_updated"
)

// Event is the payload published on a game's channel
type Event struct {
	Type   EventType      `json:"type"`
	GameID string         `json:"game_id"`
	Data   map[string]any `json:"data,omitempty"`
}

// Broadcaster publishes game events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Channel returns the Pub/Sub channel for a game
func Channel(gameID uuid.UUID) string {
	return fmt.Sprintf("game-events:%s", gameID.String())
}

func (b *Broadcaster) PublishTriggersFired(ctx context.Context, gameID uuid.UUID, triggerIDs []string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type: EventTypeTriggerFired,
		Data: map[string]any{"triggers": triggerIDs},
	})
}

func (b *Broadcaster) PublishDeferredRan(ctx context.Context, gameID uuid.UUID, actionID uuid.UUID, action string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type: EventTypeDeferredRan,
		Data: map[string]any{"action_id": actionID.String(), "action": action},
	})
}

func (b *Broadcaster) PublishDeferredFailed(ctx context.Context, gameID uuid.UUID, actionID uuid.UUID, errorMsg string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type: EventTypeDeferredFailed,
		Data: map[string]any{"action_id": actionID.String(), "error": errorMsg},
	})
}

func (b *Broadcaster) PublishGameStateUpdated(ctx context.Context, gameID uuid.UUID) error {
	return b.publishToGame(ctx, gameID, Event{Type: EventTypeGameStateUpdated})
}

// publishToGame publishes an event to the game-specific channel
func (b *Broadcaster) publishToGame(ctx context.Context, gameID uuid.UUID, event Event) error {
	channel := Channel(gameID)
	event.GameID = gameID.String()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published", "channel", channel, "event_type", event.Type)
	return nil
}
