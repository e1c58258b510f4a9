package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/redis/go-redis/v9"
)

var ErrClockNotAdvanceable = errors.New("real time cannot be advanced")

// Clock reads the current time of each domain for a game. Real time is the
// wall clock in unix seconds. World and game time are counters stored in
// Redis that only move when advanced.
type Clock struct {
	client *Client
	now    func() time.Time
}

func NewClock(client *Client) *Clock {
	return &Clock{client: client, now: time.Now}
}

func clockKey(gameID uuid.UUID, domain script.TimeDomain) string {
	return fmt.Sprintf("clock:%s:%s", gameID.String(), domain)
}

// Now returns the current time of domain for a game
func (c *Clock) Now(ctx context.Context, gameID uuid.UUID, domain script.TimeDomain) (float64, error) {
	if err := checkDomain(domain); err != nil {
		return 0, err
	}
	if domain == script.DomainReal {
		return float64(c.now().UnixNano()) / float64(time.Second), nil
	}

	v, err := c.client.rdb.Get(ctx, clockKey(gameID, domain)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s clock: %w", domain, err)
	}
	return v, nil
}

// Advance moves a world or game clock forward and returns the new time
func (c *Clock) Advance(ctx context.Context, gameID uuid.UUID, domain script.TimeDomain, amount float64) (float64, error) {
	if err := checkDomain(domain); err != nil {
		return 0, err
	}
	if domain == script.DomainReal {
		return 0, ErrClockNotAdvanceable
	}
	if amount < 0 {
		return 0, fmt.Errorf("clock cannot move backwards: %v", amount)
	}

	v, err := c.client.rdb.IncrByFloat(ctx, clockKey(gameID, domain), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance %s clock: %w", domain, err)
	}
	c.client.logger.Debug("Advanced clock", "game_id", gameID, "domain", domain, "now", v)
	return v, nil
}

// Reset removes a game's world and game clocks
func (c *Clock) Reset(ctx context.Context, gameID uuid.UUID) error {
	err := c.client.rdb.Del(ctx,
		clockKey(gameID, script.DomainWorld),
		clockKey(gameID, script.DomainGame),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to reset clocks: %w", err)
	}
	return nil
}
