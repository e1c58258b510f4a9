package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/pkg/queue"
	"github.com/jwebster45206/questscript/pkg/script"
)

// Scheduler queues deferred microscripts for one game.
type Scheduler struct {
	queue  *DeferredQueue
	clock  *Clock
	gameID uuid.UUID
}

var _ script.Scheduler = (*Scheduler)(nil)

func NewScheduler(dq *DeferredQueue, clock *Clock, gameID uuid.UUID) *Scheduler {
	return &Scheduler{queue: dq, clock: clock, gameID: gameID}
}

// ScheduleEvent queues m to run when domain reaches amount (absolute) or
// the current domain time plus amount.
func (s *Scheduler) ScheduleEvent(ctx context.Context, m *script.Microscript, domain script.TimeDomain, amount float64, absolute bool) error {
	if err := checkDomain(domain); err != nil {
		return err
	}

	due := amount
	if !absolute {
		now, err := s.clock.Now(ctx, s.gameID, domain)
		if err != nil {
			return err
		}
		due = now + amount
	}

	action, err := queue.NewScheduledAction(s.gameID, m, domain, due)
	if err != nil {
		return fmt.Errorf("failed to snapshot action: %w", err)
	}
	return s.queue.Enqueue(ctx, action)
}
