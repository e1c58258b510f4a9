package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/internal/logger"
	"github.com/jwebster45206/questscript/internal/services/events"
	"github.com/jwebster45206/questscript/internal/services/queue"
	"github.com/jwebster45206/questscript/internal/storage"
	"github.com/jwebster45206/questscript/pkg/luascript"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/state"
	"github.com/jwebster45206/questscript/pkg/trigger"
)

var (
	ErrGameNotFound = errors.New("game state not found")
	ErrGameBusy     = errors.New("game is locked by another worker")
)

// Processor runs scripts against stored games. It is used by both the HTTP
// handlers (synchronously) and the worker (for due deferred actions).
type Processor struct {
	storage  storage.Storage
	queue    *queue.DeferredQueue
	clock    *queue.Clock
	registry *script.Registry
	parser   *script.Parser
	scripts  *luascript.Runner
	locker   *Locker
	events   *events.Broadcaster
	logger   *slog.Logger
}

func NewProcessor(
	storage storage.Storage,
	dq *queue.DeferredQueue,
	clock *queue.Clock,
	registry *script.Registry,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		storage:  storage,
		queue:    dq,
		clock:    clock,
		registry: registry,
		parser:   script.NewParser(logger),
		logger:   logger,
	}
}

// SetParser replaces the parser, typically to add extension fields.
func (p *Processor) SetParser(parser *script.Parser) {
	p.parser = parser
}

// SetScripts enables exec nodes.
func (p *Processor) SetScripts(r *luascript.Runner) {
	p.scripts = r
}

// SetLocker makes every state change hold the game lock.
func (p *Processor) SetLocker(l *Locker) {
	p.locker = l
}

// SetBroadcaster publishes trigger and deferred action events.
func (p *Processor) SetBroadcaster(b *events.Broadcaster) {
	p.events = b
}

func (p *Processor) Parser() *script.Parser {
	return p.parser
}

// Env wires a game state to the registry, scheduler and scripts.
func (p *Processor) Env(gs *state.GameState) *script.Env {
	env := gs.Env(logger.WithGame(p.logger, gs.ID.String()))
	env.Resolvers = p.registry
	if p.queue != nil && p.clock != nil {
		env.Scheduler = queue.NewScheduler(p.queue, p.clock, gs.ID)
	}
	if p.scripts != nil {
		env.Scripts = p.scripts.Bind(env)
	}
	return env
}

func (p *Processor) load(ctx context.Context, gameID uuid.UUID) (*state.GameState, error) {
	gs, err := p.storage.LoadGameState(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game state: %w", err)
	}
	if gs == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return gs, nil
}

// withGame loads a game under its lock, runs fn and saves the state when fn
// reports a change.
func (p *Processor) withGame(ctx context.Context, gameID uuid.UUID, fn func(gs *state.GameState) (bool, error)) error {
	if p.locker != nil {
		locked, err := p.locker.Acquire(ctx, gameID)
		if err != nil {
			return fmt.Errorf("failed to acquire game lock: %w", err)
		}
		if !locked {
			return ErrGameBusy
		}
		defer p.locker.Release(ctx, gameID)
	}

	gs, err := p.load(ctx, gameID)
	if err != nil {
		return err
	}
	changed, fnErr := fn(gs)
	if changed {
		if err := p.storage.SaveGameState(ctx, gameID, gs); err != nil {
			return errors.Join(fnErr, fmt.Errorf("failed to save game state: %w", err))
		}
		if p.events != nil {
			// Events are best effort; the broadcaster logs failures.
			_ = p.events.PublishGameStateUpdated(ctx, gameID)
		}
	}
	return fnErr
}

// Evaluate parses a condition list and evaluates it against a game. Nodes
// that fail to parse are skipped and returned; a document that is not a list
// fails with script.ErrParse before the game is touched. Evaluation may still
// change state through consume conditions, so the game is saved afterwards.
func (p *Processor) Evaluate(ctx context.Context, gameID uuid.UUID, raw json.RawMessage) (bool, []error, error) {
	conds, skipped, err := p.parser.ParseConditionList(raw)
	if err != nil {
		return false, nil, err
	}
	var result bool
	err = p.withGame(ctx, gameID, func(gs *state.GameState) (bool, error) {
		ok, err := script.EvaluateAll(ctx, conds, p.Env(gs))
		result = ok
		return err == nil, err
	})
	return result, skipped, err
}

// Execute parses a microscript list and runs it against a game, stopping at
// the first failure. State changes made before a failure are kept.
func (p *Processor) Execute(ctx context.Context, gameID uuid.UUID, raw json.RawMessage) ([]error, error) {
	actions, skipped, err := p.parser.ParseMicroscriptList(raw)
	if err != nil {
		return nil, err
	}
	err = p.withGame(ctx, gameID, func(gs *state.GameState) (bool, error) {
		return true, script.ExecuteAll(ctx, actions, p.Env(gs))
	})
	return skipped, err
}

// FireTriggers cascades the triggers in set against a game.
func (p *Processor) FireTriggers(ctx context.Context, gameID uuid.UUID, set *trigger.Set) ([]string, error) {
	var fired []string
	err := p.withGame(ctx, gameID, func(gs *state.GameState) (bool, error) {
		var err error
		fired, err = set.Cascade(ctx, p.Env(gs))
		if len(fired) > 0 && p.events != nil {
			_ = p.events.PublishTriggersFired(ctx, gameID, fired)
		}
		if err != nil {
			return true, err
		}
		return len(fired) > 0, nil
	})
	return fired, err
}

// RunDue executes every deferred action that is due for a game and returns
// how many ran. A failing action is logged and dropped.
func (p *Processor) RunDue(ctx context.Context, gameID uuid.UUID) (int, error) {
	ran := 0
	err := p.withGame(ctx, gameID, func(gs *state.GameState) (bool, error) {
		env := p.Env(gs)
		log := logger.WithGame(p.logger, gameID.String())

		for _, domain := range script.TimeDomains {
			now, err := p.clock.Now(ctx, gameID, domain)
			if err != nil {
				return ran > 0, err
			}
			due, err := p.queue.PopDue(ctx, gameID, domain, now)
			if err != nil {
				return ran > 0, err
			}
			for _, action := range due {
				m, err := action.Microscript(p.parser)
				if err != nil {
					log.Error("Dropping unparsable deferred action", "action_id", action.ID, "error", err)
					continue
				}
				if err := m.Execute(ctx, env); err != nil {
					log.Error("Deferred action failed", "action_id", action.ID, "action", m.String(), "error", err)
					if p.events != nil {
						_ = p.events.PublishDeferredFailed(ctx, gameID, action.ID, err.Error())
					}
					continue
				}
				if p.events != nil {
					_ = p.events.PublishDeferredRan(ctx, gameID, action.ID, m.String())
				}
				log.Debug("Ran deferred action", "action_id", action.ID, "domain", domain, "due", action.Due)
				ran++
			}
		}
		return ran > 0, nil
	})

	if errors.Is(err, ErrGameNotFound) {
		p.logger.Warn("Discarding deferred actions for missing game", "game_id", gameID.String())
		if clearErr := p.queue.Clear(ctx, gameID); clearErr != nil {
			return 0, clearErr
		}
		return 0, nil
	}
	if err != nil {
		return ran, err
	}
	return ran, p.queue.Prune(ctx, gameID)
}

// Delete removes a game with its deferred actions and clocks.
func (p *Processor) Delete(ctx context.Context, gameID uuid.UUID) error {
	if err := p.storage.DeleteGameState(ctx, gameID); err != nil {
		return err
	}
	if p.queue != nil {
		if err := p.queue.Clear(ctx, gameID); err != nil {
			return err
		}
	}
	if p.clock != nil {
		return p.clock.Reset(ctx, gameID)
	}
	return nil
}
