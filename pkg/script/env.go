package script

import (
	"context"
	"fmt"
	"log/slog"
)

// FlagStore holds named boolean flags. A flag that was never set reads false.
type FlagStore interface {
	HasFlag(name string) bool
	SetFlag(name string, value bool)
	ToggleFlag(name string)
}

// VariableStore holds loosely typed named variables.
type VariableStore interface {
	HasVar(name string) bool
	GetVar(name string) any
	SetVar(name string, value any)
}

// QuestStore tracks quest progress. A positive stage means started, a
// negative stage means finished.
type QuestStore interface {
	HasQuest(name string) bool
	IsQuestStarted(name string) bool
	GetQuestStage(name string) int
	SetQuestStage(name string, stage int)
	StartQuest(name string, stage int)
	EndQuest(name string, stage int)
}

// Inventory counts items held by the player.
type Inventory interface {
	CountItem(name string) int
	AddItem(name string, quantity int)
	RemoveItem(name string, quantity int)
}

// ActorValues exposes numeric stats of an actor. Unknown names return an error
// wrapping ErrNotFound.
type ActorValues interface {
	GetAV(name string) (any, error)
	SetAV(name string, value any) error
	ModAV(name string, delta any) error
}

// MapMarkers stores the visibility of named map markers.
type MapMarkers interface {
	SetMarkerState(name string, state MarkerState)
}

// ScriptRunner invokes named script functions for Exec nodes.
type ScriptRunner interface {
	CallForResult(ctx context.Context, name string, args ...any) (any, error)
	Call(ctx context.Context, name string, args ...any) error
}

// Scheduler accepts deferred microscripts. The action passed in is a snapshot
// whose delay has already been cleared.
type Scheduler interface {
	ScheduleEvent(ctx context.Context, action *Microscript, domain TimeDomain, amount float64, absolute bool) error
}

// Env is everything a node needs at evaluation time. Unset stores are only an
// error for nodes that touch them.
type Env struct {
	Flags       FlagStore
	Vars        VariableStore
	Quests      QuestStore
	Inventory   Inventory
	ActorValues ActorValues
	MapMarkers  MapMarkers
	Scripts     ScriptRunner
	Scheduler   Scheduler
	Resolvers   *Registry
	Logger      *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func need[T any](store T, name string) (T, error) {
	if any(store) == nil {
		return store, fmt.Errorf("%w: %s", ErrMissingStore, name)
	}
	return store, nil
}

func (e *Env) flags() (FlagStore, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: flags", ErrMissingStore)
	}
	return need(e.Flags, "flags")
}

func (e *Env) vars() (VariableStore, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: variables", ErrMissingStore)
	}
	return need(e.Vars, "variables")
}

func (e *Env) quests() (QuestStore, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: quests", ErrMissingStore)
	}
	return need(e.Quests, "quests")
}

func (e *Env) scripts() (ScriptRunner, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: scripts", ErrMissingStore)
	}
	return need(e.Scripts, "scripts")
}

func (e *Env) registry() *Registry {
	if e == nil {
		return nil
	}
	return e.Resolvers
}
