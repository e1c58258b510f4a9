package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/pkg/actor"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/values"
)

// GameState is the persisted world a game's scripts read and mutate. It
// implements the flag, variable, quest, inventory and map marker stores.
type GameState struct {
	ID         uuid.UUID                     `json:"id"` // Unique ID per game
	Flags      map[string]bool               `json:"flags,omitempty"`
	Vars       map[string]any                `json:"vars,omitempty"`
	Quests     map[string]int                `json:"quests,omitempty"`
	Inventory  map[string]int                `json:"inventory,omitempty"`
	MapMarkers map[string]script.MarkerState `json:"map_markers,omitempty"`
	Player     *actor.Actor                  `json:"player,omitempty"`
	CreatedAt  time.Time                     `json:"created_at"`
	UpdatedAt  time.Time                     `json:"updated_at"`
}

var (
	_ script.FlagStore     = (*GameState)(nil)
	_ script.VariableStore = (*GameState)(nil)
	_ script.QuestStore    = (*GameState)(nil)
	_ script.Inventory     = (*GameState)(nil)
	_ script.MapMarkers    = (*GameState)(nil)
)

func NewGameState() *GameState {
	now := time.Now()
	return &GameState{
		ID:         uuid.New(),
		Flags:      make(map[string]bool),
		Vars:       make(map[string]any),
		Quests:     make(map[string]int),
		Inventory:  make(map[string]int),
		MapMarkers: make(map[string]script.MarkerState),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Env wires the game state into a script environment. The caller adds the
// script runner, scheduler and resolvers it needs.
func (gs *GameState) Env(logger *slog.Logger) *script.Env {
	env := &script.Env{
		Flags:      gs,
		Vars:       gs,
		Quests:     gs,
		Inventory:  gs,
		MapMarkers: gs,
		Logger:     logger,
	}
	if gs.Player != nil {
		env.ActorValues = gs.Player
	}
	return env
}

func (gs *GameState) HasFlag(name string) bool {
	return gs.Flags[name]
}

func (gs *GameState) SetFlag(name string, value bool) {
	if gs.Flags == nil {
		gs.Flags = make(map[string]bool)
	}
	gs.Flags[name] = value
}

func (gs *GameState) ToggleFlag(name string) {
	gs.SetFlag(name, !gs.Flags[name])
}

func (gs *GameState) HasVar(name string) bool {
	_, ok := gs.Vars[name]
	return ok
}

func (gs *GameState) GetVar(name string) any {
	return gs.Vars[name]
}

func (gs *GameState) SetVar(name string, value any) {
	if gs.Vars == nil {
		gs.Vars = make(map[string]any)
	}
	gs.Vars[name] = values.Normalize(value)
}

func (gs *GameState) HasQuest(name string) bool {
	_, ok := gs.Quests[name]
	return ok
}

// IsQuestStarted reports whether the quest is in progress. Finished quests
// hold a negative stage.
func (gs *GameState) IsQuestStarted(name string) bool {
	return gs.Quests[name] > 0
}

func (gs *GameState) GetQuestStage(name string) int {
	return gs.Quests[name]
}

func (gs *GameState) SetQuestStage(name string, stage int) {
	if gs.Quests == nil {
		gs.Quests = make(map[string]int)
	}
	gs.Quests[name] = stage
}

// StartQuest sets the quest to stage, or stage 1 when stage is not positive.
func (gs *GameState) StartQuest(name string, stage int) {
	if stage <= 0 {
		stage = 1
	}
	gs.SetQuestStage(name, stage)
}

// EndQuest stores the final stage as a negative number.
func (gs *GameState) EndQuest(name string, stage int) {
	switch {
	case stage > 0:
		stage = -stage
	case stage == 0:
		stage = -1
	}
	gs.SetQuestStage(name, stage)
}

func (gs *GameState) CountItem(name string) int {
	return gs.Inventory[name]
}

func (gs *GameState) AddItem(name string, quantity int) {
	if quantity <= 0 {
		return
	}
	if gs.Inventory == nil {
		gs.Inventory = make(map[string]int)
	}
	gs.Inventory[name] += quantity
}

// RemoveItem removes up to quantity items. Counts never go below zero.
func (gs *GameState) RemoveItem(name string, quantity int) {
	if quantity <= 0 {
		return
	}
	remaining := gs.Inventory[name] - quantity
	if remaining <= 0 {
		delete(gs.Inventory, name)
		return
	}
	gs.Inventory[name] = remaining
}

func (gs *GameState) SetMarkerState(name string, state script.MarkerState) {
	if gs.MapMarkers == nil {
		gs.MapMarkers = make(map[string]script.MarkerState)
	}
	gs.MapMarkers[name] = state
}

// MarkerState returns the state of a marker, MarkerUnknown if never set.
func (gs *GameState) MarkerState(name string) script.MarkerState {
	return gs.MapMarkers[name]
}

// MarshalJSON writes variables so that numeric types survive a reload.
func (gs *GameState) MarshalJSON() ([]byte, error) {
	type Alias GameState
	vars := make(map[string]any, len(gs.Vars))
	for k, v := range gs.Vars {
		vars[k] = values.Portable(v)
	}
	return json.Marshal(&struct {
		Vars map[string]any `json:"vars,omitempty"`
		*Alias
	}{
		Vars:  vars,
		Alias: (*Alias)(gs),
	})
}

// UnmarshalJSON reads numbers in variables as int64, uint64 or float64
// rather than always float64.
func (gs *GameState) UnmarshalJSON(data []byte) error {
	type Alias GameState
	aux := &struct {
		Vars map[string]any `json:"vars,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(gs),
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(aux); err != nil {
		return fmt.Errorf("failed to unmarshal game state: %w", err)
	}

	gs.Vars = make(map[string]any, len(aux.Vars))
	for k, v := range aux.Vars {
		gs.Vars[k] = values.Normalize(v)
	}
	return nil
}
