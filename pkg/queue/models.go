package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/pkg/script"
)

// ScheduledAction is a deferred microscript waiting in a game's queue for
// its time domain to reach Due.
type ScheduledAction struct {
	ID     uuid.UUID         `json:"id"`
	GameID uuid.UUID         `json:"game_id"`
	Domain script.TimeDomain `json:"domain"`
	Due    float64           `json:"due"`

	// Action is the microscript document exactly as authored.
	Action json.RawMessage `json:"action"`

	ScheduledAt time.Time `json:"scheduled_at"`
}

// NewScheduledAction snapshots m for later execution in gameID.
func NewScheduledAction(gameID uuid.UUID, m *script.Microscript, domain script.TimeDomain, due float64) (*ScheduledAction, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode microscript: %w", err)
	}
	return &ScheduledAction{
		ID:          uuid.New(),
		GameID:      gameID,
		Domain:      domain,
		Due:         due,
		Action:      raw,
		ScheduledAt: time.Now(),
	}, nil
}

// Microscript parses the stored action with parser and strips its delay so
// that running it applies the effect instead of scheduling it again.
func (a *ScheduledAction) Microscript(parser *script.Parser) (*script.Microscript, error) {
	if parser == nil {
		parser = script.NewParser(nil)
	}
	m, err := parser.ParseMicroscript(a.Action)
	if err != nil {
		return nil, fmt.Errorf("scheduled action %s: %w", a.ID, err)
	}
	return m.CloneForSchedule(), nil
}

// MarshalJSON serializes the action for Redis storage
func (a *ScheduledAction) MarshalJSON() ([]byte, error) {
	type Alias ScheduledAction
	return json.Marshal(&struct {
		ID     string `json:"id"`
		GameID string `json:"game_id"`
		*Alias
	}{
		ID:     a.ID.String(),
		GameID: a.GameID.String(),
		Alias:  (*Alias)(a),
	})
}

// UnmarshalJSON deserializes the action from Redis
func (a *ScheduledAction) UnmarshalJSON(data []byte) error {
	type Alias ScheduledAction
	aux := &struct {
		ID     string `json:"id"`
		GameID string `json:"game_id"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := uuid.Parse(aux.ID)
	if err != nil {
		return fmt.Errorf("invalid action id: %w", err)
	}
	gameID, err := uuid.Parse(aux.GameID)
	if err != nil {
		return fmt.Errorf("invalid game id: %w", err)
	}

	a.ID = id
	a.GameID = gameID
	return nil
}

// ToJSON converts the action to JSON bytes for Redis
func (a *ScheduledAction) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

// FromJSON parses an action from JSON bytes
func FromJSON(data []byte) (*ScheduledAction, error) {
	var a ScheduledAction
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
