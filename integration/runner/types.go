package runner

import (
	"encoding/json"
	"time"

	"github.com/jwebster45206/questscript/internal/handlers"
)

// TestSuite is one case file: a seeded game and the steps run against it.
type TestSuite struct {
	Name  string                          `json:"name"`
	Seed  handlers.CreateGameStateRequest `json:"seed"`
	Steps []TestStep                      `json:"steps"`
}

// TestStep sends one request. Exactly one of Execute, Evaluate, Clock or
// Triggers should be set.
type TestStep struct {
	Name     string                 `json:"name"`
	Execute  json.RawMessage        `json:"execute,omitempty"`
	Evaluate json.RawMessage        `json:"evaluate,omitempty"`
	Clock    *handlers.ClockRequest `json:"clock,omitempty"`
	Triggers string                 `json:"triggers,omitempty"`
	Expect   Expectations           `json:"expect"`
}

// Expectations are checked against the response and the game state after a
// step. With Eventually set the state checks are retried until the runner's
// timeout, for changes made by the worker.
type Expectations struct {
	Result     *bool           `json:"result,omitempty"`
	Fired      []string        `json:"fired,omitempty"`
	Status     int             `json:"status,omitempty"`
	Flags      map[string]bool `json:"flags,omitempty"`
	Vars       map[string]any  `json:"vars,omitempty"`
	Inventory  map[string]int  `json:"inventory,omitempty"`
	Quests     map[string]int  `json:"quests,omitempty"`
	Eventually bool            `json:"eventually,omitempty"`
}

type TestResult struct {
	Step     string
	Passed   bool
	Error    string
	Duration time.Duration
}

type TestRunResult struct {
	Suite   string
	Results []TestResult
	Passed  int
	Failed  int
}
