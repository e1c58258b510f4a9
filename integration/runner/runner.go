package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/questscript/internal/handlers"
	"github.com/jwebster45206/questscript/pkg/state"
	"github.com/jwebster45206/questscript/pkg/values"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running questscript API and
// worker
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	PollInterval      time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
}

func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 30 * time.Second},
		Timeout:           10 * time.Second,
		PollInterval:      250 * time.Millisecond,
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}
	return suite, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger(format, args...)
	}
}

// RunSuite seeds a game, runs every step and deletes the game afterwards.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	result := TestRunResult{Suite: suite.Name}

	gameID, err := r.seedGameState(ctx, suite.Seed)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := r.do(ctx, http.MethodDelete, "/v1/gamestate/"+gameID.String(), nil, nil); err != nil {
			r.logf("failed to delete game %s: %v", gameID, err)
		}
	}()

	for _, step := range suite.Steps {
		start := time.Now()
		err := r.runStep(ctx, gameID, step)
		res := TestResult{Step: step.Name, Passed: err == nil, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
			result.Failed++
			r.logf("  FAIL %s: %v", step.Name, err)
		} else {
			result.Passed++
			r.logf("  ok   %s (%s)", step.Name, res.Duration.Round(time.Millisecond))
		}
		result.Results = append(result.Results, res)
		if err != nil && r.ErrorHandlingMode == ErrorHandlingExit {
			break
		}
	}
	return result, nil
}

func (r *Runner) seedGameState(ctx context.Context, seed handlers.CreateGameStateRequest) (uuid.UUID, error) {
	var gs state.GameState
	if err := r.do(ctx, http.MethodPost, "/v1/gamestate", seed, &gs); err != nil {
		return uuid.Nil, fmt.Errorf("failed to seed game state: %w", err)
	}
	return gs.ID, nil
}

func (r *Runner) runStep(ctx context.Context, gameID uuid.UUID, step TestStep) error {
	base := "/v1/gamestate/" + gameID.String()
	exp := step.Expect

	var err error
	switch {
	case step.Execute != nil:
		err = r.do(ctx, http.MethodPost, base+"/execute", handlers.ExecuteRequest{Actions: step.Execute}, nil)
	case step.Evaluate != nil:
		var resp handlers.EvaluateResponse
		err = r.do(ctx, http.MethodPost, base+"/evaluate", handlers.EvaluateRequest{Conditions: step.Evaluate}, &resp)
		if err == nil && exp.Result != nil && resp.Result != *exp.Result {
			return fmt.Errorf("result = %v, want %v", resp.Result, *exp.Result)
		}
	case step.Clock != nil:
		err = r.do(ctx, http.MethodPost, base+"/clock", step.Clock, nil)
	case step.Triggers != "":
		var resp handlers.TriggersResponse
		err = r.do(ctx, http.MethodPost, base+"/triggers/"+step.Triggers, nil, &resp)
		if err == nil && exp.Fired != nil && strings.Join(resp.Fired, ",") != strings.Join(exp.Fired, ",") {
			return fmt.Errorf("fired = %v, want %v", resp.Fired, exp.Fired)
		}
	default:
		return fmt.Errorf("step %q has nothing to do", step.Name)
	}

	if exp.Status != 0 {
		var se *statusError
		if !errors.As(err, &se) || se.Code != exp.Status {
			return fmt.Errorf("expected status %d, got %v", exp.Status, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	deadline := time.Now().Add(r.Timeout)
	for {
		gs, err := r.getGameState(ctx, gameID)
		if err != nil {
			return err
		}
		checkErr := checkState(exp, gs)
		if checkErr == nil || !exp.Eventually || time.Now().After(deadline) {
			return checkErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.PollInterval):
		}
	}
}

func (r *Runner) getGameState(ctx context.Context, gameID uuid.UUID) (*state.GameState, error) {
	gs := state.NewGameState()
	if err := r.do(ctx, http.MethodGet, "/v1/gamestate/"+gameID.String(), nil, gs); err != nil {
		return nil, err
	}
	return gs, nil
}

func checkState(exp Expectations, gs *state.GameState) error {
	for name, want := range exp.Flags {
		if gs.HasFlag(name) != want {
			return fmt.Errorf("flag %s = %v, want %v", name, gs.HasFlag(name), want)
		}
	}
	for name, want := range exp.Vars {
		if c, err := values.Compare(gs.GetVar(name), want); err != nil || c != 0 {
			return fmt.Errorf("var %s = %v, want %v", name, gs.GetVar(name), want)
		}
	}
	for name, want := range exp.Inventory {
		if got := gs.CountItem(name); got != want {
			return fmt.Errorf("item %s = %d, want %d", name, got, want)
		}
	}
	for name, want := range exp.Quests {
		if got := gs.GetQuestStage(name); got != want {
			return fmt.Errorf("quest %s = %d, want %d", name, got, want)
		}
	}
	return nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (r *Runner) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
