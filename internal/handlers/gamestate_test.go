package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/internal/services/queue"
	"github.com/jwebster45206/questscript/internal/storage"
	"github.com/jwebster45206/questscript/internal/worker"
	"github.com/jwebster45206/questscript/pkg/actor"
	"github.com/jwebster45206/questscript/pkg/resolvers"
	"github.com/jwebster45206/questscript/pkg/state"
	"github.com/jwebster45206/questscript/pkg/trigger"
)

type testServer struct {
	handler   *GameStateHandler
	store     *storage.MockStorage
	processor *worker.Processor
	client    *queue.Client
	logger    *slog.Logger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := queue.NewClient("redis://"+mr.Addr(), logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	store := storage.NewMockStorage()
	clock := queue.NewClock(client)
	processor := worker.NewProcessor(store, queue.NewDeferredQueue(client), clock, resolvers.Base(logger), logger)
	processor.SetLocker(worker.NewLocker(client.GetRedisClient(), "api", 30*time.Second, logger))

	return &testServer{
		handler:   NewGameStateHandler(processor, store, clock, logger),
		store:     store,
		processor: processor,
		client:    client,
		logger:    logger,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) newGame(t *testing.T) *state.GameState {
	t.Helper()
	gs := state.NewGameState()
	if err := s.store.SaveGameState(context.Background(), gs.ID, gs); err != nil {
		t.Fatalf("SaveGameState() error = %v", err)
	}
	return gs
}

func (s *testServer) reload(t *testing.T, id uuid.UUID) *state.GameState {
	t.Helper()
	gs, err := s.store.LoadGameState(context.Background(), id)
	if err != nil || gs == nil {
		t.Fatalf("LoadGameState() = %v, %v", gs, err)
	}
	return gs
}

func TestGameStateHandler_Create(t *testing.T) {
	s := newTestServer(t)
	s.store.AddActor(&actor.Spec{
		ID:    "hero",
		Stats: actor.Stats5e{Strength: 16, Dexterity: 14, Constitution: 15, Intelligence: 10, Wisdom: 12, Charisma: 8},
		MaxHP: 20,
		AC:    15,
	})

	rr := s.do(t, http.MethodPost, "/v1/gamestate",
		`{"actor_id":"hero","flags":{"intro":true},"vars":{"gold":10,"rate":0.5},"inventory":{"torch":2}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Response body: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", rr.Header().Get("Content-Type"))
	}

	var response state.GameState
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.ID == uuid.Nil {
		t.Fatal("Expected non-nil game state ID")
	}

	stored := s.reload(t, response.ID)
	if !stored.HasFlag("intro") || stored.CountItem("torch") != 2 {
		t.Errorf("stored flags/inventory = %v/%v", stored.Flags, stored.Inventory)
	}
	if got := stored.GetVar("gold"); got != int64(10) {
		t.Errorf("gold = %#v, want int64(10)", got)
	}
	if got := stored.GetVar("rate"); got != 0.5 {
		t.Errorf("rate = %#v, want 0.5", got)
	}
	if stored.Player == nil || stored.Player.Spec.ID != "hero" {
		t.Errorf("player = %+v, want hero", stored.Player)
	}
}

func TestGameStateHandler_CreateErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"invalid json", http.MethodPost, `{"flags":`, http.StatusBadRequest},
		{"unknown actor", http.MethodPost, `{"actor_id":"ghost"}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, tt.method, "/v1/gamestate", tt.body)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

func TestGameStateHandler_ReadAndDelete(t *testing.T) {
	s := newTestServer(t)
	gs := s.newGame(t)
	path := "/v1/gamestate/" + gs.ID.String()

	if rr := s.do(t, http.MethodGet, path, ""); rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/v1/gamestate/not-a-uuid", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("GET invalid id status = %d, want 400", rr.Code)
	}
	if rr := s.do(t, http.MethodPut, path, "{}"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", rr.Code)
	}

	if rr := s.do(t, http.MethodDelete, path, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rr.Code)
	}
	rr := s.do(t, http.MethodGet, path, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", rr.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		t.Errorf("expected an error body, got %v (%v)", errResp, err)
	}
}

func TestGameStateHandler_ExecuteAndEvaluate(t *testing.T) {
	s := newTestServer(t)
	gs := s.newGame(t)
	base := "/v1/gamestate/" + gs.ID.String()

	rr := s.do(t, http.MethodPost, base+"/execute",
		`{"actions":[{"variable":"gold","add":25},{"quest":"rescue","start":true},{"flag":"x","set":"maybe"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute status = %d, body %s", rr.Code, rr.Body.String())
	}
	var exec ExecuteResponse
	if err := json.NewDecoder(rr.Body).Decode(&exec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(exec.Skipped) != 1 {
		t.Errorf("skipped = %v, want one entry", exec.Skipped)
	}

	rr = s.do(t, http.MethodPost, base+"/evaluate",
		`{"conditions":[{"variable":"gold","greater":20},{"quest":"rescue","started":true}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d, body %s", rr.Code, rr.Body.String())
	}
	var eval EvaluateResponse
	if err := json.NewDecoder(rr.Body).Decode(&eval); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !eval.Result {
		t.Error("expected conditions to hold after execute")
	}
}

func TestGameStateHandler_ScriptErrors(t *testing.T) {
	s := newTestServer(t)
	gs := s.newGame(t)
	base := "/v1/gamestate/" + gs.ID.String()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unsupported action", base + "/execute", `{"actions":[{"variable":"v","give":1}]}`, http.StatusUnprocessableEntity},
		{"missing body", base + "/execute", `{}`, http.StatusBadRequest},
		{"missing conditions", base + "/evaluate", `{"actions":[]}`, http.StatusBadRequest},
		{"conditions not a list", base + "/evaluate", `{"conditions":{"flag":"never"}}`, http.StatusBadRequest},
		{"actions not a list", base + "/execute", `{"actions":{"flag":"boom","set":true}}`, http.StatusBadRequest},
		{"unknown game", "/v1/gamestate/" + uuid.NewString() + "/execute", `{"actions":[]}`, http.StatusNotFound},
		{"unknown operation", base + "/teleport", `{}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
	if s.reload(t, gs.ID).HasFlag("boom") {
		t.Error("a malformed action list must not run")
	}
}

func TestGameStateHandler_BusyGame(t *testing.T) {
	s := newTestServer(t)
	gs := s.newGame(t)

	other := worker.NewLocker(s.client.GetRedisClient(), "worker-1", time.Minute, s.logger)
	if ok, err := other.Acquire(context.Background(), gs.ID); err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v", ok, err)
	}
	rr := s.do(t, http.MethodPost, "/v1/gamestate/"+gs.ID.String()+"/execute", `{"actions":[]}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestGameStateHandler_ClockRunsDueActions(t *testing.T) {
	s := newTestServer(t)
	gs := s.newGame(t)
	base := "/v1/gamestate/" + gs.ID.String()

	rr := s.do(t, http.MethodPost, base+"/execute", `{"actions":[{"flag":"dawn","set":true,"delay":8,"delayType":"world"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, http.MethodPost, base+"/clock", `{"domain":"world","advance":8}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("clock status = %d, body %s", rr.Code, rr.Body.String())
	}
	var clock ClockResponse
	if err := json.NewDecoder(rr.Body).Decode(&clock); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if clock.Now != 8 || clock.Ran != 1 || clock.Domain != "world" {
		t.Errorf("clock response = %+v, want world now=8 ran=1", clock)
	}
	if !s.reload(t, gs.ID).HasFlag("dawn") {
		t.Error("deferred flag was not set")
	}

	if rr := s.do(t, http.MethodPost, base+"/clock", `{"domain":"real","advance":1}`); rr.Code != http.StatusBadRequest {
		t.Errorf("advancing real time status = %d, want 400", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, base+"/clock", `{"domain":"tea","advance":1}`); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown domain status = %d, want 400", rr.Code)
	}
}

func TestGameStateHandler_Triggers(t *testing.T) {
	s := newTestServer(t)
	gs := s.newGame(t)
	base := "/v1/gamestate/" + gs.ID.String() + "/triggers/"

	set, err := trigger.NewLoader(nil, s.logger).ParseJSON([]byte(`[
		{"id":"welcome","once":true,"actions":[{"item":"map","give":1}]}
	]`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	s.store.AddTriggers("intro.json", set)

	rr := s.do(t, http.MethodPost, base+"intro.json", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp TriggersResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !reflect.DeepEqual(resp.Fired, []string{"welcome"}) {
		t.Errorf("fired = %v, want [welcome]", resp.Fired)
	}

	rr = s.do(t, http.MethodPost, base+"intro.json", "")
	resp = TriggersResponse{}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Fired) != 0 {
		t.Errorf("once trigger fired again: %v", resp.Fired)
	}
	if got := s.reload(t, gs.ID).CountItem("map"); got != 1 {
		t.Errorf("map count = %d, want 1", got)
	}

	if rr := s.do(t, http.MethodPost, base+"missing.json", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rr.Code)
	}
}
