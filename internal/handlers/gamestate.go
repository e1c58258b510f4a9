package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/internal/services/queue"
	"github.com/jwebster45206/questscript/internal/storage"
	"github.com/jwebster45206/questscript/internal/worker"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/state"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// GameStateHandler serves game states and runs scripts against them:
//
//	POST   /v1/gamestate
//	GET    /v1/gamestate/{id}
//	DELETE /v1/gamestate/{id}
//	POST   /v1/gamestate/{id}/evaluate
//	POST   /v1/gamestate/{id}/execute
//	POST   /v1/gamestate/{id}/clock
//	POST   /v1/gamestate/{id}/triggers/{file}
type GameStateHandler struct {
	processor *worker.Processor
	storage   storage.Storage
	clock     *queue.Clock
	logger    *slog.Logger
}

func NewGameStateHandler(processor *worker.Processor, storage storage.Storage, clock *queue.Clock, logger *slog.Logger) *GameStateHandler {
	return &GameStateHandler{
		processor: processor,
		storage:   storage,
		clock:     clock,
		logger:    logger,
	}
}

// CreateGameStateRequest seeds a new game. Every field is optional.
type CreateGameStateRequest struct {
	ActorID   string          `json:"actor_id,omitempty"`
	Flags     map[string]bool `json:"flags,omitempty"`
	Vars      map[string]any  `json:"vars,omitempty"`
	Inventory map[string]int  `json:"inventory,omitempty"`
}

type EvaluateRequest struct {
	Conditions json.RawMessage `json:"conditions"`
}

type EvaluateResponse struct {
	Result  bool     `json:"result"`
	Skipped []string `json:"skipped,omitempty"`
}

type ExecuteRequest struct {
	Actions json.RawMessage `json:"actions"`
}

type ExecuteResponse struct {
	Skipped []string `json:"skipped,omitempty"`
}

type ClockRequest struct {
	Domain  string  `json:"domain"`
	Advance float64 `json:"advance"`
}

type ClockResponse struct {
	Domain string  `json:"domain"`
	Now    float64 `json:"now"`
	Ran    int     `json:"ran"`
}

type TriggersResponse struct {
	Fired []string `json:"fired"`
}

func (h *GameStateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/gamestate"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleCreate(w, r)
		return
	}

	idPart, rest, _ := strings.Cut(path, "/")
	gameID, err := uuid.Parse(idPart)
	if err != nil {
		h.logger.Warn("Invalid game state ID format", "id", idPart, "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid game state ID format")
		return
	}

	sub, arg, _ := strings.Cut(rest, "/")
	switch {
	case sub == "":
		switch r.Method {
		case http.MethodGet:
			h.handleRead(w, r, gameID)
		case http.MethodDelete:
			h.handleDelete(w, r, gameID)
		default:
			h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
		}
		return
	case r.Method != http.MethodPost:
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
		return
	}

	switch sub {
	case "evaluate":
		h.handleEvaluate(w, r, gameID)
	case "execute":
		h.handleExecute(w, r, gameID)
	case "clock":
		h.handleClock(w, r, gameID)
	case "triggers":
		h.handleTriggers(w, r, gameID, arg)
	default:
		h.writeError(w, http.StatusNotFound, "Unknown game state operation: "+sub)
	}
}

func (h *GameStateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Creating new game state")

	var req CreateGameStateRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	gs := state.NewGameState()
	for name, v := range req.Flags {
		gs.SetFlag(name, v)
	}
	for name, v := range req.Vars {
		gs.SetVar(name, v)
	}
	for name, n := range req.Inventory {
		gs.AddItem(name, n)
	}

	if req.ActorID != "" {
		player, err := h.storage.GetActor(r.Context(), req.ActorID)
		if err != nil {
			h.logger.Warn("Failed to load actor", "actor_id", req.ActorID, "error", err)
			h.writeError(w, http.StatusBadRequest, "Failed to load actor: "+err.Error())
			return
		}
		gs.Player = player
	}

	if err := h.storage.SaveGameState(r.Context(), gs.ID, gs); err != nil {
		h.logger.Error("Failed to save new game state", "error", err, "id", gs.ID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to create game state")
		return
	}

	h.logger.Debug("Game state created successfully", "id", gs.ID.String())
	h.writeJSON(w, http.StatusCreated, gs)
}

func (h *GameStateHandler) handleRead(w http.ResponseWriter, r *http.Request, gameID uuid.UUID) {
	gs, err := h.storage.LoadGameState(r.Context(), gameID)
	if err != nil {
		h.logger.Error("Failed to load game state", "error", err, "id", gameID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to load game state")
		return
	}
	if gs == nil {
		h.logger.Warn("Game state not found", "id", gameID.String())
		h.writeError(w, http.StatusNotFound, "Game state not found")
		return
	}
	h.writeJSON(w, http.StatusOK, gs)
}

func (h *GameStateHandler) handleDelete(w http.ResponseWriter, r *http.Request, gameID uuid.UUID) {
	if err := h.processor.Delete(r.Context(), gameID); err != nil {
		h.logger.Error("Failed to delete game state", "error", err, "id", gameID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to delete game state")
		return
	}
	h.logger.Debug("Game state deleted", "id", gameID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *GameStateHandler) handleEvaluate(w http.ResponseWriter, r *http.Request, gameID uuid.UUID) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Conditions) == 0 {
		h.writeError(w, http.StatusBadRequest, "Request body must contain a conditions list")
		return
	}

	result, skipped, err := h.processor.Evaluate(r.Context(), gameID, req.Conditions)
	if err != nil {
		h.writeScriptError(w, gameID, "evaluate", err)
		return
	}
	h.writeJSON(w, http.StatusOK, EvaluateResponse{Result: result, Skipped: messages(skipped)})
}

func (h *GameStateHandler) handleExecute(w http.ResponseWriter, r *http.Request, gameID uuid.UUID) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Actions) == 0 {
		h.writeError(w, http.StatusBadRequest, "Request body must contain an actions list")
		return
	}

	skipped, err := h.processor.Execute(r.Context(), gameID, req.Actions)
	if err != nil {
		h.writeScriptError(w, gameID, "execute", err)
		return
	}
	h.writeJSON(w, http.StatusOK, ExecuteResponse{Skipped: messages(skipped)})
}

// handleClock advances a world or game clock, then runs whatever became due.
// If the game is locked the worker picks the actions up on its next tick.
func (h *GameStateHandler) handleClock(w http.ResponseWriter, r *http.Request, gameID uuid.UUID) {
	var req ClockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	domain, err := script.ParseTimeDomain(req.Domain)
	if err != nil || domain == script.DomainNone {
		h.writeError(w, http.StatusBadRequest, "domain must be one of real, world, game")
		return
	}

	gs, err := h.storage.LoadGameState(r.Context(), gameID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to load game state")
		return
	}
	if gs == nil {
		h.writeError(w, http.StatusNotFound, "Game state not found")
		return
	}

	var now float64
	if req.Advance != 0 {
		now, err = h.clock.Advance(r.Context(), gameID, domain, req.Advance)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if now, err = h.clock.Now(r.Context(), gameID, domain); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to read clock")
		return
	}

	ran, err := h.processor.RunDue(r.Context(), gameID)
	if err != nil && !errors.Is(err, worker.ErrGameBusy) {
		h.logger.Error("Failed to run due actions", "error", err, "id", gameID.String())
	}
	h.writeJSON(w, http.StatusOK, ClockResponse{Domain: domain.String(), Now: now, Ran: ran})
}

func (h *GameStateHandler) handleTriggers(w http.ResponseWriter, r *http.Request, gameID uuid.UUID, file string) {
	if file == "" {
		h.writeError(w, http.StatusBadRequest, "trigger file is required in URL path")
		return
	}
	set, err := h.storage.GetTriggers(r.Context(), file)
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		h.writeError(w, http.StatusBadRequest, "Invalid trigger file name")
		return
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Trigger file not found")
		return
	case err != nil:
		h.logger.Error("Failed to load triggers", "error", err, "file", file)
		h.writeError(w, http.StatusInternalServerError, "Failed to load triggers")
		return
	}

	fired, err := h.processor.FireTriggers(r.Context(), gameID, set)
	if err != nil {
		h.writeScriptError(w, gameID, "fire triggers", err)
		return
	}
	if fired == nil {
		fired = []string{}
	}
	h.writeJSON(w, http.StatusOK, TriggersResponse{Fired: fired})
}

// writeScriptError maps processor errors onto status codes.
func (h *GameStateHandler) writeScriptError(w http.ResponseWriter, gameID uuid.UUID, op string, err error) {
	switch {
	case errors.Is(err, worker.ErrGameNotFound):
		h.writeError(w, http.StatusNotFound, "Game state not found")
	case errors.Is(err, worker.ErrGameBusy):
		h.writeError(w, http.StatusConflict, "Game is busy, try again")
	case errors.Is(err, script.ErrParse):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, script.ErrNotSupported),
		errors.Is(err, script.ErrTypeMismatch),
		errors.Is(err, script.ErrUnsupportedOperator),
		errors.Is(err, script.ErrNotFound),
		errors.Is(err, script.ErrMissingStore):
		h.logger.Warn("Script failed", "op", op, "error", err, "id", gameID.String())
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("Script failed", "op", op, "error", err, "id", gameID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

func (h *GameStateHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *GameStateHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func messages(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
