package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/questscript/pkg/actor"
	"github.com/jwebster45206/questscript/pkg/state"
	"github.com/jwebster45206/questscript/pkg/trigger"
)

// MockStorage is an in-memory Storage for tests. Game states are stored as
// JSON so that callers never share a live pointer with the store.
type MockStorage struct {
	mu         sync.RWMutex
	gamestates map[uuid.UUID][]byte
	triggers   map[string]*trigger.Set
	actors     map[string]*actor.Spec
	pingError  error
}

var _ Storage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage {
	return &MockStorage{
		gamestates: make(map[uuid.UUID][]byte),
		triggers:   make(map[string]*trigger.Set),
		actors:     make(map[string]*actor.Spec),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	data, err := json.Marshal(gs)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gamestates[id] = data
	return nil
}

func (m *MockStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	m.mu.RLock()
	data, exists := m.gamestates[id]
	m.mu.RUnlock()
	if !exists {
		return nil, nil
	}
	var gs state.GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

func (m *MockStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gamestates, id)
	return nil
}

// AddTriggers adds a trigger set to the mock storage (for testing)
func (m *MockStorage) AddTriggers(filename string, set *trigger.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[filename] = set
}

func (m *MockStorage) ListTriggerFiles(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := make([]string, 0, len(m.triggers))
	for name := range m.triggers {
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func (m *MockStorage) GetTriggers(ctx context.Context, filename string) (*trigger.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, exists := m.triggers[filename]
	if !exists {
		return nil, fmt.Errorf("triggers %w: %s", ErrNotFound, filename)
	}
	return set, nil
}

// AddActor adds an actor spec to the mock storage (for testing)
func (m *MockStorage) AddActor(spec *actor.Spec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actors[spec.ID] = spec
}

// GetActor builds a fresh actor from a copy of the stored spec
func (m *MockStorage) GetActor(ctx context.Context, actorID string) (*actor.Actor, error) {
	m.mu.RLock()
	spec, exists := m.actors[actorID]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("actor %w: %s", ErrNotFound, actorID)
	}
	cp := *spec
	cp.Attributes = maps.Clone(spec.Attributes)
	cp.CombatModifiers = maps.Clone(spec.CombatModifiers)
	return actor.New(&cp)
}

func (m *MockStorage) ListActors(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.actors))
	for id := range m.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
