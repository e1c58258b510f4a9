package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// mockWorld implements every store interface with plain maps.
type mockWorld struct {
	flags   map[string]bool
	vars    map[string]any
	quests  map[string]int
	items   map[string]int
	markers map[string]MarkerState
}

func newMockWorld() *mockWorld {
	return &mockWorld{
		flags:   map[string]bool{},
		vars:    map[string]any{},
		quests:  map[string]int{},
		items:   map[string]int{},
		markers: map[string]MarkerState{},
	}
}

func (w *mockWorld) HasFlag(name string) bool {
	return w.flags[name]
}

func (w *mockWorld) SetFlag(name string, value bool) {
	w.flags[name] = value
}

func (w *mockWorld) ToggleFlag(name string) {
	w.flags[name] = !w.flags[name]
}

func (w *mockWorld) HasVar(name string) bool {
	_, ok := w.vars[name]
	return ok
}

func (w *mockWorld) GetVar(name string) any {
	return w.vars[name]
}

func (w *mockWorld) SetVar(name string, value any) {
	w.vars[name] = value
}

func (w *mockWorld) HasQuest(name string) bool {
	_, ok := w.quests[name]
	return ok
}

func (w *mockWorld) IsQuestStarted(name string) bool {
	return w.quests[name] > 0
}

func (w *mockWorld) GetQuestStage(name string) int {
	return w.quests[name]
}

func (w *mockWorld) SetQuestStage(name string, s int) {
	w.quests[name] = s
}

func (w *mockWorld) StartQuest(name string, s int) {
	w.quests[name] = s
}

func (w *mockWorld) EndQuest(name string, s int) {
	w.quests[name] = s
}

func (w *mockWorld) CountItem(name string) int {
	return w.items[name]
}

func (w *mockWorld) AddItem(name string, n int) {
	w.items[name] += n
}

func (w *mockWorld) RemoveItem(name string, n int) {
	w.items[name] -= n
}

func (w *mockWorld) SetMarkerState(n string, s MarkerState) {
	w.markers[n] = s
}

func (w *mockWorld) env() *Env {
	return &Env{
		Flags:      w,
		Vars:       w,
		Quests:     w,
		Inventory:  w,
		MapMarkers: w,
		Logger:     quietLogger(),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockScripts returns canned results and records calls.
type mockScripts struct {
	results map[string]any
	errs    map[string]error
	panics  map[string]bool
	calls   []string
	args    [][]any
}

func (s *mockScripts) CallForResult(_ context.Context, name string, args ...any) (any, error) {
	s.calls = append(s.calls, name)
	s.args = append(s.args, args)
	if s.panics[name] {
		panic(fmt.Sprintf("script %s exploded", name))
	}
	if err := s.errs[name]; err != nil {
		return nil, err
	}
	return s.results[name], nil
}

func (s *mockScripts) Call(ctx context.Context, name string, args ...any) error {
	_, err := s.CallForResult(ctx, name, args...)
	return err
}

type scheduledCall struct {
	action   *Microscript
	domain   TimeDomain
	amount   float64
	absolute bool
}

type mockScheduler struct {
	calls []scheduledCall
	err   error
}

func (s *mockScheduler) ScheduleEvent(_ context.Context, action *Microscript, domain TimeDomain, amount float64, absolute bool) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, scheduledCall{action: action, domain: domain, amount: amount, absolute: absolute})
	return nil
}

// stubConditionResolver answers with a fixed result for nodes whose target
// matches.
type stubConditionResolver struct {
	node   *Condition
	target string
	result bool
}

func (r *stubConditionResolver) CanResolve() bool { return r.node.Target == r.target }

func (r *stubConditionResolver) Resolve(context.Context, *Env) (bool, error) {
	return r.result, nil
}

func stubConditionType(name, target string, result bool) ConditionResolverType {
	return ConditionResolverType{
		Name: name,
		New: func(c *Condition) (ConditionResolver, error) {
			return &stubConditionResolver{node: c, target: target, result: result}, nil
		},
	}
}
