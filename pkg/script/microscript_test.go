package script

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMicroscript(t *testing.T, doc string) *Microscript {
	t.Helper()
	m, err := NewParser(quietLogger()).ParseMicroscript([]byte(doc))
	require.NoError(t, err)
	return m
}

func TestExecute_Flags(t *testing.T) {
	world := newMockWorld()
	env := world.env()
	ctx := context.Background()

	require.NoError(t, mustMicroscript(t, `{"flag":"door","set":"true"}`).Execute(ctx, env))
	assert.True(t, world.flags["door"])

	require.NoError(t, mustMicroscript(t, `{"flag":"door","toggle":true}`).Execute(ctx, env))
	assert.False(t, world.flags["door"])

	err := mustMicroscript(t, `{"flag":"door","add":1}`).Execute(ctx, env)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestExecute_VariableAddTwice(t *testing.T) {
	world := newMockWorld()
	env := world.env()
	m := mustMicroscript(t, `{"variable":"gold","add":"10"}`)

	require.NoError(t, m.Execute(context.Background(), env))
	require.NoError(t, m.Execute(context.Background(), env))
	assert.Equal(t, int64(20), world.GetVar("gold"))
}

func TestExecute_Variables(t *testing.T) {
	tests := []struct {
		name    string
		initial map[string]any
		doc     string
		want    any
	}{
		{name: "set", doc: `{"variable":"v","set":"7"}`, want: int64(7)},
		{name: "set text", doc: `{"variable":"v","set":"hello"}`, want: "hello"},
		{name: "add to narrower int", initial: map[string]any{"v": int32(1)}, doc: `{"variable":"v","add":2}`, want: int64(3)},
		{name: "add float", initial: map[string]any{"v": 1}, doc: `{"variable":"v","add":"0.5"}`, want: 1.5},
		{name: "concat", initial: map[string]any{"v": "gold:"}, doc: `{"variable":"v","add":5}`, want: "gold:5"},
		{name: "toggle unset", doc: `{"variable":"v","toggle":1}`, want: true},
		{name: "toggle bool", initial: map[string]any{"v": true}, doc: `{"variable":"v","toggle":1}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := newMockWorld()
			for k, v := range tt.initial {
				world.vars[k] = v
			}
			require.NoError(t, mustMicroscript(t, tt.doc).Execute(context.Background(), world.env()))
			assert.Equal(t, tt.want, world.vars["v"])
		})
	}
}

func TestExecute_VariableErrors(t *testing.T) {
	world := newMockWorld()
	world.vars["alive"] = true
	env := world.env()

	err := mustMicroscript(t, `{"variable":"alive","add":1}`).Execute(context.Background(), env)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = mustMicroscript(t, `{"variable":"alive","give":1}`).Execute(context.Background(), env)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestExecute_Quests(t *testing.T) {
	world := newMockWorld()
	env := world.env()
	ctx := context.Background()

	// Finishing an unstarted quest is a no-op.
	require.NoError(t, mustMicroscript(t, `{"quest":"q1","finish":true}`).Execute(ctx, env))
	assert.False(t, world.HasQuest("q1"))

	require.NoError(t, mustMicroscript(t, `{"quest":"q1","start":true}`).Execute(ctx, env))
	assert.Equal(t, 1, world.quests["q1"])

	require.NoError(t, mustMicroscript(t, `{"quest":"q1","add":2}`).Execute(ctx, env))
	assert.Equal(t, 3, world.quests["q1"])

	require.NoError(t, mustMicroscript(t, `{"quest":"q1","set":"5"}`).Execute(ctx, env))
	assert.Equal(t, 5, world.quests["q1"])

	require.NoError(t, mustMicroscript(t, `{"quest":"q1","finish":2}`).Execute(ctx, env))
	assert.Equal(t, -2, world.quests["q1"])

	require.NoError(t, mustMicroscript(t, `{"quest":"q2","start":4}`).Execute(ctx, env))
	assert.Equal(t, 4, world.quests["q2"])
	require.NoError(t, mustMicroscript(t, `{"quest":"q2","finish":true}`).Execute(ctx, env))
	assert.Equal(t, -1, world.quests["q2"])

	err := mustMicroscript(t, `{"quest":"q1","set":"soon"}`).Execute(ctx, env)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = mustMicroscript(t, `{"quest":"q1","toggle":1}`).Execute(ctx, env)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestExecute_Exec(t *testing.T) {
	world := newMockWorld()
	scripts := &mockScripts{
		errs:   map[string]error{"broken": errors.New("boom")},
		panics: map[string]bool{"explodes": true},
	}
	env := world.env()
	env.Scripts = scripts
	ctx := context.Background()

	require.NoError(t, mustMicroscript(t, `{"exec":"ring","set":"loud"}`).Execute(ctx, env))
	assert.Equal(t, []string{"ring"}, scripts.calls)
	assert.Equal(t, []any{"loud"}, scripts.args[0])

	err := mustMicroscript(t, `{"exec":"broken"}`).Execute(ctx, env)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Panics(t, func() {
		_ = mustMicroscript(t, `{"exec":"explodes"}`).Execute(ctx, env)
	})

	err = mustMicroscript(t, `{"exec":"ring"}`).Execute(ctx, world.env())
	assert.ErrorIs(t, err, ErrMissingStore)
}

func TestExecute_Deferred(t *testing.T) {
	world := newMockWorld()
	sched := &mockScheduler{}
	env := world.env()
	env.Scheduler = sched

	m := mustMicroscript(t, `{"variable":"gold","add":1,"delay":5}`)
	require.NoError(t, m.Execute(context.Background(), env))

	assert.False(t, world.HasVar("gold"), "deferred action must not mutate synchronously")
	require.Len(t, sched.calls, 1)
	call := sched.calls[0]
	assert.Equal(t, DomainGame, call.domain)
	assert.Equal(t, 5.0, call.amount)
	assert.False(t, call.absolute)
	assert.Equal(t, DomainNone, call.action.Delay.Domain)
	assert.NotSame(t, m, call.action)
	assert.Equal(t, DomainGame, m.Delay.Domain, "original keeps its delay")

	// Executing the snapshot applies it immediately.
	require.NoError(t, call.action.Execute(context.Background(), env))
	assert.Equal(t, int64(1), world.GetVar("gold"))
	assert.Len(t, sched.calls, 1)
}

func TestExecute_DeferredErrors(t *testing.T) {
	world := newMockWorld()
	m := mustMicroscript(t, `{"flag":"bell","toggle":1,"delay":1,"delayType":"real"}`)

	err := m.Execute(context.Background(), world.env())
	assert.ErrorIs(t, err, ErrNoScheduler)

	env := world.env()
	schedErr := errors.New("queue down")
	env.Scheduler = &mockScheduler{err: schedErr}
	err = m.Execute(context.Background(), env)
	assert.ErrorIs(t, err, schedErr)
	assert.False(t, world.flags["bell"])
}

func TestMicroscript_CloneIsIndependent(t *testing.T) {
	doc := `{"variable":"gold","add":1,"delay":5,"note":{"a":[1,2]}}`
	m := mustMicroscript(t, doc)
	c := m.CloneForSchedule()

	raw := c.Raw().Raw()
	raw[2] = 'X'
	assert.Equal(t, doc, m.Raw().String())
	assert.Equal(t, doc, c.Raw().String())

	c.Value = int64(99)
	assert.Equal(t, int64(1), m.Value)
	assert.Nil(t, c.resolver)
}

func TestExecute_ResolverDispatch(t *testing.T) {
	world := newMockWorld()
	env := world.env()
	ctx := context.Background()

	err := mustMicroscript(t, `{"mapmarker":"cave","set":"Revealed"}`).Execute(ctx, env)
	assert.ErrorIs(t, err, ErrNotSupported)

	var resolved []string
	reg := NewRegistry(quietLogger())
	reg.RegisterMicroscriptResolvers(MicroscriptResolverType{
		Name: "markers",
		New: func(m *Microscript) (MicroscriptResolver, error) {
			return &funcMicroscriptResolver{
				can: m.Kind == KindMapMarker,
				fn: func() error {
					resolved = append(resolved, m.Target)
					return nil
				},
			}, nil
		},
	})
	env.Resolvers = reg

	require.NoError(t, mustMicroscript(t, `{"mapmarker":"cave","set":"Revealed"}`).Execute(ctx, env))
	assert.Equal(t, []string{"cave"}, resolved)

	err = mustMicroscript(t, `{"item":"key","give":1}`).Execute(ctx, env)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestExecuteAll_StopsAtFirstError(t *testing.T) {
	world := newMockWorld()
	env := world.env()

	actions := []*Microscript{
		mustMicroscript(t, `{"flag":"a","set":true}`),
		mustMicroscript(t, `{"item":"key","give":1}`),
		mustMicroscript(t, `{"flag":"b","set":true}`),
	}
	err := ExecuteAll(context.Background(), actions, env)
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.True(t, world.flags["a"])
	assert.False(t, world.flags["b"])
}

type funcMicroscriptResolver struct {
	can bool
	fn  func() error
}

func (r *funcMicroscriptResolver) CanResolve() bool { return r.can }

func (r *funcMicroscriptResolver) Resolve(context.Context, *Env) error { return r.fn() }
