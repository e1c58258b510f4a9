package resolvers_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jwebster45206/questscript/pkg/actor"
	"github.com/jwebster45206/questscript/pkg/resolvers"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) (*state.GameState, *script.Env) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gs := state.NewGameState()
	player, err := actor.New(&actor.Spec{
		ID:         "hero",
		Stats:      actor.Stats5e{Strength: 14},
		MaxHP:      20,
		AC:         12,
		Attributes: map[string]int{"stealth": 2},
	})
	require.NoError(t, err)
	gs.Player = player

	env := gs.Env(logger)
	env.Resolvers = resolvers.Base(logger)
	return gs, env
}

func evaluate(t *testing.T, env *script.Env, doc string) (bool, error) {
	t.Helper()
	c, err := script.ParseCondition([]byte(doc))
	require.NoError(t, err)
	return c.Evaluate(context.Background(), env)
}

func execute(t *testing.T, env *script.Env, doc string) error {
	t.Helper()
	m, err := script.ParseMicroscript([]byte(doc))
	require.NoError(t, err)
	return m.Execute(context.Background(), env)
}

func TestItemResolvers(t *testing.T) {
	gs, env := setupEnv(t)

	ok, err := evaluate(t, env, `{"item":"key"}`)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, execute(t, env, `{"item":"key","give":true}`))
	require.NoError(t, execute(t, env, `{"item":"coin","give":"5"}`))
	assert.Equal(t, 1, gs.CountItem("key"))
	assert.Equal(t, 5, gs.CountItem("coin"))

	ok, err = evaluate(t, env, `{"item":"key"}`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = evaluate(t, env, `{"item":"coin","greaterEqual":5}`)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, execute(t, env, `{"item":"coin","take":2}`))
	assert.Equal(t, 3, gs.CountItem("coin"))

	require.NoError(t, execute(t, env, `{"item":"coin","set":10}`))
	assert.Equal(t, 10, gs.CountItem("coin"))
	require.NoError(t, execute(t, env, `{"item":"coin","set":4}`))
	assert.Equal(t, 4, gs.CountItem("coin"))

	err = execute(t, env, `{"item":"coin","toggle":1}`)
	assert.ErrorIs(t, err, script.ErrNotSupported)
}

func TestItemConsume(t *testing.T) {
	gs, env := setupEnv(t)
	gs.AddItem("coin", 3)

	ok, err := evaluate(t, env, `{"item":"coin","consume":2}`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, gs.CountItem("coin"))

	ok, err = evaluate(t, env, `{"item":"coin","consume":2}`)
	require.NoError(t, err)
	assert.False(t, ok, "not enough left to consume")
	assert.Equal(t, 1, gs.CountItem("coin"))

	ok, err = evaluate(t, env, `{"item":"coin","consume":true}`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, gs.CountItem("coin"))
}

func TestActorValueResolvers(t *testing.T) {
	gs, env := setupEnv(t)

	tests := []struct {
		doc  string
		want bool
	}{
		{doc: `{"av":"strength","greaterEqual":14}`, want: true},
		{doc: `{"actorvalue":"hp","equal":"20"}`, want: true},
		{doc: `{"av":"stealth"}`, want: true},
		{doc: `{"av":"mana","greater":0}`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			ok, err := evaluate(t, env, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	require.NoError(t, execute(t, env, `{"av":"hp","add":-5}`))
	assert.Equal(t, 15, gs.Player.Actor.HP())

	require.NoError(t, execute(t, env, `{"actorvalue":"strength","set":"16"}`))
	v, err := gs.Player.GetAV("strength")
	require.NoError(t, err)
	assert.Equal(t, 16, v)

	err = execute(t, env, `{"av":"mana","set":1}`)
	assert.ErrorIs(t, err, script.ErrNotFound, "not-found only becomes false on the condition path")

	err = execute(t, env, `{"av":"hp","give":1}`)
	assert.ErrorIs(t, err, script.ErrNotSupported)

	env.ActorValues = nil
	_, err = evaluate(t, env, `{"av":"hp"}`)
	assert.ErrorIs(t, err, script.ErrMissingStore)
}

func TestAffinityResolvers(t *testing.T) {
	gs, env := setupEnv(t)

	ok, err := evaluate(t, env, `{"affinity":"guild"}`)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, execute(t, env, `{"affinity":"guild","add":3}`))
	require.NoError(t, execute(t, env, `{"affinity":"guild","add":"2"}`))
	assert.Equal(t, int64(5), gs.GetVar(resolvers.AffinityPrefix+"guild"))

	ok, err = evaluate(t, env, `{"affinity":"guild","greater":4}`)
	require.NoError(t, err)
	assert.True(t, ok)

	err = execute(t, env, `{"affinity":"guild","set":"friendly"}`)
	assert.ErrorIs(t, err, script.ErrTypeMismatch)
}

func TestMapMarkerResolver(t *testing.T) {
	gs, env := setupEnv(t)

	require.NoError(t, execute(t, env, `{"mapmarker":"cave","set":"revealed"}`))
	assert.Equal(t, script.MarkerRevealed, gs.MarkerState("cave"))

	require.NoError(t, execute(t, env, `{"mapmarker":"cave","set":"VISITED"}`))
	assert.Equal(t, script.MarkerVisited, gs.MarkerState("cave"))

	err := execute(t, env, `{"mapmarker":"cave","set":"glowing"}`)
	assert.ErrorIs(t, err, script.ErrTypeMismatch)

	err = execute(t, env, `{"mapmarker":"cave","toggle":1}`)
	assert.ErrorIs(t, err, script.ErrNotSupported)
}

func TestAddonOverridesBase(t *testing.T) {
	_, env := setupEnv(t)

	env.Resolvers.RegisterConditionResolvers(script.ConditionResolverType{
		Name: "cursed-items",
		New: func(c *script.Condition) (script.ConditionResolver, error) {
			return cursedItems{node: c}, nil
		},
	})

	ok, err := evaluate(t, env, `{"item":"cursed_ring"}`)
	require.NoError(t, err)
	assert.True(t, ok, "add-on resolver should win for its items")

	ok, err = evaluate(t, env, `{"item":"key"}`)
	require.NoError(t, err)
	assert.False(t, ok, "base resolver still handles other items")
}

type cursedItems struct {
	node *script.Condition
}

func (c cursedItems) CanResolve() bool {
	return c.node.Kind == script.KindItem && c.node.Target == "cursed_ring"
}

func (c cursedItems) Resolve(context.Context, *script.Env) (bool, error) {
	return true, nil
}
