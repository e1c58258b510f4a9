// Package resolvers provides the reference resolvers for node kinds the
// script evaluator does not handle natively: items, actor values, affinity
// and map markers.
package resolvers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/values"
)

// AffinityPrefix namespaces affinity scores in the variable store.
const AffinityPrefix = "affinity."

// ConditionTypes returns the base condition resolver set.
func ConditionTypes() []script.ConditionResolverType {
	return []script.ConditionResolverType{
		{Name: "item", New: newItemCondition},
		{Name: "actorvalue", New: newActorValueCondition},
		{Name: "affinity", New: newAffinityCondition},
	}
}

// MicroscriptTypes returns the base microscript resolver set.
func MicroscriptTypes() []script.MicroscriptResolverType {
	return []script.MicroscriptResolverType{
		{Name: "item", New: newItemMicroscript},
		{Name: "actorvalue", New: newActorValueMicroscript},
		{Name: "affinity", New: newAffinityMicroscript},
		{Name: "mapmarker", New: newMapMarkerMicroscript},
	}
}

// Register adds the base resolvers to reg. Add-ons registered afterwards
// take priority.
func Register(reg *script.Registry) {
	reg.RegisterConditionResolvers(ConditionTypes()...)
	reg.RegisterMicroscriptResolvers(MicroscriptTypes()...)
}

// Base returns a new registry holding only the base resolvers.
func Base(logger *slog.Logger) *script.Registry {
	reg := script.NewRegistry(logger)
	Register(reg)
	return reg
}

func missing(store string) error {
	return fmt.Errorf("%w: %s", script.ErrMissingStore, store)
}

func inventory(env *script.Env) (script.Inventory, error) {
	if env == nil || env.Inventory == nil {
		return nil, missing("inventory")
	}
	return env.Inventory, nil
}

func actorValues(env *script.Env) (script.ActorValues, error) {
	if env == nil || env.ActorValues == nil {
		return nil, missing("actor values")
	}
	return env.ActorValues, nil
}

func variables(env *script.Env) (script.VariableStore, error) {
	if env == nil || env.Vars == nil {
		return nil, missing("variables")
	}
	return env.Vars, nil
}

// quantity reads a positive item count from v, defaulting to 1.
func quantity(v any) (int, error) {
	if v == nil {
		return 1, nil
	}
	if _, ok := v.(bool); ok {
		return 1, nil
	}
	n, err := values.ToInt(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 1, nil
	}
	return n, nil
}

type itemCondition struct {
	node *script.Condition
}

func newItemCondition(c *script.Condition) (script.ConditionResolver, error) {
	return &itemCondition{node: c}, nil
}

func (r *itemCondition) CanResolve() bool {
	return r.node.Kind == script.KindItem
}

// Resolve tests the held count. With Consume the items are removed when
// enough are held.
func (r *itemCondition) Resolve(_ context.Context, env *script.Env) (bool, error) {
	inv, err := inventory(env)
	if err != nil {
		return false, err
	}
	count := inv.CountItem(r.node.Target)

	switch r.node.Operator {
	case script.OpNone:
		return count > 0, nil
	case script.OpConsume:
		want, err := quantity(r.node.Operand)
		if err != nil {
			return false, fmt.Errorf("item %s: %w", r.node.Target, err)
		}
		if count < want {
			return false, nil
		}
		inv.RemoveItem(r.node.Target, want)
		return true, nil
	}
	return script.EvaluateValueWithOption(count, r.node.Operand, r.node.Operator)
}

type actorValueCondition struct {
	node *script.Condition
}

func newActorValueCondition(c *script.Condition) (script.ConditionResolver, error) {
	return &actorValueCondition{node: c}, nil
}

func (r *actorValueCondition) CanResolve() bool {
	return r.node.Kind == script.KindActorValue
}

// Resolve reads the actor value. An unknown name is false, not an error.
func (r *actorValueCondition) Resolve(_ context.Context, env *script.Env) (bool, error) {
	avs, err := actorValues(env)
	if err != nil {
		return false, err
	}
	v, err := avs.GetAV(r.node.Target)
	if errors.Is(err, script.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if r.node.Operator == script.OpNone {
		return true, nil
	}
	return script.EvaluateValueWithOption(v, r.node.Operand, r.node.Operator)
}

type affinityCondition struct {
	node *script.Condition
}

func newAffinityCondition(c *script.Condition) (script.ConditionResolver, error) {
	return &affinityCondition{node: c}, nil
}

func (r *affinityCondition) CanResolve() bool {
	return r.node.Kind == script.KindAffinity
}

// Resolve compares the affinity score, which is zero until first changed.
func (r *affinityCondition) Resolve(_ context.Context, env *script.Env) (bool, error) {
	vars, err := variables(env)
	if err != nil {
		return false, err
	}
	var score any = int64(0)
	if key := AffinityPrefix + r.node.Target; vars.HasVar(key) {
		score = vars.GetVar(key)
	}
	if r.node.Operator == script.OpNone {
		return script.EvaluateValueWithOption(score, int64(0), script.OpGreater)
	}
	return script.EvaluateValueWithOption(score, r.node.Operand, r.node.Operator)
}

type itemMicroscript struct {
	node *script.Microscript
}

func newItemMicroscript(m *script.Microscript) (script.MicroscriptResolver, error) {
	return &itemMicroscript{node: m}, nil
}

func (r *itemMicroscript) CanResolve() bool {
	return r.node.Kind == script.KindItem
}

func (r *itemMicroscript) Resolve(_ context.Context, env *script.Env) error {
	inv, err := inventory(env)
	if err != nil {
		return err
	}
	target := r.node.Target

	switch r.node.Action {
	case script.ActionGive, script.ActionAdd:
		n, err := quantity(r.node.Value)
		if err != nil {
			return fmt.Errorf("item %s: %w", target, err)
		}
		inv.AddItem(target, n)
		return nil
	case script.ActionTake:
		n, err := quantity(r.node.Value)
		if err != nil {
			return fmt.Errorf("item %s: %w", target, err)
		}
		inv.RemoveItem(target, n)
		return nil
	case script.ActionSet:
		want, err := values.ToInt(r.node.Value)
		if err != nil {
			return fmt.Errorf("item %s: %w", target, err)
		}
		have := inv.CountItem(target)
		switch {
		case want > have:
			inv.AddItem(target, want-have)
		case want < have:
			inv.RemoveItem(target, have-max(want, 0))
		}
		return nil
	}
	return fmt.Errorf("%w: %s on item", script.ErrNotSupported, r.node.Action)
}

type actorValueMicroscript struct {
	node *script.Microscript
}

func newActorValueMicroscript(m *script.Microscript) (script.MicroscriptResolver, error) {
	return &actorValueMicroscript{node: m}, nil
}

func (r *actorValueMicroscript) CanResolve() bool {
	return r.node.Kind == script.KindActorValue
}

func (r *actorValueMicroscript) Resolve(_ context.Context, env *script.Env) error {
	avs, err := actorValues(env)
	if err != nil {
		return err
	}
	switch r.node.Action {
	case script.ActionSet:
		return avs.SetAV(r.node.Target, r.node.Value)
	case script.ActionAdd:
		return avs.ModAV(r.node.Target, r.node.Value)
	}
	return fmt.Errorf("%w: %s on actor value", script.ErrNotSupported, r.node.Action)
}

type affinityMicroscript struct {
	node *script.Microscript
}

func newAffinityMicroscript(m *script.Microscript) (script.MicroscriptResolver, error) {
	return &affinityMicroscript{node: m}, nil
}

func (r *affinityMicroscript) CanResolve() bool {
	return r.node.Kind == script.KindAffinity
}

func (r *affinityMicroscript) Resolve(_ context.Context, env *script.Env) error {
	vars, err := variables(env)
	if err != nil {
		return err
	}
	key := AffinityPrefix + r.node.Target

	switch r.node.Action {
	case script.ActionSet:
		if !values.IsNumeric(r.node.Value) {
			return fmt.Errorf("affinity %s: %w: %v is not a number", r.node.Target, script.ErrTypeMismatch, r.node.Value)
		}
		vars.SetVar(key, r.node.Value)
		return nil
	case script.ActionAdd:
		if !values.IsNumeric(r.node.Value) {
			return fmt.Errorf("affinity %s: %w: %v is not a number", r.node.Target, script.ErrTypeMismatch, r.node.Value)
		}
		var current any = int64(0)
		if vars.HasVar(key) {
			current = vars.GetVar(key)
		}
		sum, err := values.Add(current, r.node.Value)
		if err != nil {
			return fmt.Errorf("affinity %s: %w", r.node.Target, err)
		}
		vars.SetVar(key, sum)
		return nil
	}
	return fmt.Errorf("%w: %s on affinity", script.ErrNotSupported, r.node.Action)
}

type mapMarkerMicroscript struct {
	node *script.Microscript
}

func newMapMarkerMicroscript(m *script.Microscript) (script.MicroscriptResolver, error) {
	return &mapMarkerMicroscript{node: m}, nil
}

func (r *mapMarkerMicroscript) CanResolve() bool {
	return r.node.Kind == script.KindMapMarker
}

func (r *mapMarkerMicroscript) Resolve(_ context.Context, env *script.Env) error {
	if env == nil || env.MapMarkers == nil {
		return missing("map markers")
	}
	if r.node.Action != script.ActionSet {
		return fmt.Errorf("%w: %s on map marker", script.ErrNotSupported, r.node.Action)
	}
	state, err := script.ParseMarkerState(values.Format(r.node.Value))
	if err != nil {
		return fmt.Errorf("map marker %s: %w", r.node.Target, err)
	}
	env.MapMarkers.SetMarkerState(r.node.Target, state)
	return nil
}
