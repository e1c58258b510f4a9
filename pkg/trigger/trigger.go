// Package trigger loads authored trigger documents. A trigger is a flat list
// of conditions that, when all pass, runs a list of microscripts.
package trigger

import (
	"context"
	"fmt"

	"github.com/jwebster45206/questscript/pkg/script"
)

// FiredFlagPrefix namespaces the flags that remember fire-once triggers.
const FiredFlagPrefix = "trigger."

type Trigger struct {
	ID          string
	Description string
	// Once triggers fire a single time per game. Firing sets the flag
	// FiredFlagPrefix+ID.
	Once       bool
	Conditions []*script.Condition
	Actions    []*script.Microscript
}

func (t *Trigger) firedFlag() string {
	return FiredFlagPrefix + t.ID
}

// Ready reports whether every condition passes. A trigger without
// conditions is always ready.
func (t *Trigger) Ready(ctx context.Context, env *script.Env) (bool, error) {
	if t.Once {
		if env == nil || env.Flags == nil {
			return false, fmt.Errorf("%w: flags for trigger %s", script.ErrMissingStore, t.ID)
		}
		if env.Flags.HasFlag(t.firedFlag()) {
			return false, nil
		}
	}
	return script.EvaluateAll(ctx, t.Conditions, env)
}

// Fire runs the actions when the trigger is ready and reports whether it did.
func (t *Trigger) Fire(ctx context.Context, env *script.Env) (bool, error) {
	ok, err := t.Ready(ctx, env)
	if err != nil || !ok {
		return false, err
	}
	if err := script.ExecuteAll(ctx, t.Actions, env); err != nil {
		return false, fmt.Errorf("trigger %s: %w", t.ID, err)
	}
	if t.Once {
		env.Flags.SetFlag(t.firedFlag(), true)
	}
	return true, nil
}

// Set is the result of loading one or more trigger documents.
type Set struct {
	Triggers []*Trigger
	// Skipped holds one error per trigger or node that failed to parse.
	Skipped []error
}

// Fire fires every ready trigger in order and returns the IDs that fired.
// It stops at the first error.
func (s *Set) Fire(ctx context.Context, env *script.Env) ([]string, error) {
	var fired []string
	for _, t := range s.Triggers {
		ok, err := t.Fire(ctx, env)
		if err != nil {
			return fired, err
		}
		if ok {
			fired = append(fired, t.ID)
		}
	}
	return fired, nil
}

// Cascade fires triggers repeatedly so that one trigger's actions can enable
// another. Each trigger fires at most once per call.
func (s *Set) Cascade(ctx context.Context, env *script.Env) ([]string, error) {
	var fired []string
	done := make(map[string]bool, len(s.Triggers))
	for pass := 0; pass < len(s.Triggers); pass++ {
		progressed := false
		for _, t := range s.Triggers {
			if done[t.ID] {
				continue
			}
			ok, err := t.Fire(ctx, env)
			if err != nil {
				return fired, err
			}
			if ok {
				done[t.ID] = true
				fired = append(fired, t.ID)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return fired, nil
}

// Get returns the trigger with the given ID, or nil.
func (s *Set) Get(id string) *Trigger {
	for _, t := range s.Triggers {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Set) merge(other *Set) {
	s.Triggers = append(s.Triggers, other.Triggers...)
	s.Skipped = append(s.Skipped, other.Skipped...)
}
