package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jwebster45206/questscript/pkg/values"
)

// Condition is a single authored boolean test.
type Condition struct {
	Kind Kind
	// Extension is the field name that identified an extension kind.
	Extension string
	Target    string
	Operator  Operator
	Operand   any

	raw      Fragment
	resolver ConditionResolver
}

// NewCondition builds a condition in code. Its fragment is synthesized from
// the given fields.
func NewCondition(kind Kind, target string, op Operator, operand any) *Condition {
	c := &Condition{Kind: kind, Target: target, Operator: op, Operand: operand}
	c.raw = synthesize(conditionFieldFor(kind), target, op.String(), operand, op != OpNone)
	return c
}

// Raw returns the fragment the condition was parsed from.
func (c *Condition) Raw() Fragment {
	return c.raw
}

func (c *Condition) String() string {
	if c == nil {
		return "<nil condition>"
	}
	label := c.Kind.String()
	if c.Kind == KindExtension {
		label = c.Extension
	}
	if c.Operator == OpNone {
		return fmt.Sprintf("%s:%s", label, c.Target)
	}
	return fmt.Sprintf("%s:%s %s %v", label, c.Target, c.Operator, c.Operand)
}

// Evaluate tests the condition against env. Flag, NoFlag, Variable, Quest and
// Exec are handled natively; every other kind goes to the registry.
func (c *Condition) Evaluate(ctx context.Context, env *Env) (bool, error) {
	switch c.Kind {
	case KindFlag, KindNoFlag:
		flags, err := env.flags()
		if err != nil {
			return false, err
		}
		set := flags.HasFlag(c.Target)
		if c.Kind == KindNoFlag {
			return !set, nil
		}
		return set, nil

	case KindVariable:
		return c.evaluateVariable(env)

	case KindQuest:
		return c.evaluateQuest(env)

	case KindExec:
		return c.evaluateExec(ctx, env), nil
	}
	return c.evaluateResolved(ctx, env)
}

func (c *Condition) evaluateVariable(env *Env) (bool, error) {
	vars, err := env.vars()
	if err != nil {
		return false, err
	}
	if !vars.HasVar(c.Target) {
		return false, nil
	}
	if c.Operator == OpNone {
		return true, nil
	}
	return EvaluateValueWithOption(vars.GetVar(c.Target), c.Operand, c.Operator)
}

func (c *Condition) evaluateQuest(env *Env) (bool, error) {
	quests, err := env.quests()
	if err != nil {
		return false, err
	}
	if !quests.HasQuest(c.Target) {
		return false, nil
	}
	if c.Operator == OpNone {
		return quests.IsQuestStarted(c.Target), nil
	}
	return EvaluateValueWithOption(quests.GetQuestStage(c.Target), c.Operand, c.Operator)
}

// evaluateExec never fails: a failing or panicking script reads as false.
func (c *Condition) evaluateExec(ctx context.Context, env *Env) (result bool) {
	logger := env.logger()
	scripts, err := env.scripts()
	if err != nil {
		logger.Warn("Exec condition has no script runner", "target", c.Target)
		return false
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Exec condition panicked", "target", c.Target, "panic", p)
			result = false
		}
	}()

	var args []any
	if c.Operator != OpNone && c.Operand != nil {
		args = append(args, c.Operand)
	}
	out, err := scripts.CallForResult(ctx, c.Target, args...)
	if err != nil {
		logger.Warn("Exec condition failed", "target", c.Target, "error", err)
		return false
	}
	ok, err := truthy(out)
	if err != nil {
		logger.Warn("Exec condition returned a non-boolean", "target", c.Target, "error", err)
		return false
	}
	return ok
}

func (c *Condition) evaluateResolved(ctx context.Context, env *Env) (bool, error) {
	if c.resolver == nil {
		if reg := env.registry(); reg != nil {
			c.resolver = reg.ConditionResolverFor(c)
		}
	}
	if c.resolver == nil {
		return false, fmt.Errorf("%w: no resolver for condition %s", ErrNotSupported, c)
	}
	return c.resolver.Resolve(ctx, env)
}

// EvaluateValueWithOption compares target with operand under op. Started and
// Finished ignore operand and compare target with zero. A nil on either side
// is false.
func EvaluateValueWithOption(target, operand any, op Operator) (bool, error) {
	if op == OpStarted || op == OpFinished {
		operand = int64(0)
	}
	if target == nil || operand == nil {
		return false, nil
	}

	cmp, err := values.Compare(target, operand)
	if err != nil {
		if errors.Is(err, values.ErrNull) {
			return false, nil
		}
		return false, err
	}

	switch op {
	case OpGreater, OpStarted:
		return cmp > 0, nil
	case OpLess, OpFinished:
		return cmp < 0, nil
	case OpEqual:
		return cmp == 0, nil
	case OpGreaterOrEqual:
		return cmp >= 0, nil
	case OpLessOrEqual:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
}

// EvaluateAll is the flat AND of conds. It stops at the first false or error;
// an empty list is true.
func EvaluateAll(ctx context.Context, conds []*Condition, env *Env) (bool, error) {
	for _, c := range conds {
		ok, err := c.Evaluate(ctx, env)
		if err != nil {
			return false, fmt.Errorf("condition %s: %w", c, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func truthy(v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	if b, err := values.ParseBool(v); err == nil {
		return b, nil
	}
	if values.IsNumeric(v) {
		cmp, err := values.Compare(v, int64(0))
		return cmp != 0, err
	}
	return false, fmt.Errorf("%w: %T is not a boolean", ErrTypeMismatch, v)
}

// MarshalJSON emits the fragment the condition was parsed from.
func (c *Condition) MarshalJSON() ([]byte, error) {
	if c.raw.IsZero() {
		return NewCondition(c.Kind, c.Target, c.Operator, c.Operand).raw.MarshalJSON()
	}
	return c.raw.MarshalJSON()
}

// UnmarshalJSON parses data with the default parser.
func (c *Condition) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCondition(data)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

func conditionFieldFor(kind Kind) string {
	for _, kf := range conditionKindFields {
		if kf.kind == kind {
			return kf.field
		}
	}
	return ""
}

// synthesize builds a fragment for a node constructed in code.
func synthesize(kindField, target, modField string, modValue any, withMod bool) Fragment {
	doc := map[string]any{}
	if kindField != "" {
		doc[kindField] = target
	}
	if withMod {
		if modValue == nil {
			modValue = true
		}
		doc[modField] = modValue
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return Fragment{}
	}
	f, err := NewFragment(data)
	if err != nil {
		return Fragment{}
	}
	return f
}
