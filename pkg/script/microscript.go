package script

import (
	"context"
	"fmt"

	"github.com/jwebster45206/questscript/pkg/values"
)

// Delay describes when a deferred Microscript should run. The zero value
// means run immediately.
type Delay struct {
	Domain   TimeDomain
	Amount   float64
	Absolute bool
}

// Deferred reports whether the delay postpones execution.
func (d Delay) Deferred() bool {
	return d.Domain != DomainNone
}

// Microscript is a single authored state mutation.
type Microscript struct {
	Kind      Kind
	Extension string
	Target    string
	Action    Action
	Value     any
	Delay     Delay

	raw      Fragment
	resolver MicroscriptResolver
}

// NewMicroscript builds a microscript in code.
func NewMicroscript(kind Kind, target string, action Action, value any) *Microscript {
	m := &Microscript{Kind: kind, Target: target, Action: action, Value: value}
	m.raw = synthesize(microscriptFieldFor(kind), target, action.String(), value, action != ActionUnknown)
	return m
}

// Raw returns the fragment the microscript was parsed from.
func (m *Microscript) Raw() Fragment {
	return m.raw
}

func (m *Microscript) String() string {
	if m == nil {
		return "<nil microscript>"
	}
	label := m.Kind.String()
	if m.Kind == KindExtension {
		label = m.Extension
	}
	s := fmt.Sprintf("%s:%s %s", label, m.Target, m.Action)
	if m.Value != nil {
		s += fmt.Sprintf(" %v", m.Value)
	}
	if m.Delay.Deferred() {
		s += fmt.Sprintf(" after %g %s", m.Delay.Amount, m.Delay.Domain)
	}
	return s
}

// Clone returns a deep copy without the resolver binding.
func (m *Microscript) Clone() *Microscript {
	c := *m
	c.raw = m.raw.Clone()
	c.resolver = nil
	return &c
}

// CloneForSchedule returns a clone that runs immediately when executed, so a
// scheduled action does not defer itself again.
func (m *Microscript) CloneForSchedule() *Microscript {
	c := m.Clone()
	c.Delay = Delay{}
	return c
}

// Execute applies the microscript to env, or hands a snapshot to
// env.Scheduler when it carries a delay.
func (m *Microscript) Execute(ctx context.Context, env *Env) error {
	if m.Delay.Deferred() {
		return m.schedule(ctx, env)
	}

	switch m.Kind {
	case KindFlag:
		return m.executeFlag(env)
	case KindVariable:
		return m.executeVariable(env)
	case KindQuest:
		return m.executeQuest(env)
	case KindExec:
		return m.executeExec(ctx, env)
	}
	return m.executeResolved(ctx, env)
}

func (m *Microscript) schedule(ctx context.Context, env *Env) error {
	if env == nil || env.Scheduler == nil {
		return fmt.Errorf("%w: %s", ErrNoScheduler, m)
	}
	snapshot := m.CloneForSchedule()
	if err := env.Scheduler.ScheduleEvent(ctx, snapshot, m.Delay.Domain, m.Delay.Amount, m.Delay.Absolute); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", m, err)
	}
	env.logger().Debug("Scheduled microscript",
		"action", snapshot.String(),
		"domain", m.Delay.Domain.String(),
		"amount", m.Delay.Amount,
		"absolute", m.Delay.Absolute)
	return nil
}

func (m *Microscript) executeFlag(env *Env) error {
	flags, err := env.flags()
	if err != nil {
		return err
	}
	switch m.Action {
	case ActionToggle:
		flags.ToggleFlag(m.Target)
		return nil
	case ActionSet:
		b, err := values.ParseBool(m.Value)
		if err != nil {
			return fmt.Errorf("flag %s: %w", m.Target, err)
		}
		flags.SetFlag(m.Target, b)
		return nil
	}
	return fmt.Errorf("%w: %s on flag", ErrNotSupported, m.Action)
}

func (m *Microscript) executeVariable(env *Env) error {
	vars, err := env.vars()
	if err != nil {
		return err
	}
	switch m.Action {
	case ActionSet:
		vars.SetVar(m.Target, m.Value)
		return nil
	case ActionAdd:
		if !vars.HasVar(m.Target) {
			vars.SetVar(m.Target, m.Value)
			return nil
		}
		sum, err := values.Add(vars.GetVar(m.Target), m.Value)
		if err != nil {
			return fmt.Errorf("variable %s: %w", m.Target, err)
		}
		vars.SetVar(m.Target, sum)
		return nil
	case ActionToggle:
		current := false
		if vars.HasVar(m.Target) {
			current, err = values.ParseBool(vars.GetVar(m.Target))
			if err != nil {
				return fmt.Errorf("variable %s: %w", m.Target, err)
			}
		}
		vars.SetVar(m.Target, !current)
		return nil
	}
	return fmt.Errorf("%w: %s on variable", ErrNotSupported, m.Action)
}

func (m *Microscript) executeQuest(env *Env) error {
	quests, err := env.quests()
	if err != nil {
		return err
	}
	switch m.Action {
	case ActionSet:
		stage, err := values.ToInt(m.Value)
		if err != nil {
			return fmt.Errorf("quest %s: %w", m.Target, err)
		}
		quests.SetQuestStage(m.Target, stage)
		return nil

	case ActionAdd:
		delta, err := values.ToInt(m.Value)
		if err != nil {
			return fmt.Errorf("quest %s: %w", m.Target, err)
		}
		quests.SetQuestStage(m.Target, quests.GetQuestStage(m.Target)+delta)
		return nil

	case ActionStart:
		stage := 1
		if values.IsNumeric(m.Value) {
			n, err := values.ToInt(m.Value)
			if err != nil {
				return fmt.Errorf("quest %s: %w", m.Target, err)
			}
			if n > 0 {
				stage = n
			}
		}
		quests.StartQuest(m.Target, stage)
		return nil

	case ActionFinish:
		if !quests.IsQuestStarted(m.Target) {
			env.logger().Debug("Ignoring finish of a quest that is not started", "quest", m.Target)
			return nil
		}
		stage := -1
		if values.IsNumeric(m.Value) {
			n, err := values.ToInt(m.Value)
			if err != nil {
				return fmt.Errorf("quest %s: %w", m.Target, err)
			}
			if n > 0 {
				stage = -n
			} else if n < 0 {
				stage = n
			}
		}
		quests.EndQuest(m.Target, stage)
		return nil
	}
	return fmt.Errorf("%w: %s on quest", ErrNotSupported, m.Action)
}

func (m *Microscript) executeExec(ctx context.Context, env *Env) error {
	scripts, err := env.scripts()
	if err != nil {
		return err
	}
	var args []any
	if m.Value != nil {
		args = append(args, m.Value)
	}
	if err := scripts.Call(ctx, m.Target, args...); err != nil {
		return fmt.Errorf("exec %s: %w", m.Target, err)
	}
	return nil
}

func (m *Microscript) executeResolved(ctx context.Context, env *Env) error {
	if m.resolver == nil {
		if reg := env.registry(); reg != nil {
			m.resolver = reg.MicroscriptResolverFor(m)
		}
	}
	if m.resolver == nil {
		return fmt.Errorf("%w: no resolver for microscript %s", ErrNotSupported, m)
	}
	return m.resolver.Resolve(ctx, env)
}

// ExecuteAll runs actions in order and stops at the first error.
func ExecuteAll(ctx context.Context, actions []*Microscript, env *Env) error {
	for _, m := range actions {
		if err := m.Execute(ctx, env); err != nil {
			return fmt.Errorf("microscript %s: %w", m, err)
		}
	}
	return nil
}

// MarshalJSON emits the fragment the microscript was parsed from.
func (m *Microscript) MarshalJSON() ([]byte, error) {
	if m.raw.IsZero() {
		return NewMicroscript(m.Kind, m.Target, m.Action, m.Value).raw.MarshalJSON()
	}
	return m.raw.MarshalJSON()
}

// UnmarshalJSON parses data with the default parser.
func (m *Microscript) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMicroscript(data)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

func microscriptFieldFor(kind Kind) string {
	for _, kf := range microscriptKindFields {
		if kf.kind == kind {
			return kf.field
		}
	}
	return ""
}
