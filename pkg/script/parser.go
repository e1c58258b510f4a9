package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jwebster45206/questscript/pkg/values"
)

type kindField struct {
	field string
	kind  Kind
}

// Field scan order matters: the first field present wins.
var conditionKindFields = []kindField{
	{"flag", KindFlag},
	{"noflag", KindNoFlag},
	{"variable", KindVariable},
	{"affinity", KindAffinity},
	{"quest", KindQuest},
	{"item", KindItem},
	{"actorvalue", KindActorValue},
	{"av", KindActorValue},
	{"exec", KindExec},
}

var microscriptKindFields = []kindField{
	{"flag", KindFlag},
	{"item", KindItem},
	{"variable", KindVariable},
	{"affinity", KindAffinity},
	{"quest", KindQuest},
	{"actorvalue", KindActorValue},
	{"av", KindActorValue},
	{"exec", KindExec},
	{"mapmarker", KindMapMarker},
}

var conditionModifiers = []struct {
	field string
	op    Operator
}{
	{"consume", OpConsume},
	{"greater", OpGreater},
	{"less", OpLess},
	{"equal", OpEqual},
	{"greaterEqual", OpGreaterOrEqual},
	{"lessEqual", OpLessOrEqual},
	{"started", OpStarted},
	{"finished", OpFinished},
}

var microscriptActions = []struct {
	field  string
	action Action
}{
	{"set", ActionSet},
	{"toggle", ActionToggle},
	{"add", ActionAdd},
	{"give", ActionGive},
	{"take", ActionTake},
	{"start", ActionStart},
	{"finish", ActionFinish},
}

const (
	fieldDelay         = "delay"
	fieldDelayType     = "delayType"
	fieldDelayAbsolute = "delayAbsolute"
)

// Parser turns JSON objects into Conditions and Microscripts. Extension field
// names are checked after the built-in kind fields.
type Parser struct {
	logger     *slog.Logger
	extensions []string
}

func NewParser(logger *slog.Logger, extensions ...string) *Parser {
	return &Parser{logger: logger, extensions: extensions}
}

var defaultParser = NewParser(nil)

// ParseCondition parses data with a parser that knows no extensions.
func ParseCondition(data []byte) (*Condition, error) {
	return defaultParser.ParseCondition(data)
}

// ParseMicroscript parses data with a parser that knows no extensions.
func ParseMicroscript(data []byte) (*Microscript, error) {
	return defaultParser.ParseMicroscript(data)
}

func (p *Parser) log() *slog.Logger {
	if p.logger == nil {
		return slog.Default()
	}
	return p.logger
}

func (p *Parser) ParseCondition(data []byte) (*Condition, error) {
	frag, err := NewFragment(data)
	if err != nil {
		return nil, err
	}

	c := &Condition{raw: frag}
	c.Kind, c.Extension, c.Target, err = p.scanKind(frag, conditionKindFields)
	if err != nil {
		return nil, err
	}
	if c.Kind == KindUnknown {
		p.log().Warn("Condition has no recognized kind field", "fragment", frag.String())
	}

	for _, mod := range conditionModifiers {
		v, ok := frag.Value(mod.field)
		if !ok {
			continue
		}
		c.Operator = mod.op
		c.Operand = operandValue(v)
		break
	}
	return c, nil
}

func (p *Parser) ParseMicroscript(data []byte) (*Microscript, error) {
	frag, err := NewFragment(data)
	if err != nil {
		return nil, err
	}

	m := &Microscript{raw: frag}
	m.Kind, m.Extension, m.Target, err = p.scanKind(frag, microscriptKindFields)
	if err != nil {
		return nil, err
	}
	if m.Kind == KindUnknown {
		p.log().Warn("Microscript has no recognized kind field", "fragment", frag.String())
	}

	for _, act := range microscriptActions {
		v, ok := frag.Value(act.field)
		if !ok {
			continue
		}
		m.Action = act.action
		if act.action == ActionSet && m.Kind == KindFlag {
			b, err := values.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: flag %q: set: %v", ErrParse, m.Target, err)
			}
			m.Value = b
		} else {
			m.Value = operandValue(v)
		}
		break
	}

	m.Delay, err = parseDelay(frag)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ParseConditionList parses a JSON array of conditions. Elements that fail to
// parse are logged and skipped; their errors are returned with the rest. A
// document that is not an array is an error for the whole list.
func (p *Parser) ParseConditionList(data []byte) ([]*Condition, []error, error) {
	items, err := splitArray(data)
	if err != nil {
		return nil, nil, err
	}
	conds := make([]*Condition, 0, len(items))
	var errs []error
	for i, item := range items {
		c, err := p.ParseCondition(item)
		if err != nil {
			p.log().Warn("Skipping unparsable condition", "index", i, "error", err)
			errs = append(errs, fmt.Errorf("condition %d: %w", i, err))
			continue
		}
		conds = append(conds, c)
	}
	return conds, errs, nil
}

// ParseMicroscriptList parses a JSON array of microscripts the same way.
func (p *Parser) ParseMicroscriptList(data []byte) ([]*Microscript, []error, error) {
	items, err := splitArray(data)
	if err != nil {
		return nil, nil, err
	}
	actions := make([]*Microscript, 0, len(items))
	var errs []error
	for i, item := range items {
		m, err := p.ParseMicroscript(item)
		if err != nil {
			p.log().Warn("Skipping unparsable microscript", "index", i, "error", err)
			errs = append(errs, fmt.Errorf("microscript %d: %w", i, err))
			continue
		}
		actions = append(actions, m)
	}
	return actions, errs, nil
}

func (p *Parser) scanKind(frag Fragment, fields []kindField) (Kind, string, string, error) {
	for _, kf := range fields {
		if !frag.Has(kf.field) {
			continue
		}
		target, err := targetOf(frag, kf.field)
		return kf.kind, "", target, err
	}
	for _, ext := range p.extensions {
		if !frag.Has(ext) {
			continue
		}
		target, err := targetOf(frag, ext)
		return KindExtension, ext, target, err
	}
	return KindUnknown, "", "", nil
}

func targetOf(frag Fragment, field string) (string, error) {
	v, _ := frag.Value(field)
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string, got %s", ErrParse, field, describe(v))
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %q must not be empty", ErrParse, field)
	}
	return s, nil
}

func parseDelay(frag Fragment) (Delay, error) {
	v, ok := frag.Value(fieldDelay)
	if !ok {
		return Delay{}, nil
	}

	d := Delay{Domain: DomainGame}
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Delay{}, fmt.Errorf("%w: delay: %v", ErrParse, err)
		}
		d.Amount = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return Delay{}, fmt.Errorf("%w: delay %q is not a number", ErrParse, x)
		}
		d.Amount = f
	default:
		return Delay{}, fmt.Errorf("%w: delay must be a number, got %s", ErrParse, describe(v))
	}

	if t, ok := frag.Value(fieldDelayType); ok {
		s, isString := t.(string)
		if !isString {
			return Delay{}, fmt.Errorf("%w: delayType must be a string, got %s", ErrParse, describe(t))
		}
		domain, err := ParseTimeDomain(s)
		if err != nil {
			return Delay{}, err
		}
		if domain == DomainNone {
			return Delay{}, fmt.Errorf("%w: delayType %q is not schedulable", ErrParse, s)
		}
		d.Domain = domain
	}

	if a, ok := frag.Value(fieldDelayAbsolute); ok {
		abs, err := values.ParseBool(a)
		if err != nil {
			return Delay{}, fmt.Errorf("%w: delayAbsolute: %v", ErrParse, err)
		}
		d.Absolute = abs
	}
	return d, nil
}

// operandValue converts a decoded field into the scalar a node stores.
func operandValue(v any) any {
	switch x := v.(type) {
	case string:
		return values.AutoNumeric(x)
	case json.Number:
		return values.Normalize(x)
	}
	return v
}

func splitArray(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: document is not a JSON array", ErrParse)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return items, nil
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
