package actor

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/d20"
	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/values"
)

// Stats5e represents the six core ability scores
type Stats5e struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// ToAttributes converts Stats5e to a map for d20.Actor compatibility
func (s *Stats5e) ToAttributes() map[string]int {
	return map[string]int{
		"strength":     s.Strength,
		"dexterity":    s.Dexterity,
		"constitution": s.Constitution,
		"intelligence": s.Intelligence,
		"wisdom":       s.Wisdom,
		"charisma":     s.Charisma,
	}
}

func (s *Stats5e) set(key string, v int) bool {
	switch key {
	case "strength":
		s.Strength = v
	case "dexterity":
		s.Dexterity = v
	case "constitution":
		s.Constitution = v
	case "intelligence":
		s.Intelligence = v
	case "wisdom":
		s.Wisdom = v
	case "charisma":
		s.Charisma = v
	default:
		return false
	}
	return true
}

// Spec is the serializable form of an actor
type Spec struct {
	ID              string         `json:"id"`
	Name            string         `json:"name,omitempty"`
	Stats           Stats5e        `json:"stats"`
	HP              *int           `json:"hp,omitempty"` // nil means full health
	MaxHP           int            `json:"max_hp"`
	AC              int            `json:"ac,omitempty"`
	CombatModifiers map[string]int `json:"combat_modifiers,omitempty"`
	Attributes      map[string]int `json:"attributes,omitempty"` // Skills, resistances, etc.
}

// Actor exposes a d20 actor's stats as script actor values. Names are case
// insensitive: "hp", "max_hp", "ac", the six ability scores and any custom
// attribute from its Spec.
type Actor struct {
	Spec  *Spec
	Actor *d20.Actor // Built at runtime from Spec
}

var _ script.ActorValues = (*Actor)(nil)

// New builds an Actor from spec
func New(spec *Spec) (*Actor, error) {
	if spec == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}
	a := &Actor{Spec: spec}
	if err := a.rebuild(spec.HP); err != nil {
		return nil, err
	}
	return a, nil
}

// Load reads an actor spec from a JSON file. The filename (without
// extension) overrides any ID in the JSON.
func Load(path string) (*Actor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actor file: %w", err)
	}

	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actor spec: %w", err)
	}
	spec.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	return New(&spec)
}

// rebuild recreates the d20 actor from its Spec and restores hp, capped at
// max HP. A nil hp means full health.
func (a *Actor) rebuild(hp *int) error {
	attrs := a.Spec.Stats.ToAttributes()
	maps.Copy(attrs, a.Spec.Attributes)

	built, err := d20.NewActor(a.Spec.ID).
		WithHP(a.Spec.MaxHP).
		WithAC(a.Spec.AC).
		WithAttributes(attrs).
		WithCombatModifiers(a.Spec.CombatModifiers).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build actor: %w", err)
	}

	if hp != nil && *hp < a.Spec.MaxHP {
		if err := built.SetHP(*hp); err != nil {
			return fmt.Errorf("failed to set HP: %w", err)
		}
	}
	a.Actor = built
	a.syncHP()
	return nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GetAV returns the current value of a stat as an int.
func (a *Actor) GetAV(name string) (any, error) {
	switch k := key(name); k {
	case "hp":
		return a.Actor.HP(), nil
	case "max_hp", "maxhp":
		return a.Actor.MaxHP(), nil
	case "ac":
		return a.Actor.AC(), nil
	default:
		if v, ok := a.Actor.Attribute(k); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: actor value %q on %s", script.ErrNotFound, name, a.Spec.ID)
}

// SetAV assigns a stat. Values must be integral.
func (a *Actor) SetAV(name string, value any) error {
	n, err := values.ToInt(value)
	if err != nil {
		return fmt.Errorf("actor value %q: %w", name, err)
	}

	hp := a.Actor.HP()
	switch k := key(name); k {
	case "hp":
		if err := a.Actor.SetHP(n); err != nil {
			return fmt.Errorf("failed to set HP: %w", err)
		}
		a.syncHP()
		return nil
	case "max_hp", "maxhp":
		a.Spec.MaxHP = n
	case "ac":
		a.Spec.AC = n
	default:
		if a.Spec.Stats.set(k, n) {
			break
		}
		if _, ok := a.Spec.Attributes[k]; !ok {
			return fmt.Errorf("%w: actor value %q on %s", script.ErrNotFound, name, a.Spec.ID)
		}
		a.Spec.Attributes[k] = n
	}
	return a.rebuild(&hp)
}

func (a *Actor) syncHP() {
	hp := a.Actor.HP()
	a.Spec.HP = &hp
}

// ModAV adds delta to a stat.
func (a *Actor) ModAV(name string, delta any) error {
	current, err := a.GetAV(name)
	if err != nil {
		return err
	}
	if s, ok := delta.(string); ok {
		delta = values.AutoNumeric(s)
	}
	sum, err := values.Add(current, delta)
	if err != nil {
		return fmt.Errorf("actor value %q: %w", name, err)
	}
	return a.SetAV(name, sum)
}

// MarshalJSON writes the Spec with HP read from the live actor.
func (a *Actor) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	if a.Actor != nil {
		a.syncHP()
	}
	return json.Marshal(a.Spec)
}

// UnmarshalJSON reads a spec and rebuilds the d20 actor.
func (a *Actor) UnmarshalJSON(data []byte) error {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("failed to unmarshal actor spec: %w", err)
	}
	a.Spec = &spec
	return a.rebuild(spec.HP)
}
