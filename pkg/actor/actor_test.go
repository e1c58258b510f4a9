package actor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jwebster45206/questscript/pkg/script"
)

func testSpec() *Spec {
	return &Spec{
		ID:    "hero",
		Name:  "Test Hero",
		Stats: Stats5e{Strength: 16, Dexterity: 14, Constitution: 15, Intelligence: 10, Wisdom: 12, Charisma: 8},
		MaxHP: 20,
		AC:    15,
		Attributes: map[string]int{
			"stealth": 3,
		},
	}
}

func TestStats5e_ToAttributes(t *testing.T) {
	stats := testSpec().Stats
	attrs := stats.ToAttributes()

	tests := []struct {
		key      string
		expected int
	}{
		{"strength", 16},
		{"dexterity", 14},
		{"constitution", 15},
		{"intelligence", 10},
		{"wisdom", 12},
		{"charisma", 8},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := attrs[tt.key]; got != tt.expected {
				t.Errorf("ToAttributes()[%q] = %d, want %d", tt.key, got, tt.expected)
			}
		})
	}
}

func TestActor_GetAV(t *testing.T) {
	a, err := New(testSpec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name string
		want int
	}{
		{"hp", 20},
		{"HP", 20},
		{"max_hp", 20},
		{"ac", 15},
		{"Strength", 16},
		{"stealth", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.GetAV(tt.name)
			if err != nil {
				t.Fatalf("GetAV(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("GetAV(%q) = %v, want %d", tt.name, got, tt.want)
			}
		})
	}

	_, err = a.GetAV("mana")
	if !errors.Is(err, script.ErrNotFound) {
		t.Errorf("GetAV(mana) error = %v, want ErrNotFound", err)
	}
}

func TestActor_SetAndModAV(t *testing.T) {
	a, err := New(testSpec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := a.SetAV("hp", int64(12)); err != nil {
		t.Fatalf("SetAV(hp) error = %v", err)
	}
	if err := a.ModAV("hp", -2); err != nil {
		t.Fatalf("ModAV(hp) error = %v", err)
	}
	if got := a.Actor.HP(); got != 10 {
		t.Errorf("HP() = %d, want 10", got)
	}

	// Changing a stat rebuilds the actor but keeps current HP.
	if err := a.ModAV("strength", "2"); err != nil {
		t.Fatalf("ModAV(strength) error = %v", err)
	}
	if got, _ := a.GetAV("strength"); got != 18 {
		t.Errorf("strength = %v, want 18", got)
	}
	if got := a.Actor.HP(); got != 10 {
		t.Errorf("HP() after rebuild = %d, want 10", got)
	}

	if err := a.SetAV("stealth", 5.0); err != nil {
		t.Fatalf("SetAV(stealth) error = %v", err)
	}
	if got, _ := a.GetAV("stealth"); got != 5 {
		t.Errorf("stealth = %v, want 5", got)
	}

	if err := a.SetAV("ac", 17); err != nil {
		t.Fatalf("SetAV(ac) error = %v", err)
	}
	if got := a.Actor.AC(); got != 17 {
		t.Errorf("AC() = %d, want 17", got)
	}

	if err := a.SetAV("mana", 1); !errors.Is(err, script.ErrNotFound) {
		t.Errorf("SetAV(mana) error = %v, want ErrNotFound", err)
	}
	if err := a.ModAV("mana", 1); !errors.Is(err, script.ErrNotFound) {
		t.Errorf("ModAV(mana) error = %v, want ErrNotFound", err)
	}
	if err := a.SetAV("stealth", 1.5); !errors.Is(err, script.ErrTypeMismatch) {
		t.Errorf("SetAV(stealth, 1.5) error = %v, want ErrTypeMismatch", err)
	}
}

func TestActor_JSONRoundTrip(t *testing.T) {
	a, err := New(testSpec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.SetAV("hp", 7); err != nil {
		t.Fatalf("SetAV(hp) error = %v", err)
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var restored Actor
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if restored.Actor.HP() != 7 {
		t.Errorf("restored HP = %d, want 7", restored.Actor.HP())
	}
	if restored.Actor.MaxHP() != 20 {
		t.Errorf("restored MaxHP = %d, want 20", restored.Actor.MaxHP())
	}
	if v, _ := restored.GetAV("stealth"); v != 3 {
		t.Errorf("restored stealth = %v, want 3", v)
	}
}

func TestActor_ZeroHPSurvivesRoundTrip(t *testing.T) {
	a, err := New(testSpec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := a.Actor.HP(); got != 20 {
		t.Fatalf("HP() without a stored hp = %d, want full health 20", got)
	}
	if err := a.SetAV("hp", 0); err != nil {
		t.Fatalf("SetAV(hp, 0) error = %v", err)
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var restored Actor
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := restored.Actor.HP(); got != 0 {
		t.Errorf("restored HP = %d, want 0", got)
	}

	// Raising a stat keeps the actor at zero.
	if err := restored.ModAV("strength", 1); err != nil {
		t.Fatalf("ModAV(strength) error = %v", err)
	}
	if got := restored.Actor.HP(); got != 0 {
		t.Errorf("HP() after rebuild = %d, want 0", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ranger.json")

	data, err := json.Marshal(testSpec())
	if err != nil {
		t.Fatalf("Failed to marshal spec: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	a, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if a.Spec.ID != "ranger" {
		t.Errorf("ID = %q, want %q", a.Spec.ID, "ranger")
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Load() with a missing file should return error")
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should return error")
	}

	spec := testSpec()
	spec.MaxHP = 0
	if _, err := New(spec); err == nil {
		t.Error("New() with zero MaxHP should return error")
	}
}
