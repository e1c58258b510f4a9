package script

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Kind identifies what a Condition or Microscript operates on.
type Kind int

const (
	KindUnknown Kind = iota
	KindFlag
	KindNoFlag
	KindVariable
	KindQuest
	KindActorValue
	KindItem
	KindAffinity
	KindExec
	KindMapMarker
	// KindExtension marks a kind named by a field an add-on registered with the
	// Parser. Extension nodes are always handled by a resolver.
	KindExtension
)

var kindNames = [...]string{
	KindUnknown:    "unknown",
	KindFlag:       "flag",
	KindNoFlag:     "noflag",
	KindVariable:   "variable",
	KindQuest:      "quest",
	KindActorValue: "actorvalue",
	KindItem:       "item",
	KindAffinity:   "affinity",
	KindExec:       "exec",
	KindMapMarker:  "mapmarker",
	KindExtension:  "extension",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Operator is the comparison a Condition applies to its operand.
type Operator int

const (
	// OpNone means no modifier field was present.
	OpNone Operator = iota
	OpGreater
	OpLess
	OpEqual
	OpGreaterOrEqual
	OpLessOrEqual
	OpStarted
	OpFinished
	OpConsume
	OpUnknown
)

var operatorNames = [...]string{
	OpNone:           "none",
	OpGreater:        "greater",
	OpLess:           "less",
	OpEqual:          "equal",
	OpGreaterOrEqual: "greaterEqual",
	OpLessOrEqual:    "lessEqual",
	OpStarted:        "started",
	OpFinished:       "finished",
	OpConsume:        "consume",
	OpUnknown:        "unknown",
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("operator(%d)", int(o))
	}
	return operatorNames[o]
}

// Action is the mutation a Microscript performs.
type Action int

const (
	ActionUnknown Action = iota
	ActionSet
	ActionToggle
	ActionAdd
	ActionGive
	ActionTake
	ActionStart
	ActionFinish
)

var actionNames = [...]string{
	ActionUnknown: "unknown",
	ActionSet:     "set",
	ActionToggle:  "toggle",
	ActionAdd:     "add",
	ActionGive:    "give",
	ActionTake:    "take",
	ActionStart:   "start",
	ActionFinish:  "finish",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// TimeDomain selects the clock a deferred Microscript is scheduled against.
type TimeDomain int

const (
	DomainNone TimeDomain = iota
	// DomainReal is wall-clock time.
	DomainReal
	// DomainWorld is simulation time, which stops while the world is paused.
	DomainWorld
	// DomainGame is narrative or turn time.
	DomainGame
)

var domainNames = [...]string{
	DomainNone:  "none",
	DomainReal:  "real",
	DomainWorld: "world",
	DomainGame:  "game",
}

// TimeDomains lists the domains a deferred action can be scheduled in.
var TimeDomains = []TimeDomain{DomainReal, DomainWorld, DomainGame}

func (d TimeDomain) String() string {
	if d < 0 || int(d) >= len(domainNames) {
		return fmt.Sprintf("domain(%d)", int(d))
	}
	return domainNames[d]
}

// ParseTimeDomain parses a domain name, ignoring case.
func ParseTimeDomain(s string) (TimeDomain, error) {
	s = strings.TrimSpace(s)
	for i, name := range domainNames {
		if strings.EqualFold(name, s) {
			return TimeDomain(i), nil
		}
	}
	return DomainNone, fmt.Errorf("%w: unknown time domain %q", ErrParse, s)
}

// MarshalText implements encoding.TextMarshaler.
func (d TimeDomain) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TimeDomain) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeDomain(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarkerState is the visibility of a map marker.
type MarkerState int

const (
	MarkerUnknown MarkerState = iota
	MarkerHidden
	MarkerRevealed
	MarkerVisited
)

var markerNames = [...]string{
	MarkerUnknown:  "Unknown",
	MarkerHidden:   "Hidden",
	MarkerRevealed: "Revealed",
	MarkerVisited:  "Visited",
}

func (m MarkerState) String() string {
	if m < 0 || int(m) >= len(markerNames) {
		return fmt.Sprintf("marker(%d)", int(m))
	}
	return markerNames[m]
}

// ParseMarkerState matches s against the marker state names using Unicode
// case folding.
func ParseMarkerState(s string) (MarkerState, error) {
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(s))
	for i, name := range markerNames {
		if fold.String(name) == want {
			return MarkerState(i), nil
		}
	}
	return MarkerUnknown, fmt.Errorf("%w: unknown map marker state %q", ErrTypeMismatch, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m MarkerState) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MarkerState) UnmarshalText(text []byte) error {
	parsed, err := ParseMarkerState(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
