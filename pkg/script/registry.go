package script

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// ConditionResolver evaluates a Condition the evaluator has no native
// handling for. It is bound to the node it was constructed for.
type ConditionResolver interface {
	CanResolve() bool
	Resolve(ctx context.Context, env *Env) (bool, error)
}

// MicroscriptResolver executes a Microscript the executor has no native
// handling for.
type MicroscriptResolver interface {
	CanResolve() bool
	Resolve(ctx context.Context, env *Env) error
}

// ResolverType describes a resolver implementation: a name for diagnostics and
// a constructor binding it to one node.
type ResolverType[N any, R any] struct {
	Name string
	New  func(node N) (R, error)
}

type (
	ConditionResolverType   = ResolverType[*Condition, ConditionResolver]
	MicroscriptResolverType = ResolverType[*Microscript, MicroscriptResolver]
)

// Registry holds the resolver types available to the evaluator. Later
// registrations take priority, so an add-on can override a base resolver by
// registering after it.
type Registry struct {
	mu               sync.RWMutex
	conditionTypes   []ConditionResolverType
	microscriptTypes []MicroscriptResolverType
	logger           *slog.Logger

	// Verbose enables logging of resolver constructors that fail or panic.
	Verbose bool
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

func (r *Registry) RegisterConditionResolvers(types ...ConditionResolverType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditionTypes = append(r.conditionTypes, types...)
}

func (r *Registry) RegisterMicroscriptResolvers(types ...MicroscriptResolverType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.microscriptTypes = append(r.microscriptTypes, types...)
}

// ConditionResolverFor returns the most recently registered resolver that can
// handle c, or nil.
func (r *Registry) ConditionResolverFor(c *Condition) ConditionResolver {
	r.mu.RLock()
	types := r.conditionTypes
	r.mu.RUnlock()

	res, _ := lookup(r, c, types)
	return res
}

// MicroscriptResolverFor returns the most recently registered resolver that
// can handle m, or nil.
func (r *Registry) MicroscriptResolverFor(m *Microscript) MicroscriptResolver {
	r.mu.RLock()
	types := r.microscriptTypes
	r.mu.RUnlock()

	res, _ := lookup(r, m, types)
	return res
}

func lookup[N fmt.Stringer, R interface{ CanResolve() bool }](r *Registry, node N, types []ResolverType[N, R]) (R, bool) {
	var zero R
	for i := len(types) - 1; i >= 0; i-- {
		rt := types[i]
		res, claims, err := construct(rt, node)
		if err != nil {
			if r.Verbose {
				r.log().Warn("Resolver construction failed",
					"resolver", rt.Name,
					"node", node.String(),
					"error", err)
			}
			continue
		}
		if claims {
			return res, true
		}
	}
	return zero, false
}

// construct builds a resolver and asks whether it claims node. Panics from
// either call become errors.
func construct[N any, R interface{ CanResolve() bool }](rt ResolverType[N, R], node N) (res R, claims bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero R
			res, claims = zero, false
			err = fmt.Errorf("resolver %s panicked: %v", rt.Name, p)
		}
	}()
	if rt.New == nil {
		return res, false, fmt.Errorf("resolver %s has no constructor", rt.Name)
	}
	res, err = rt.New(node)
	if err != nil {
		return res, false, err
	}
	if isNil(res) {
		return res, false, nil
	}
	return res, res.CanResolve(), nil
}

// isNil also catches a typed nil pointer stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
