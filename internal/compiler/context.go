// internal/compiler/context.go
package compiler

import (
	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Compilation context.
 *
 * The context carries the two pieces of path-scoped state threaded through
 * recursive expression compilation: the set of optional references already
 * proven present (narrowing), and the condition-result bindings in scope.
 * The parameter environment rides along as shared read-only state.
 *
 * Contexts are values. Every mutation returns an updated copy and Fork
 * deep-copies the mutable maps, so narrowing learned compiling one branch
 * can never leak into a sibling branch: isolation holds by construction,
 * with no save/restore discipline required.
 */

// Mode selects the ownership obligation of a compiled expression: Borrowed
// fragments may reference their inputs, Owned fragments must carry no
// remaining borrow.
type Mode int

const (
	Borrowed Mode = iota
	Owned
)

// String returns the mode name used in diagnostics.
func (m Mode) String() string {
	if m == Owned {
		return "Owned"
	}
	return "Borrowed"
}

// Context is the per-path compilation state. The zero value is not usable;
// construct with NewContext.
type Context struct {
	params   map[string]types.Parameter
	bindings map[string]types.Type
	known    map[string]struct{}
}

// NewContext builds a root context over the rule set's parameter model.
func NewContext(params []types.Parameter) Context {
	m := make(map[string]types.Parameter, len(params))
	for _, p := range params {
		m[p.Name] = p
	}
	return Context{
		params:   m,
		bindings: map[string]types.Type{},
		known:    map[string]struct{}{},
	}
}

// Fork returns an independent copy for compiling an alternative branch.
// The parameter model is shared (immutable); bindings and narrowing are
// deep-copied.
func (c Context) Fork() Context {
	bindings := make(map[string]types.Type, len(c.bindings))
	for k, v := range c.bindings {
		bindings[k] = v
	}
	known := make(map[string]struct{}, len(c.known))
	for k := range c.known {
		known[k] = struct{}{}
	}
	return Context{params: c.params, bindings: bindings, known: known}
}

// Param looks up a declared parameter.
func (c Context) Param(name string) (types.Parameter, bool) {
	p, ok := c.params[name]
	return p, ok
}

// Binding looks up a condition-result binding in scope. Bindings shadow
// parameters of the same name.
func (c Context) Binding(name string) (types.Type, bool) {
	t, ok := c.bindings[name]
	return t, ok
}

// Known reports whether an optional reference has been proven present on
// the current path.
func (c Context) Known(name string) bool {
	_, ok := c.known[name]
	return ok
}

// WithKnown returns a copy with the reference marked known-present.
func (c Context) WithKnown(name string) Context {
	next := c.Fork()
	next.known[name] = struct{}{}
	return next
}

// WithBinding returns a copy with a new named slot in scope.
func (c Context) WithBinding(name string, t types.Type) Context {
	next := c.Fork()
	next.bindings[name] = t
	return next
}
