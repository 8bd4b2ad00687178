// internal/compiler/registry.go
package compiler

import (
	"fmt"
	"sort"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Runtime function registry.
 *
 * Maps function identifiers to code-generation descriptors. Stateless
 * functions supply only a callable path and are emitted as direct calls.
 * Stateful functions additionally declare a resolver-struct field, its
 * constructor initialization, and the extra argument threaded through every
 * call site, so all generated call sites stay uniform.
 *
 * Sources are merged before compilation starts; a duplicate id across
 * sources is a configuration error, fatal at registry-build time. Lookup is
 * exact and case-sensitive, and registration order carries no priority.
 */

// Descriptor describes how calls to one runtime function are generated.
type Descriptor struct {
	// Result is the static type of the call expression.
	Result types.Type

	// Params lists the expected argument kinds, in order. Used by the
	// loader's resolution pass; the compiler trusts resolved types.
	Params []types.Kind

	// Attributes types the fields of an object result, keyed by the
	// attribute name as it appears in getAttr paths.
	Attributes map[string]types.Type

	// CallPath is the fully qualified callable reference emitted at each
	// call site.
	CallPath string

	// Stateful hooks. All four are set for a stateful function, none for a
	// pure one. StateField/StateType declare the owned state embedded in
	// the generated resolver, StateInit its constructor expression, and
	// StateArg the extra argument passed at each call site.
	StateField string
	StateType  string
	StateInit  string
	StateArg   string
}

// Stateful reports whether the descriptor threads auxiliary resolver state.
func (d Descriptor) Stateful() bool {
	return d.StateField != ""
}

// Registry is an immutable id-to-descriptor table assembled before
// compilation begins.
type Registry struct {
	fns map[string]Descriptor
}

// NewRegistry merges descriptor sources into a registry. A function id
// appearing in more than one source (or twice in one) is fatal.
func NewRegistry(sources ...map[string]Descriptor) (*Registry, error) {
	fns := make(map[string]Descriptor)
	for _, src := range sources {
		ids := make([]string, 0, len(src))
		for id := range src {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, exists := fns[id]; exists {
				return nil, fmt.Errorf("%w: %q", types.ErrDuplicateFunction, id)
			}
			fns[id] = src[id]
		}
	}
	return &Registry{fns: fns}, nil
}

// Lookup returns the descriptor for an exact, case-sensitive id match.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	d, ok := r.fns[id]
	return d, ok
}

// IDs returns all registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.fns))
	for id := range r.fns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResultOf returns the result type of a registered function. Implements the
// loader's typing source.
func (r *Registry) ResultOf(id string) (types.Type, bool) {
	d, ok := r.fns[id]
	if !ok {
		return types.Type{}, false
	}
	return d.Result, true
}

// AttributeOf returns the type of an attribute of an object result type.
// Object names are unique across descriptors; the sorted scan keeps the
// answer deterministic regardless of registration order.
func (r *Registry) AttributeOf(object, attr string) (types.Type, bool) {
	for _, id := range r.IDs() {
		d := r.fns[id]
		if d.Result.Object != object {
			continue
		}
		t, ok := d.Attributes[attr]
		return t, ok
	}
	return types.Type{}, false
}
