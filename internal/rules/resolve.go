// internal/rules/resolve.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Type resolution.
 *
 * Walks the decoded tree once, stamping every expression node with its
 * static type and validating that references name declared parameters or
 * in-scope bindings. Binding scopes follow rule-path structure: a
 * condition's bound result is visible to later conditions and the OnTrue
 * subtree, never to OnFalse.
 *
 * A library call whose id the typing source does not know keeps the zero
 * (unknown) type: the compiler degrades to the conservative owned-copy
 * strategy for such values, and raises the fatal unknown-function error
 * itself if the id is missing from the registry at generation time.
 */

// Signatures supplies result and attribute types for library functions.
// The compiler's function registry implements it.
type Signatures interface {
	ResultOf(id string) (types.Type, bool)
	AttributeOf(object, attr string) (types.Type, bool)
}

// Resolve stamps static types across the rule set and validates reference
// scoping. Must run after Decode and before compilation.
func Resolve(rs *types.RuleSet, sigs Signatures) error {
	if rs.Root == nil {
		return fmt.Errorf("%w: empty rule tree", types.ErrInvalidRuleSet)
	}
	return resolveNode(rs.Root, rs, sigs, map[string]types.Type{})
}

func resolveNode(node types.RuleNode, rs *types.RuleSet, sigs Signatures, scope map[string]types.Type) error {
	switch n := node.(type) {
	case *types.Branch:
		inner := copyScope(scope)
		for i := range n.Conditions {
			cond := &n.Conditions[i]
			t, err := resolveExpr(cond.Fn, rs, sigs, inner)
			if err != nil {
				return err
			}
			if cond.Bind != "" {
				inner = copyScope(inner)
				inner[cond.Bind] = t.NonOptional()
			}
		}
		if err := resolveNode(n.OnTrue, rs, sigs, inner); err != nil {
			return err
		}
		return resolveNode(n.OnFalse, rs, sigs, scope)
	case *types.EndpointOutcome:
		if err := resolveTemplate(n.URL, rs, sigs, scope); err != nil {
			return err
		}
		for _, k := range sortedScopeKeys(n.Properties) {
			if err := resolveProperty(n.Properties[k], rs, sigs, scope); err != nil {
				return fmt.Errorf("property %q: %w", k, err)
			}
		}
		for name, templates := range n.Headers {
			for _, t := range templates {
				if err := resolveTemplate(t, rs, sigs, scope); err != nil {
					return fmt.Errorf("header %q: %w", name, err)
				}
			}
		}
		return nil
	case *types.ErrorOutcome:
		return resolveTemplate(n.Message, rs, sigs, scope)
	default:
		return fmt.Errorf("%w: unsupported rule node %T", types.ErrInvalidRuleSet, node)
	}
}

func resolveProperty(p types.Property, rs *types.RuleSet, sigs Signatures, scope map[string]types.Type) error {
	switch p.Kind {
	case types.PropertyString:
		return resolveTemplate(p.Str, rs, sigs, scope)
	case types.PropertyList:
		for _, item := range p.List {
			if err := resolveProperty(item, rs, sigs, scope); err != nil {
				return err
			}
		}
	case types.PropertyMap:
		for _, k := range sortedScopeKeys(p.Map) {
			if err := resolveProperty(p.Map[k], rs, sigs, scope); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveTemplate(t types.Template, rs *types.RuleSet, sigs Signatures, scope map[string]types.Type) error {
	for _, e := range t.Expressions() {
		if _, err := resolveExpr(e, rs, sigs, scope); err != nil {
			return err
		}
	}
	return nil
}

// resolveExpr computes and stamps the static type of one expression.
func resolveExpr(e types.Expr, rs *types.RuleSet, sigs Signatures, scope map[string]types.Type) (types.Type, error) {
	switch n := e.(type) {
	case *types.Literal:
		switch n.Value.(type) {
		case string:
			n.Typ = types.Type{Kind: types.KindString}
		case bool:
			n.Typ = types.Type{Kind: types.KindBool}
		case []string:
			n.Typ = types.Type{Kind: types.KindStringArray}
		default:
			n.Typ = types.Type{}
		}
		return n.Typ, nil
	case *types.Reference:
		if t, ok := scope[n.Name]; ok {
			n.Typ = t
			return t, nil
		}
		p, ok := rs.Parameter(n.Name)
		if !ok {
			return types.Type{}, fmt.Errorf("%w: %q", types.ErrUndeclaredParameter, n.Name)
		}
		n.Typ = p.Type()
		return n.Typ, nil
	case *types.IsSet:
		if _, err := resolveExpr(n.Target, rs, sigs, scope); err != nil {
			return types.Type{}, err
		}
		n.Typ = types.Type{Kind: types.KindBool}
		return n.Typ, nil
	case *types.Not:
		if _, err := resolveExpr(n.Inner, rs, sigs, scope); err != nil {
			return types.Type{}, err
		}
		n.Typ = types.Type{Kind: types.KindBool}
		return n.Typ, nil
	case *types.BooleanEquals:
		if err := resolveOperands(n.Left, n.Right, rs, sigs, scope); err != nil {
			return types.Type{}, err
		}
		n.Typ = types.Type{Kind: types.KindBool}
		return n.Typ, nil
	case *types.StringEquals:
		if err := resolveOperands(n.Left, n.Right, rs, sigs, scope); err != nil {
			return types.Type{}, err
		}
		n.Typ = types.Type{Kind: types.KindBool}
		return n.Typ, nil
	case *types.GetAttribute:
		if len(n.Path) > types.MaxPathDepth {
			return types.Type{}, fmt.Errorf("%w: %d segments", types.ErrPathTooDeep, len(n.Path))
		}
		t, err := resolveExpr(n.Target, rs, sigs, scope)
		if err != nil {
			return types.Type{}, err
		}
		for _, seg := range n.Path {
			t = segmentType(t, seg, sigs)
		}
		n.Typ = t
		return t, nil
	case *types.LibraryCall:
		var argTypes []types.Type
		for _, arg := range n.Args {
			t, err := resolveExpr(arg, rs, sigs, scope)
			if err != nil {
				return types.Type{}, err
			}
			argTypes = append(argTypes, t)
		}
		if n.ID == types.CoalesceID {
			n.Typ = coalesceType(argTypes)
			return n.Typ, nil
		}
		if t, ok := sigs.ResultOf(n.ID); ok {
			n.Typ = t
		}
		// Unknown id: zero type, handled at generation time.
		return n.Typ, nil
	default:
		return types.Type{}, fmt.Errorf("%w: unsupported expression node %T", types.ErrInvalidRuleSet, e)
	}
}

func resolveOperands(left, right types.Expr, rs *types.RuleSet, sigs Signatures, scope map[string]types.Type) error {
	lt, err := resolveExpr(left, rs, sigs, scope)
	if err != nil {
		return err
	}
	rt, err := resolveExpr(right, rs, sigs, scope)
	if err != nil {
		return err
	}
	if lt.Kind != types.KindUnknown && rt.Kind != types.KindUnknown && lt.Kind != rt.Kind {
		return fmt.Errorf("%w: cannot compare %s with %s", types.ErrTypeMismatch, lt.Kind, rt.Kind)
	}
	return nil
}

// segmentType advances the static type across one path segment.
func segmentType(t types.Type, seg types.PathSegment, sigs Signatures) types.Type {
	base := t.NonOptional()
	if seg.IsIndex {
		if base.Kind == types.KindStringArray {
			return types.Type{Kind: types.KindString, Optional: true}
		}
		return types.Type{Optional: true}
	}
	if base.Kind == types.KindObject {
		if at, ok := sigs.AttributeOf(base.Object, seg.Key); ok {
			at.Optional = at.Optional || t.Optional
			return at
		}
	}
	return types.Type{}
}

// coalesceType folds argument types the way the generated fold behaves:
// the chain stays optional until the first non-optional argument.
func coalesceType(args []types.Type) types.Type {
	if len(args) == 0 {
		return types.Type{Optional: true}
	}
	out := args[0]
	for _, t := range args[1:] {
		if !out.Optional {
			break
		}
		if !t.Optional {
			out = t
		}
	}
	return out
}

func copyScope(scope map[string]types.Type) map[string]types.Type {
	next := make(map[string]types.Type, len(scope))
	for k, v := range scope {
		next[k] = v
	}
	return next
}

func sortedScopeKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
