// internal/compiler/expr.go
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Expression compiler.
 *
 * Recursive descent over the sealed expression union, producing a Rust
 * expression fragment per node. Two properties are threaded through every
 * call: the ownership mode of the produced value, and the narrowing state
 * of optional references on the current path.
 *
 * Owned mode is realized uniformly as borrowed compilation followed by
 * Fragment.IntoOwned, so the two modes always agree on runtime semantics
 * and differ only in ownership strategy.
 *
 * Optional values that have not been proven present compile to guarded
 * forms built from Option combinators: the enclosing boolean collapses to
 * false on absence, never to a panic. Once IsSet has proven a reference
 * present, later reads on the same path emit a single unconditional unwrap
 * with no repeated presence branching.
 *
 * Narrowing surfaces only from a presence test standing as the whole
 * expression. Composite nodes (Not, equality, coalesce, attribute access,
 * library calls) discard narrowing learned inside their operands: a
 * presence test under not(...) holds on the path where the reference is
 * absent, so letting it escape would unwrap the very value the branch
 * proved missing.
 *
 * Equality operands compare by reference. The comparison result does not
 * retain its operands, so borrowed operands introduce no lifetime
 * entanglement; literals stay unallocated on either side.
 */

// compileExpr compiles an expression in the requested ownership mode,
// returning the fragment and the (possibly narrowed) context.
func (g *Generator) compileExpr(e types.Expr, mode Mode, ctx Context) (Fragment, Context, error) {
	frag, ctx, err := g.compileBorrowed(e, ctx)
	if err != nil {
		return Fragment{}, ctx, err
	}
	if mode == Owned {
		frag = frag.IntoOwned()
	}
	return frag, ctx, nil
}

// compileBorrowed compiles an expression in Borrowed mode. The exhaustive
// type switch covers every member of the sealed union.
func (g *Generator) compileBorrowed(e types.Expr, ctx Context) (Fragment, Context, error) {
	switch n := e.(type) {
	case *types.Literal:
		return g.compileLiteral(n), ctx, nil
	case *types.Reference:
		return g.compileReference(n, ctx)
	case *types.GetAttribute:
		return g.compileGetAttribute(n, ctx)
	case *types.IsSet:
		return g.compileIsSet(n, ctx)
	case *types.Not:
		return g.compileNot(n, ctx)
	case *types.BooleanEquals:
		return g.compileEquals(n.Left, n.Right, ctx)
	case *types.StringEquals:
		return g.compileEquals(n.Left, n.Right, ctx)
	case *types.LibraryCall:
		if n.ID == types.CoalesceID {
			return g.compileCoalesce(n, ctx)
		}
		return g.compileLibraryCall(n, ctx)
	default:
		return Fragment{}, ctx, fmt.Errorf("%w: unsupported expression node %T", types.ErrInvalidRuleSet, e)
	}
}

func (g *Generator) compileLiteral(n *types.Literal) Fragment {
	switch v := n.Value.(type) {
	case string:
		return Fragment{Code: rustString(v), Type: types.Type{Kind: types.KindString}}
	case bool:
		return Fragment{Code: fmt.Sprintf("%t", v), Type: types.Type{Kind: types.KindBool}, Owned: true}
	case []string:
		quoted := make([]string, len(v))
		for i, s := range v {
			quoted[i] = rustString(s)
		}
		return Fragment{
			Code: "&[" + strings.Join(quoted, ", ") + "]",
			Type: types.Type{Kind: types.KindStringArray},
		}
	default:
		// Untyped literal: unknown type selects the owned-copy fallback.
		return Fragment{Code: fmt.Sprintf("%v", v), Type: types.Type{}}
	}
}

// compileReference reads a binding or a parameter. Bindings shadow
// parameters. Optional parameters proven present unwrap unconditionally;
// unproven ones surface as Option-typed accesses for the consuming node to
// guard.
func (g *Generator) compileReference(n *types.Reference, ctx Context) (Fragment, Context, error) {
	if t, ok := ctx.Binding(n.Name); ok {
		return Fragment{Code: rustName(n.Name), Type: t, Owned: t.Kind == types.KindBool}, ctx, nil
	}
	p, ok := ctx.Param(n.Name)
	if !ok {
		return Fragment{}, ctx, fmt.Errorf("%w: %q", types.ErrUndeclaredParameter, n.Name)
	}
	return paramFragment(p, ctx.Known(n.Name)), ctx, nil
}

// paramFragment emits the field access for one parameter, by kind and
// presence knowledge.
func paramFragment(p types.Parameter, known bool) Fragment {
	field := "params." + rustName(p.Name)
	optional := p.Optional()
	switch p.Kind {
	case types.KindString:
		switch {
		case !optional:
			return Fragment{Code: field + ".as_str()", Type: types.Type{Kind: types.KindString}}
		case known:
			return Fragment{Code: field + ".as_deref().unwrap()", Type: types.Type{Kind: types.KindString}}
		default:
			return Fragment{Code: field + ".as_deref()", Type: types.Type{Kind: types.KindString, Optional: true}}
		}
	case types.KindBool:
		// bool is Copy: owned either way, no clone.
		switch {
		case !optional:
			return Fragment{Code: field, Type: types.Type{Kind: types.KindBool}, Owned: true}
		case known:
			return Fragment{Code: field + ".unwrap()", Type: types.Type{Kind: types.KindBool}, Owned: true}
		default:
			return Fragment{Code: field, Type: types.Type{Kind: types.KindBool, Optional: true}, Owned: true}
		}
	case types.KindStringArray:
		switch {
		case !optional:
			return Fragment{Code: field + ".as_slice()", Type: types.Type{Kind: types.KindStringArray}}
		case known:
			return Fragment{Code: field + ".as_deref().unwrap()", Type: types.Type{Kind: types.KindStringArray}}
		default:
			return Fragment{Code: field + ".as_deref()", Type: types.Type{Kind: types.KindStringArray, Optional: true}}
		}
	default:
		// Parameter kind unresolved; fall back to the owned-copy strategy
		// at the consumer via the unknown type.
		return Fragment{Code: field, Type: types.Type{}}
	}
}

// compileIsSet emits a presence test. For a bare optional reference the
// test also narrows the reference for the remainder of the branch; a
// reference already proven present compiles to a constant, never to a
// second presence check.
func (g *Generator) compileIsSet(n *types.IsSet, ctx Context) (Fragment, Context, error) {
	boolFrag := func(code string) Fragment {
		return Fragment{Code: code, Type: types.Type{Kind: types.KindBool}, Owned: true}
	}
	if ref, ok := n.Target.(*types.Reference); ok {
		if _, bound := ctx.Binding(ref.Name); bound {
			// Bindings are unwrapped by construction.
			return boolFrag("true"), ctx, nil
		}
		p, ok := ctx.Param(ref.Name)
		if !ok {
			return Fragment{}, ctx, fmt.Errorf("%w: %q", types.ErrUndeclaredParameter, ref.Name)
		}
		if !p.Optional() || ctx.Known(ref.Name) {
			return boolFrag("true"), ctx, nil
		}
		code := "params." + rustName(p.Name) + ".is_some()"
		return boolFrag(code), ctx.WithKnown(ref.Name), nil
	}
	target, _, err := g.compileBorrowed(n.Target, ctx)
	if err != nil {
		return Fragment{}, ctx, err
	}
	if !target.Type.Optional {
		return boolFrag("true"), ctx, nil
	}
	return boolFrag(target.Code + ".is_some()"), ctx, nil
}

// compileNot discards narrowing learned inside the negated operand: on the
// path where the negation holds, the inner presence test failed.
func (g *Generator) compileNot(n *types.Not, ctx Context) (Fragment, Context, error) {
	inner, _, err := g.compileBorrowed(n.Inner, ctx)
	if err != nil {
		return Fragment{}, ctx, err
	}
	boolT := types.Type{Kind: types.KindBool}
	if inner.Type.Optional {
		// Absent negated input means the whole test does not apply.
		return Fragment{Code: inner.Code + ".map(|v| !v).unwrap_or(false)", Type: boolT, Owned: true}, ctx, nil
	}
	return Fragment{Code: "!(" + inner.Code + ")", Type: boolT, Owned: true}, ctx, nil
}

// compileEquals emits a comparison. Unproven optional operands are wrapped
// so that present-and-equal and absent stay distinguishable, and the
// comparison collapses to false when an optional side is absent.
func (g *Generator) compileEquals(left, right types.Expr, ctx Context) (Fragment, Context, error) {
	l, _, err := g.compileBorrowed(left, ctx)
	if err != nil {
		return Fragment{}, ctx, err
	}
	r, _, err := g.compileBorrowed(right, ctx)
	if err != nil {
		return Fragment{}, ctx, err
	}
	boolT := types.Type{Kind: types.KindBool}
	var code string
	switch {
	case l.Type.Optional && r.Type.Optional:
		// Both sides must be simultaneously present for equality to hold.
		code = fmt.Sprintf("matches!((%s, %s), (Some(l), Some(r)) if l == r)", l.Code, r.Code)
	case l.Type.Optional:
		code = fmt.Sprintf("%s == Some(%s)", l.Code, r.Code)
	case r.Type.Optional:
		code = fmt.Sprintf("%s == Some(%s)", r.Code, l.Code)
	default:
		code = fmt.Sprintf("%s == %s", l.Code, r.Code)
	}
	return Fragment{Code: code, Type: boolT, Owned: true}, ctx, nil
}

// compileGetAttribute navigates into a structured value. The target
// compiles borrowed; a target proven present unwraps once up front, an
// unproven optional target lifts the remaining chain into Option
// combinators. Ownership conversion happens only after the final segment
// (the caller's IntoOwned), never per segment.
func (g *Generator) compileGetAttribute(n *types.GetAttribute, ctx Context) (Fragment, Context, error) {
	if len(n.Path) > types.MaxPathDepth {
		return Fragment{}, ctx, fmt.Errorf("%w: %d segments", types.ErrPathTooDeep, len(n.Path))
	}
	target, _, err := g.compileBorrowed(n.Target, ctx)
	if err != nil {
		return Fragment{}, ctx, err
	}
	code, t := g.applySegments(target.Code, target.Type, n.Path)
	return Fragment{Code: code, Type: t}, ctx, nil
}

// applySegments appends one accessor per path segment. Index zero uses the
// idiomatic first-element accessor; other indices use the generic indexed
// accessor. An optional intermediate lifts the rest of the chain.
func (g *Generator) applySegments(code string, t types.Type, segs []types.PathSegment) (string, types.Type) {
	if len(segs) == 0 {
		return code, t
	}
	if t.Optional {
		inner, innerT := g.applySegments("v", t.NonOptional(), segs)
		combinator := ".map"
		if innerT.Optional {
			combinator = ".and_then"
		}
		innerT.Optional = true
		return code + combinator + "(|v| " + inner + ")", innerT
	}
	seg := segs[0]
	if seg.IsIndex {
		elem := types.Type{Optional: true}
		if t.Kind == types.KindStringArray {
			elem = types.Type{Kind: types.KindString, Optional: true}
		}
		accessor := fmt.Sprintf(".get(%d)", seg.Index)
		if seg.Index == 0 {
			accessor = ".first()"
		}
		return g.applySegments(code+accessor, elem, segs[1:])
	}
	attrT := types.Type{}
	if t.Kind == types.KindObject {
		if at, ok := g.registry.AttributeOf(t.Object, seg.Key); ok {
			attrT = at
		}
	}
	return g.applySegments(code+"."+rustName(seg.Key)+"()", attrT, segs[1:])
}

// compileCoalesce inlines the reserved first-non-null form as a
// left-to-right fold. Zero arguments compile to the absent constant. A
// non-optional argument terminates the fold; later arguments can never be
// reached.
func (g *Generator) compileCoalesce(n *types.LibraryCall, ctx Context) (Fragment, Context, error) {
	if len(n.Args) == 0 {
		return Fragment{Code: "None", Type: types.Type{Optional: true}}, ctx, nil
	}
	acc, _, err := g.compileBorrowed(n.Args[0], ctx)
	if err != nil {
		return Fragment{}, ctx, err
	}
	for _, arg := range n.Args[1:] {
		if !acc.Type.Optional {
			break
		}
		next, _, err := g.compileBorrowed(arg, ctx)
		if err != nil {
			return Fragment{}, ctx, err
		}
		if next.Type.Optional {
			acc = Fragment{Code: acc.Code + ".or(" + next.Code + ")", Type: acc.Type}
		} else {
			t := acc.Type.NonOptional()
			if t.IsUnknown() {
				t = next.Type
			}
			acc = Fragment{Code: acc.Code + ".unwrap_or(" + next.Code + ")", Type: t, Owned: next.Owned}
		}
	}
	return acc, ctx, nil
}

// compileLibraryCall emits a registered function call. An id absent from
// the registry aborts generation; the diagnostic names the id. Optional
// unproven arguments guard the call through Option combinators, making the
// whole call absent when any such argument is.
func (g *Generator) compileLibraryCall(n *types.LibraryCall, ctx Context) (Fragment, Context, error) {
	desc, ok := g.registry.Lookup(n.ID)
	if !ok {
		return Fragment{}, ctx, fmt.Errorf("%w: %q", types.ErrUnknownFunction, n.ID)
	}
	g.recordUse(n.ID, desc)

	frags := make([]Fragment, len(n.Args))
	var optional []int
	for i, arg := range n.Args {
		frag, _, err := g.compileBorrowed(arg, ctx)
		if err != nil {
			return Fragment{}, ctx, err
		}
		frags[i] = frag
		if frag.Type.Optional {
			optional = append(optional, i)
		}
	}

	callArgs := make([]string, 0, len(frags)+1)
	if desc.StateArg != "" {
		callArgs = append(callArgs, desc.StateArg)
	}
	for i, frag := range frags {
		if frag.Type.Optional {
			callArgs = append(callArgs, fmt.Sprintf("v%d", i))
		} else {
			callArgs = append(callArgs, frag.Code)
		}
	}
	code := desc.CallPath + "(" + strings.Join(callArgs, ", ") + ")"

	result := desc.Result
	// Object results borrow from their inputs; scalar results stand alone.
	owned := result.Kind != types.KindObject
	for i := len(optional) - 1; i >= 0; i-- {
		j := optional[i]
		combinator := ".and_then"
		if i == len(optional)-1 && !desc.Result.Optional {
			combinator = ".map"
		}
		code = fmt.Sprintf("%s%s(|v%d| %s)", frags[j].Code, combinator, j, code)
		result.Optional = true
	}
	return Fragment{Code: code, Type: result, Owned: owned}, ctx, nil
}

// recordUse tracks which registered functions the rule set exercises, so
// the driver can emit exactly the auxiliary state they need.
func (g *Generator) recordUse(id string, desc Descriptor) {
	if g.usedFns == nil {
		g.usedFns = map[string]Descriptor{}
	}
	g.usedFns[id] = desc
}

// usedStateful returns the stateful descriptors in use, sorted by id for
// deterministic emission.
func (g *Generator) usedStateful() []Descriptor {
	ids := make([]string, 0, len(g.usedFns))
	for id, d := range g.usedFns {
		if d.Stateful() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]Descriptor, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		d := g.usedFns[id]
		if _, dup := seen[d.StateField]; dup {
			continue
		}
		seen[d.StateField] = struct{}{}
		out = append(out, d)
	}
	return out
}
