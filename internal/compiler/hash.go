// internal/compiler/hash.go
package compiler

import (
	"fmt"
	"hash/fnv"
	"io"
	"sort"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Structural hashing and sharing analysis.
 *
 * Decision structures compacted into a directed-acyclic form reference the
 * same subtree from several predecessors. The driver detects sharing by
 * canonical structural hash, so both pointer-shared and merely identical
 * subtrees compile once and are referenced as a named helper. Map-valued
 * fields hash in sorted key order to keep hashes independent of iteration
 * order.
 *
 * Only subtrees free of outer bindings are liftable: a helper method sees
 * parameters but not condition results bound upstream of the call site.
 */

// hashNode computes a canonical structural hash of a rule subtree.
func hashNode(n types.RuleNode) uint64 {
	h := fnv.New64a()
	writeNode(h, n)
	return h.Sum64()
}

func writeNode(w io.Writer, n types.RuleNode) {
	switch node := n.(type) {
	case *types.Branch:
		fmt.Fprint(w, "branch(")
		for _, c := range node.Conditions {
			fmt.Fprintf(w, "cond(bind=%s,", c.Bind)
			writeExpr(w, c.Fn)
			fmt.Fprint(w, ")")
		}
		fmt.Fprint(w, "|")
		writeNode(w, node.OnTrue)
		fmt.Fprint(w, "|")
		writeNode(w, node.OnFalse)
		fmt.Fprint(w, ")")
	case *types.EndpointOutcome:
		fmt.Fprint(w, "endpoint(")
		writeTemplate(w, node.URL)
		for _, k := range sortedKeys(node.Properties) {
			fmt.Fprintf(w, "prop(%s,", k)
			writeProperty(w, node.Properties[k])
			fmt.Fprint(w, ")")
		}
		headerNames := make([]string, 0, len(node.Headers))
		for name := range node.Headers {
			headerNames = append(headerNames, name)
		}
		sort.Strings(headerNames)
		for _, name := range headerNames {
			fmt.Fprintf(w, "header(%s", name)
			for _, t := range node.Headers[name] {
				fmt.Fprint(w, ",")
				writeTemplate(w, t)
			}
			fmt.Fprint(w, ")")
		}
		fmt.Fprint(w, ")")
	case *types.ErrorOutcome:
		fmt.Fprint(w, "error(")
		writeTemplate(w, node.Message)
		fmt.Fprint(w, ")")
	}
}

func writeExpr(w io.Writer, e types.Expr) {
	switch n := e.(type) {
	case *types.Literal:
		fmt.Fprintf(w, "lit(%v)", n.Value)
	case *types.Reference:
		fmt.Fprintf(w, "ref(%s)", n.Name)
	case *types.GetAttribute:
		fmt.Fprint(w, "getattr(")
		writeExpr(w, n.Target)
		for _, seg := range n.Path {
			if seg.IsIndex {
				fmt.Fprintf(w, "[%d]", seg.Index)
			} else {
				fmt.Fprintf(w, ".%s", seg.Key)
			}
		}
		fmt.Fprint(w, ")")
	case *types.IsSet:
		fmt.Fprint(w, "isset(")
		writeExpr(w, n.Target)
		fmt.Fprint(w, ")")
	case *types.Not:
		fmt.Fprint(w, "not(")
		writeExpr(w, n.Inner)
		fmt.Fprint(w, ")")
	case *types.BooleanEquals:
		fmt.Fprint(w, "beq(")
		writeExpr(w, n.Left)
		fmt.Fprint(w, ",")
		writeExpr(w, n.Right)
		fmt.Fprint(w, ")")
	case *types.StringEquals:
		fmt.Fprint(w, "seq(")
		writeExpr(w, n.Left)
		fmt.Fprint(w, ",")
		writeExpr(w, n.Right)
		fmt.Fprint(w, ")")
	case *types.LibraryCall:
		fmt.Fprintf(w, "call(%s", n.ID)
		for _, arg := range n.Args {
			fmt.Fprint(w, ",")
			writeExpr(w, arg)
		}
		fmt.Fprint(w, ")")
	}
}

func writeTemplate(w io.Writer, t types.Template) {
	fmt.Fprint(w, "tmpl(")
	for _, p := range t.Parts {
		if p.IsExpr {
			writeExpr(w, p.Expr)
		} else {
			fmt.Fprintf(w, "%q", p.Static)
		}
	}
	fmt.Fprint(w, ")")
}

func writeProperty(w io.Writer, p types.Property) {
	switch p.Kind {
	case types.PropertyString:
		writeTemplate(w, p.Str)
	case types.PropertyBool:
		fmt.Fprintf(w, "%t", p.Bool)
	case types.PropertyList:
		fmt.Fprint(w, "list(")
		for _, item := range p.List {
			writeProperty(w, item)
		}
		fmt.Fprint(w, ")")
	case types.PropertyMap:
		fmt.Fprint(w, "map(")
		for _, k := range sortedKeys(p.Map) {
			fmt.Fprintf(w, "%s=", k)
			writeProperty(w, p.Map[k])
		}
		fmt.Fprint(w, ")")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// countNodes tallies structural-hash occurrences of every branch node in
// the tree. A count above one marks a shared DAG node.
func countNodes(n types.RuleNode, counts map[uint64]int) {
	branch, ok := n.(*types.Branch)
	if !ok {
		return
	}
	counts[hashNode(branch)]++
	countNodes(branch.OnTrue, counts)
	countNodes(branch.OnFalse, counts)
}

// hasFreeBindings reports whether the subtree references names that are
// neither parameters nor bound within the subtree itself. Such subtrees
// depend on their call site and cannot be lifted into a shared helper.
func hasFreeBindings(n types.RuleNode, params map[string]types.Parameter, bound map[string]struct{}) bool {
	switch node := n.(type) {
	case *types.Branch:
		scoped := bound
		for _, c := range node.Conditions {
			if exprHasFreeRefs(c.Fn, params, scoped) {
				return true
			}
			if c.Bind != "" {
				next := make(map[string]struct{}, len(scoped)+1)
				for k := range scoped {
					next[k] = struct{}{}
				}
				next[c.Bind] = struct{}{}
				scoped = next
			}
		}
		return hasFreeBindings(node.OnTrue, params, scoped) ||
			hasFreeBindings(node.OnFalse, params, bound)
	case *types.EndpointOutcome:
		for _, e := range node.URL.Expressions() {
			if exprHasFreeRefs(e, params, bound) {
				return true
			}
		}
		for _, k := range sortedKeys(node.Properties) {
			if propertyHasFreeRefs(node.Properties[k], params, bound) {
				return true
			}
		}
		for _, templates := range node.Headers {
			for _, t := range templates {
				for _, e := range t.Expressions() {
					if exprHasFreeRefs(e, params, bound) {
						return true
					}
				}
			}
		}
		return false
	case *types.ErrorOutcome:
		for _, e := range node.Message.Expressions() {
			if exprHasFreeRefs(e, params, bound) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func propertyHasFreeRefs(p types.Property, params map[string]types.Parameter, bound map[string]struct{}) bool {
	switch p.Kind {
	case types.PropertyString:
		for _, e := range p.Str.Expressions() {
			if exprHasFreeRefs(e, params, bound) {
				return true
			}
		}
	case types.PropertyList:
		for _, item := range p.List {
			if propertyHasFreeRefs(item, params, bound) {
				return true
			}
		}
	case types.PropertyMap:
		for _, k := range sortedKeys(p.Map) {
			if propertyHasFreeRefs(p.Map[k], params, bound) {
				return true
			}
		}
	}
	return false
}

func exprHasFreeRefs(e types.Expr, params map[string]types.Parameter, bound map[string]struct{}) bool {
	switch n := e.(type) {
	case *types.Reference:
		if _, ok := bound[n.Name]; ok {
			return false
		}
		_, ok := params[n.Name]
		return !ok
	case *types.GetAttribute:
		return exprHasFreeRefs(n.Target, params, bound)
	case *types.IsSet:
		return exprHasFreeRefs(n.Target, params, bound)
	case *types.Not:
		return exprHasFreeRefs(n.Inner, params, bound)
	case *types.BooleanEquals:
		return exprHasFreeRefs(n.Left, params, bound) || exprHasFreeRefs(n.Right, params, bound)
	case *types.StringEquals:
		return exprHasFreeRefs(n.Left, params, bound) || exprHasFreeRefs(n.Right, params, bound)
	case *types.LibraryCall:
		for _, arg := range n.Args {
			if exprHasFreeRefs(arg, params, bound) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
