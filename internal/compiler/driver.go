// internal/compiler/driver.go

// Package compiler turns a resolved endpoint rule set into Rust source
// implementing the same decision logic at runtime, with no interpreter.
//
// Compilation is a single-threaded, deterministic, purely functional tree
// transformation: identical rule set, parameter model, and registry always
// produce identical source. The compiler performs no I/O and keeps no state
// across invocations; hosts may compile multiple rule sets in parallel as
// long as each call gets its own Generator (Compile arranges this).
package compiler

import (
	"fmt"
	"strings"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Rule/outcome driver.
 *
 * State machine over the rule tree: a branch nests one if per condition
 * (left-to-right, full short-circuit), descends into OnTrue inside the
 * innermost if, and falls through to OnFalse after it. Every outcome
 * returns, so fall-through is exactly the first-false edge. Endpoint
 * outcomes build the endpoint value; error outcomes return a message.
 *
 * Shared DAG nodes (same structural hash, more than one predecessor, no
 * free bindings) are emitted once as a named helper method and called from
 * each predecessor, keeping generated code proportional to the DAG rather
 * than the expanded tree. Helper bodies compile with a fresh context:
 * narrowing never crosses the sharing boundary.
 */

// Options configures source generation.
type Options struct {
	// ResolverName is the generated resolver struct name.
	// Defaults to "EndpointResolver".
	ResolverName string

	// RuntimeCrate is the path of the runtime support crate the generated
	// code links against. Defaults to "crate::endpoint_lib".
	RuntimeCrate string
}

func (o Options) withDefaults() Options {
	if o.ResolverName == "" {
		o.ResolverName = "EndpointResolver"
	}
	if o.RuntimeCrate == "" {
		o.RuntimeCrate = "crate::endpoint_lib"
	}
	return o
}

// Output is a completed generation result.
type Output struct {
	// Source is the generated Rust source.
	Source string

	// SharedBlocks counts the DAG nodes emitted as shared helpers.
	SharedBlocks int
}

// Generator holds the per-compilation state of one rule-set compilation.
// Construct via Compile; a Generator is never shared across compilations.
type Generator struct {
	registry *Registry
	opts     Options
	params   map[string]types.Parameter

	usedFns      map[string]Descriptor
	usesDocument bool

	liftable   map[uint64]struct{}
	blockNames map[uint64]string
	blockNodes map[uint64]types.RuleNode
	blockOrder []uint64
}

// Compile generates resolver source for a resolved rule set. Fatal
// diagnostics (unknown function, undeclared parameter) abort with no
// partial output.
func Compile(rs *types.RuleSet, reg *Registry, opts Options) (*Output, error) {
	if rs.Root == nil {
		return nil, fmt.Errorf("%w: empty rule tree", types.ErrInvalidRuleSet)
	}
	g := &Generator{
		registry:   reg,
		opts:       opts.withDefaults(),
		params:     map[string]types.Parameter{},
		usedFns:    map[string]Descriptor{},
		liftable:   map[uint64]struct{}{},
		blockNames: map[uint64]string{},
		blockNodes: map[uint64]types.RuleNode{},
	}
	for _, p := range rs.Parameters {
		g.params[p.Name] = p
	}
	g.markShared(rs.Root)

	ctx := NewContext(rs.Parameters)

	body := &writer{indent: 2}
	if err := g.emitNode(body, rs.Root, ctx.Fork(), false); err != nil {
		return nil, err
	}

	// Helper bodies; the queue may grow while compiling earlier helpers.
	helperBodies := map[uint64]string{}
	for i := 0; i < len(g.blockOrder); i++ {
		h := g.blockOrder[i]
		bw := &writer{indent: 2}
		if err := g.emitNode(bw, g.blockNodes[h], ctx.Fork(), false); err != nil {
			return nil, err
		}
		helperBodies[h] = bw.String()
	}

	return &Output{
		Source:       g.assemble(rs, body.String(), helperBodies),
		SharedBlocks: len(g.blockOrder),
	}, nil
}

// markShared records the structural hashes eligible for helper extraction.
func (g *Generator) markShared(root types.RuleNode) {
	counts := map[uint64]int{}
	countNodes(root, counts)
	nodes := map[uint64]types.RuleNode{}
	collectBranches(root, nodes)
	for h, count := range counts {
		if count < 2 {
			continue
		}
		if hasFreeBindings(nodes[h], g.params, map[string]struct{}{}) {
			continue
		}
		g.liftable[h] = struct{}{}
	}
}

func collectBranches(n types.RuleNode, nodes map[uint64]types.RuleNode) {
	branch, ok := n.(*types.Branch)
	if !ok {
		return
	}
	h := hashNode(branch)
	if _, seen := nodes[h]; !seen {
		nodes[h] = branch
	}
	collectBranches(branch.OnTrue, nodes)
	collectBranches(branch.OnFalse, nodes)
}

// blockName assigns (once) and returns the helper name for a shared node.
func (g *Generator) blockName(h uint64, node types.RuleNode) string {
	if name, ok := g.blockNames[h]; ok {
		return name
	}
	name := fmt.Sprintf("resolve_shared_%d", len(g.blockOrder))
	g.blockNames[h] = name
	g.blockNodes[h] = node
	g.blockOrder = append(g.blockOrder, h)
	return name
}

// emitNode writes the decision logic for one rule node. allowLift is false
// only for the node that is itself the root of the body being emitted, so
// a helper does not degenerate into a self-call.
func (g *Generator) emitNode(w *writer, node types.RuleNode, ctx Context, allowLift bool) error {
	switch n := node.(type) {
	case *types.Branch:
		if allowLift {
			if h := hashNode(n); g.isLiftable(h) {
				w.emitLinef("return self.%s(params);", g.blockName(h, n))
				return nil
			}
		}
		return g.emitBranch(w, n, ctx)
	case *types.EndpointOutcome:
		return g.emitEndpoint(w, n, ctx)
	case *types.ErrorOutcome:
		frag, _, err := g.compileTemplate(n.Message, Owned, ctx)
		if err != nil {
			return err
		}
		w.emitLinef("return Err(ResolveEndpointError::message(%s));", frag.Code)
		return nil
	default:
		return fmt.Errorf("%w: unsupported rule node %T", types.ErrInvalidRuleSet, node)
	}
}

func (g *Generator) isLiftable(h uint64) bool {
	_, ok := g.liftable[h]
	return ok
}

func (g *Generator) emitBranch(w *writer, n *types.Branch, ctx Context) error {
	branchCtx := ctx.Fork()
	depth := 0
	for _, cond := range n.Conditions {
		pre, header, next, err := g.compileCondition(cond, branchCtx)
		if err != nil {
			return err
		}
		branchCtx = next
		if pre != "" {
			w.emitLine(pre)
		}
		w.emitLine(header)
		w.incIndent()
		depth++
	}
	if err := g.emitNode(w, n.OnTrue, branchCtx, true); err != nil {
		return err
	}
	for i := 0; i < depth; i++ {
		w.decIndent()
		w.emitLine("}")
	}
	// Sibling isolation: OnFalse never sees narrowing learned above.
	return g.emitNode(w, n.OnFalse, ctx.Fork(), true)
}

// compileCondition compiles one condition into an if-opener (plus an
// optional preceding let for bound boolean results). Optional-typed
// conditions pass when present; a binding makes the unwrapped value a named
// slot for the rest of the path.
func (g *Generator) compileCondition(cond types.Condition, ctx Context) (pre, header string, _ Context, err error) {
	frag, ctx, err := g.compileExpr(cond.Fn, Borrowed, ctx)
	if err != nil {
		return "", "", ctx, err
	}
	if frag.Type.Optional {
		if cond.Bind != "" {
			header = fmt.Sprintf("if let Some(%s) = %s {", rustName(cond.Bind), frag.Code)
			ctx = ctx.WithBinding(cond.Bind, frag.Type.NonOptional())
		} else {
			header = fmt.Sprintf("if %s.is_some() {", frag.Code)
		}
		return "", header, ctx, nil
	}
	if frag.Type.Kind != types.KindBool && !frag.Type.IsUnknown() {
		return "", "", ctx, fmt.Errorf("%w: condition yields %s", types.ErrTypeMismatch, frag.Type.Kind)
	}
	if cond.Bind != "" {
		name := rustName(cond.Bind)
		pre = fmt.Sprintf("let %s = %s;", name, frag.Code)
		header = fmt.Sprintf("if %s {", name)
		ctx = ctx.WithBinding(cond.Bind, types.Type{Kind: types.KindBool})
		return pre, header, ctx, nil
	}
	return "", fmt.Sprintf("if %s {", frag.Code), ctx, nil
}

func (g *Generator) emitEndpoint(w *writer, n *types.EndpointOutcome, ctx Context) error {
	url, ctx, err := g.compileTemplate(n.URL, Owned, ctx)
	if err != nil {
		return err
	}
	w.emitLine("return Ok(Endpoint::builder()")
	w.incIndent()
	w.emitLinef(".url(%s)", url.Code)
	for _, k := range sortedKeys(n.Properties) {
		doc, next, err := g.compileProperty(n.Properties[k], ctx)
		if err != nil {
			return err
		}
		ctx = next
		w.emitLinef(".property(%s, %s)", rustString(k), doc)
	}
	for _, name := range sortedKeys(n.Headers) {
		for _, t := range n.Headers[name] {
			frag, next, err := g.compileTemplate(t, Owned, ctx)
			if err != nil {
				return err
			}
			ctx = next
			w.emitLinef(".header(%s, %s)", rustString(name), frag.Code)
		}
	}
	w.emitLine(".build());")
	w.decIndent()
	return nil
}

// compileProperty renders one endpoint property as a runtime Document
// value.
func (g *Generator) compileProperty(p types.Property, ctx Context) (string, Context, error) {
	g.usesDocument = true
	switch p.Kind {
	case types.PropertyBool:
		return fmt.Sprintf("Document::Bool(%t)", p.Bool), ctx, nil
	case types.PropertyString:
		frag, ctx, err := g.compileTemplate(p.Str, Owned, ctx)
		if err != nil {
			return "", ctx, err
		}
		return "Document::String(" + frag.Code + ")", ctx, nil
	case types.PropertyList:
		items := make([]string, 0, len(p.List))
		for _, item := range p.List {
			code, next, err := g.compileProperty(item, ctx)
			if err != nil {
				return "", ctx, err
			}
			ctx = next
			items = append(items, code)
		}
		return "Document::Array(vec![" + strings.Join(items, ", ") + "])", ctx, nil
	case types.PropertyMap:
		var b strings.Builder
		b.WriteString("Document::Object({ let mut m = std::collections::HashMap::new();")
		for _, k := range sortedKeys(p.Map) {
			code, next, err := g.compileProperty(p.Map[k], ctx)
			if err != nil {
				return "", ctx, err
			}
			ctx = next
			b.WriteString(" m.insert(" + rustString(k) + ".to_string(), " + code + ");")
		}
		b.WriteString(" m })")
		return b.String(), ctx, nil
	default:
		return "", ctx, fmt.Errorf("%w: unsupported property kind %d", types.ErrInvalidRuleSet, p.Kind)
	}
}

// assemble stitches the generated pieces into the final source file.
func (g *Generator) assemble(rs *types.RuleSet, body string, helperBodies map[uint64]string) string {
	w := &writer{}
	w.emitLine("// Code generated by ruleforge. DO NOT EDIT.")
	if rs.ServiceID != "" {
		w.emitLinef("// Endpoint resolution for %s.", rs.ServiceID)
	}
	w.emitLine("")
	w.emitLinef("use %s::endpoint::{Endpoint, ResolveEndpointError};", g.opts.RuntimeCrate)
	if g.usesDocument {
		w.emitLinef("use %s::document::Document;", g.opts.RuntimeCrate)
	}
	w.emitLine("")

	w.emitLine("/// Input parameters for endpoint resolution.")
	w.emitLine("#[derive(Clone, Debug, PartialEq)]")
	w.emitLine("pub struct Params {")
	w.incIndent()
	for _, p := range rs.Parameters {
		if p.Documentation != "" {
			w.emitLinef("/// %s", p.Documentation)
		}
		w.emitLinef("pub %s: %s,", rustName(p.Name), paramRustType(p))
	}
	w.decIndent()
	w.emitLine("}")
	w.emitLine("")

	stateful := g.usedStateful()
	if len(stateful) == 0 {
		w.emitLine("#[derive(Debug, Default)]")
		w.emitLinef("pub struct %s;", g.opts.ResolverName)
	} else {
		w.emitLine("#[derive(Debug)]")
		w.emitLinef("pub struct %s {", g.opts.ResolverName)
		w.incIndent()
		for _, d := range stateful {
			w.emitLinef("%s: %s,", d.StateField, d.StateType)
		}
		w.decIndent()
		w.emitLine("}")
	}
	w.emitLine("")

	w.emitLinef("impl %s {", g.opts.ResolverName)
	w.incIndent()
	w.emitLine("pub fn new() -> Self {")
	w.incIndent()
	if len(stateful) == 0 {
		w.emitLine("Self")
	} else {
		w.emitLine("Self {")
		w.incIndent()
		for _, d := range stateful {
			w.emitLinef("%s: %s,", d.StateField, d.StateInit)
		}
		w.decIndent()
		w.emitLine("}")
	}
	w.decIndent()
	w.emitLine("}")
	w.emitLine("")
	w.emitLine("pub fn resolve_endpoint(&self, params: &Params) -> Result<Endpoint, ResolveEndpointError> {")
	w.raw(body)
	w.emitLine("}")
	for _, h := range g.blockOrder {
		w.emitLine("")
		w.emitLinef("fn %s(&self, params: &Params) -> Result<Endpoint, ResolveEndpointError> {", g.blockNames[h])
		w.raw(helperBodies[h])
		w.emitLine("}")
	}
	w.decIndent()
	w.emitLine("}")
	return w.String()
}

// paramRustType maps a parameter to its generated field type. Parameters
// with defaults are materialized non-optional; the host applies defaults
// before resolution.
func paramRustType(p types.Parameter) string {
	var base string
	switch p.Kind {
	case types.KindString:
		base = "String"
	case types.KindBool:
		base = "bool"
	case types.KindStringArray:
		base = "Vec<String>"
	default:
		base = "String"
	}
	if p.Optional() {
		return "Option<" + base + ">"
	}
	return base
}
