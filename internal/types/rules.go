// internal/types/rules.go
package types

/*
 * Rule tree and templates.
 *
 * RuleNode is the sealed decision structure walked by the compiler driver:
 * branches evaluate conditions left-to-right with full short-circuit, then
 * descend into OnTrue or OnFalse; leaves are endpoint or error outcomes.
 * The loader normalizes the document's ordered rule list into this form
 * (rule i's conditions guard its outcome, OnFalse chains to rule i+1).
 *
 * The tree is acyclic by construction of the source format; the compiler
 * assumes this precondition and performs no cycle detection.
 */

// Condition is a single test within a branch. Its expression must yield a
// boolean or an optional value; an optional condition passes when present.
// When Bind is set, the condition's unwrapped value becomes a named slot
// available to everything later on the same path.
type Condition struct {
	Fn   Expr
	Bind string
}

// RuleNode is one node of the decision tree: a branch or a terminal outcome.
type RuleNode interface {
	ruleNode()
}

// Branch evaluates its conditions in order. All true descends into OnTrue;
// the first failing condition aborts the list and descends into OnFalse.
type Branch struct {
	Conditions []Condition
	OnTrue     RuleNode
	OnFalse    RuleNode
}

// EndpointOutcome is a terminal success result: a URL template plus endpoint
// properties and headers, all template-expanded at resolution time.
type EndpointOutcome struct {
	URL        Template
	Properties map[string]Property
	Headers    map[string][]Template
}

// ErrorOutcome is a terminal failure result with a templated message.
type ErrorOutcome struct {
	Message Template
}

func (*Branch) ruleNode()          {}
func (*EndpointOutcome) ruleNode() {}
func (*ErrorOutcome) ruleNode()    {}

// PropertyKind discriminates Property values.
type PropertyKind int

const (
	PropertyString PropertyKind = iota
	PropertyBool
	PropertyList
	PropertyMap
)

// Property is one endpoint property value: a template string, a boolean, a
// list, or a nested map. Endpoint properties are arbitrary documents in the
// source format; only these four shapes occur in practice.
type Property struct {
	Kind PropertyKind
	Str  Template
	Bool bool
	List []Property
	Map  map[string]Property
}

// TemplatePart is one piece of a string template: static text or a dynamic
// expression. Exactly one of the two is populated.
type TemplatePart struct {
	Static string
	Expr   Expr
	IsExpr bool
}

// Template is a parsed string template: static text interleaved with
// expression placeholders.
type Template struct {
	Parts []TemplatePart
}

// StaticTemplate builds a template holding a single static string.
func StaticTemplate(s string) Template {
	return Template{Parts: []TemplatePart{{Static: s}}}
}

// IsStatic reports whether the template contains no dynamic parts.
func (t Template) IsStatic() bool {
	for _, p := range t.Parts {
		if p.IsExpr {
			return false
		}
	}
	return true
}

// Expressions returns the dynamic expressions of the template in order.
func (t Template) Expressions() []Expr {
	var out []Expr
	for _, p := range t.Parts {
		if p.IsExpr {
			out = append(out, p.Expr)
		}
	}
	return out
}
