// Package types provides the domain model shared across ruleforge components.
//
// Zero-dependency design: the rule-set model uses only the standard library so
// the compiler core stays a pure tree transformation. ID utilities in ids.go
// import uuid but are isolated for selective inclusion.
//
// The model mirrors the endpoint rule-set document: typed parameters form the
// compiler's type environment, an expression tree carries conditions, and rule
// nodes terminate in endpoint or error outcomes. All structures are immutable
// once a rule set has been loaded and resolved.
package types

// Kind identifies a parameter or expression value kind.
type Kind int

const (
	// KindUnknown marks an expression whose static type could not be
	// resolved. The compiler falls back to the conservative owned-copy
	// strategy for such expressions.
	KindUnknown Kind = iota
	KindString
	KindBool
	KindStringArray

	// KindObject is a structured library-function result (Url, Partition,
	// Arn). Attribute access on such values is typed through the function
	// registry's attribute tables.
	KindObject
)

// String returns the kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindBool:
		return "Boolean"
	case KindStringArray:
		return "StringArray"
	case KindObject:
		return "Object"
	default:
		return "Unknown"
	}
}

// Type is the static type of an expression: a kind, an object type name for
// structured library results, and an optionality flag.
//
// The zero Type means "unknown"; the compiler treats unknown types with the
// always-correct owned-copy strategy rather than guessing.
type Type struct {
	Kind     Kind
	Object   string // object type name when Kind == KindObject
	Optional bool
}

// NonOptional returns the same type with the optionality flag cleared.
// Used when a binding or a presence proof unwraps an optional value.
func (t Type) NonOptional() Type {
	t.Optional = false
	return t
}

// IsUnknown reports whether no static type information is available.
func (t Type) IsUnknown() bool {
	return t.Kind == KindUnknown
}

// Parameter is a typed, possibly-optional named input of the generated
// resolver. Immutable once the rule set is loaded.
//
// A parameter with a default value is materialized as non-optional: the
// loader records the default and the host applies it when building the
// resolver input, so the decision logic never sees it absent.
type Parameter struct {
	Name          string
	Kind          Kind
	Required      bool
	Default       any    // string or bool; nil when absent
	BuiltIn       string // host SDK binding (e.g. "AWS::Region"), informational
	Documentation string
}

// Optional reports whether the generated resolver may see this parameter
// absent. Optionality = !required and no default.
func (p Parameter) Optional() bool {
	return !p.Required && p.Default == nil
}

// Type returns the parameter's static type.
func (p Parameter) Type() Type {
	return Type{Kind: p.Kind, Optional: p.Optional()}
}

// RuleSet is the full declarative decision structure handed to the compiler:
// parameters, the normalized rule tree, and document metadata.
type RuleSet struct {
	Version    string
	ServiceID  string
	Parameters []Parameter
	Root       RuleNode
}

// Parameter looks up a declared parameter by name.
func (rs *RuleSet) Parameter(name string) (Parameter, bool) {
	for _, p := range rs.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Resource limits enforced by the loader to keep compilation bounded.
const (
	// MaxPathDepth bounds getAttr path length. Real rule sets navigate at
	// most two or three levels into a parsed ARN or URL.
	MaxPathDepth = 16

	// MaxTemplateParts bounds template complexity. URL templates interleave
	// a handful of placeholders with static text; anything larger indicates
	// a malformed document.
	MaxTemplateParts = 64
)
