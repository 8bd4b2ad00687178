// internal/types/expr.go
package types

/*
 * Expression tree.
 *
 * Closed sum type over the fixed condition grammar: literals, references,
 * attribute paths, presence tests, negation, equality, and library calls.
 * Expr is sealed (unexported marker method) so the compiler's type switch
 * is exhaustive over exactly these kinds.
 *
 * Every node carries its resolved static type, stamped by the loader's
 * resolution pass. The compiler trusts this type and never re-derives it;
 * a zero (unknown) type selects the conservative owned-copy strategy.
 *
 * Nodes are always handled through pointers so the resolution pass can
 * stamp types in place; after resolution the tree is treated as immutable.
 */

// Expr is a single node of the condition expression tree.
type Expr interface {
	// Type returns the node's resolved static type.
	Type() Type

	exprNode()
}

// Literal is a constant string, boolean, or string array value.
type Literal struct {
	Value any // string, bool, or []string
	Typ   Type
}

// Reference reads a parameter or a previously-bound condition result.
type Reference struct {
	Name string
	Typ  Type
}

// PathSegment is one step of a getAttr path: a named field or an array index.
type PathSegment struct {
	Key     string
	Index   int
	IsIndex bool
}

// GetAttribute navigates into a structured value along a path of field and
// index segments. The result is optional when any segment can fail (array
// index out of range).
type GetAttribute struct {
	Target Expr
	Path   []PathSegment
	Typ    Type
}

// IsSet tests presence of an optional value. Compiling it narrows a bare
// reference target to known-present for the remainder of the branch.
type IsSet struct {
	Target Expr
	Typ    Type
}

// Not negates a boolean expression.
type Not struct {
	Inner Expr
	Typ   Type
}

// BooleanEquals compares two boolean expressions.
type BooleanEquals struct {
	Left  Expr
	Right Expr
	Typ   Type
}

// StringEquals compares two string expressions.
type StringEquals struct {
	Left  Expr
	Right Expr
	Typ   Type
}

// CoalesceID is the reserved library-function identifier for the
// first-non-null short-circuit form. It is inlined by the compiler and never
// resolved through the function registry.
const CoalesceID = "coalesce"

// LibraryCall invokes a registered runtime function, or the reserved
// coalesce form when ID == CoalesceID.
type LibraryCall struct {
	ID   string
	Args []Expr
	Typ  Type
}

func (e *Literal) Type() Type       { return e.Typ }
func (e *Reference) Type() Type     { return e.Typ }
func (e *GetAttribute) Type() Type  { return e.Typ }
func (e *IsSet) Type() Type         { return e.Typ }
func (e *Not) Type() Type           { return e.Typ }
func (e *BooleanEquals) Type() Type { return e.Typ }
func (e *StringEquals) Type() Type  { return e.Typ }
func (e *LibraryCall) Type() Type   { return e.Typ }

func (*Literal) exprNode()       {}
func (*Reference) exprNode()     {}
func (*GetAttribute) exprNode()  {}
func (*IsSet) exprNode()         {}
func (*Not) exprNode()           {}
func (*BooleanEquals) exprNode() {}
func (*StringEquals) exprNode()  {}
func (*LibraryCall) exprNode()   {}
