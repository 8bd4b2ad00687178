package types

import "errors"

// Sentinel errors for ruleforge operations.
//
// The fatal class aborts generation entirely: call sites wrap these with the
// offending rule-set element (function id, parameter name) via fmt.Errorf
// so the surrounding tool surfaces a build-time diagnostic. Missing type
// information is deliberately not an error; the compiler degrades to the
// conservative owned-copy strategy instead.
var (
	// ErrUnknownFunction indicates a rule references a function id the
	// generator build was not configured with.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrDuplicateFunction indicates two registry sources supplied the same
	// function id. Duplicate ids are a configuration error; lookup must be
	// deterministic regardless of registration order.
	ErrDuplicateFunction = errors.New("duplicate function registration")

	// ErrUndeclaredParameter indicates an expression references a parameter
	// or binding that is not in scope.
	ErrUndeclaredParameter = errors.New("reference to undeclared parameter")

	// ErrTemplateSyntax indicates an unbalanced or malformed placeholder in
	// a string template.
	ErrTemplateSyntax = errors.New("template syntax error")

	// ErrPathTooDeep indicates a getAttr path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("attribute path exceeds maximum depth")

	// ErrTemplateTooLarge indicates a template exceeds MaxTemplateParts.
	ErrTemplateTooLarge = errors.New("template exceeds maximum part count")

	// ErrInvalidRuleSet indicates a structurally invalid rule-set document.
	ErrInvalidRuleSet = errors.New("invalid rule set")

	// ErrTypeMismatch indicates an expression's resolved type is not
	// permitted where it appears (e.g. a string-typed condition).
	ErrTypeMismatch = errors.New("type mismatch")
)
