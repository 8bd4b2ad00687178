// internal/rules/decode.go

// Package rules loads endpoint rule-set documents: JSON decoding, template
// parsing, and the type resolution pass that stamps every expression with
// its static type before the compiler runs.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Rule-set decoding.
 *
 * The document format carries parameters keyed by name and an ordered rule
 * list with first-match-wins semantics. Decoding normalizes the list into
 * the branch-chain form the compiler walks: rule i's conditions guard its
 * outcome, the first failing condition falls through to rule i+1, and an
 * exhausted list becomes the terminal "no rules matched" error outcome.
 *
 * Tree rules nest a child rule list under the same conditions; the child
 * list normalizes recursively.
 */

type documentJSON struct {
	Version    string                   `json:"version"`
	ServiceID  string                   `json:"serviceId"`
	Parameters map[string]parameterJSON `json:"parameters"`
	Rules      []ruleJSON               `json:"rules"`
}

type parameterJSON struct {
	Type          string `json:"type"`
	Required      bool   `json:"required"`
	Default       any    `json:"default"`
	BuiltIn       string `json:"builtIn"`
	Documentation string `json:"documentation"`
}

type ruleJSON struct {
	Conditions []conditionJSON `json:"conditions"`
	Type       string          `json:"type"`
	Endpoint   *endpointJSON   `json:"endpoint"`
	Error      string          `json:"error"`
	Rules      []ruleJSON      `json:"rules"`
}

type conditionJSON struct {
	Fn     string            `json:"fn"`
	Argv   []json.RawMessage `json:"argv"`
	Assign string            `json:"assign"`
}

type endpointJSON struct {
	URL        string                     `json:"url"`
	Properties map[string]json.RawMessage `json:"properties"`
	Headers    map[string][]string        `json:"headers"`
}

// Decode parses a rule-set document and normalizes it into the compiler's
// tree form. The result is untyped until Resolve runs.
func Decode(data []byte) (*types.RuleSet, error) {
	var doc documentJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidRuleSet, err)
	}

	names := make([]string, 0, len(doc.Parameters))
	for name := range doc.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]types.Parameter, 0, len(names))
	for _, name := range names {
		pj := doc.Parameters[name]
		kind, err := parseKind(pj.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		params = append(params, types.Parameter{
			Name:          name,
			Kind:          kind,
			Required:      pj.Required,
			Default:       pj.Default,
			BuiltIn:       pj.BuiltIn,
			Documentation: pj.Documentation,
		})
	}

	root, err := rulesToNode(doc.Rules)
	if err != nil {
		return nil, err
	}

	return &types.RuleSet{
		Version:    doc.Version,
		ServiceID:  doc.ServiceID,
		Parameters: params,
		Root:       root,
	}, nil
}

func parseKind(s string) (types.Kind, error) {
	switch s {
	case "String", "string":
		return types.KindString, nil
	case "Boolean", "boolean":
		return types.KindBool, nil
	case "StringArray", "stringArray":
		return types.KindStringArray, nil
	default:
		return types.KindUnknown, fmt.Errorf("%w: unsupported parameter type %q", types.ErrInvalidRuleSet, s)
	}
}

// rulesToNode normalizes an ordered rule list into a branch chain.
func rulesToNode(rules []ruleJSON) (types.RuleNode, error) {
	if len(rules) == 0 {
		return &types.ErrorOutcome{
			Message: types.StaticTemplate("no rules matched these parameters"),
		}, nil
	}

	r := rules[0]
	body, err := ruleBody(r)
	if err != nil {
		return nil, err
	}

	conditions := make([]types.Condition, 0, len(r.Conditions))
	for _, cj := range r.Conditions {
		cond, err := decodeCondition(cj)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	if len(conditions) == 0 {
		// Unconditional rule: later rules are unreachable.
		return body, nil
	}

	rest, err := rulesToNode(rules[1:])
	if err != nil {
		return nil, err
	}
	return &types.Branch{Conditions: conditions, OnTrue: body, OnFalse: rest}, nil
}

func ruleBody(r ruleJSON) (types.RuleNode, error) {
	switch {
	case r.Endpoint != nil:
		return decodeEndpoint(r.Endpoint)
	case r.Error != "":
		tmpl, err := ParseTemplate(r.Error)
		if err != nil {
			return nil, err
		}
		return &types.ErrorOutcome{Message: tmpl}, nil
	case len(r.Rules) > 0:
		return rulesToNode(r.Rules)
	default:
		return nil, fmt.Errorf("%w: rule carries no endpoint, error, or child rules", types.ErrInvalidRuleSet)
	}
}

func decodeEndpoint(e *endpointJSON) (*types.EndpointOutcome, error) {
	url, err := ParseTemplate(e.URL)
	if err != nil {
		return nil, fmt.Errorf("endpoint url: %w", err)
	}

	var properties map[string]types.Property
	if len(e.Properties) > 0 {
		properties = make(map[string]types.Property, len(e.Properties))
		for _, k := range sortedPropertyKeys(e.Properties) {
			var v any
			if err := json.Unmarshal(e.Properties[k], &v); err != nil {
				return nil, fmt.Errorf("property %q: %w", k, err)
			}
			prop, err := decodeProperty(v)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", k, err)
			}
			properties[k] = prop
		}
	}

	var headers map[string][]types.Template
	if len(e.Headers) > 0 {
		headers = make(map[string][]types.Template, len(e.Headers))
		for name, values := range e.Headers {
			templates := make([]types.Template, 0, len(values))
			for _, v := range values {
				tmpl, err := ParseTemplate(v)
				if err != nil {
					return nil, fmt.Errorf("header %q: %w", name, err)
				}
				templates = append(templates, tmpl)
			}
			headers[name] = templates
		}
	}

	return &types.EndpointOutcome{URL: url, Properties: properties, Headers: headers}, nil
}

func sortedPropertyKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decodeProperty(v any) (types.Property, error) {
	switch value := v.(type) {
	case string:
		tmpl, err := ParseTemplate(value)
		if err != nil {
			return types.Property{}, err
		}
		return types.Property{Kind: types.PropertyString, Str: tmpl}, nil
	case bool:
		return types.Property{Kind: types.PropertyBool, Bool: value}, nil
	case []any:
		list := make([]types.Property, 0, len(value))
		for _, item := range value {
			prop, err := decodeProperty(item)
			if err != nil {
				return types.Property{}, err
			}
			list = append(list, prop)
		}
		return types.Property{Kind: types.PropertyList, List: list}, nil
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := make(map[string]types.Property, len(value))
		for _, k := range keys {
			prop, err := decodeProperty(value[k])
			if err != nil {
				return types.Property{}, err
			}
			m[k] = prop
		}
		return types.Property{Kind: types.PropertyMap, Map: m}, nil
	default:
		return types.Property{}, fmt.Errorf("%w: unsupported property value %T", types.ErrInvalidRuleSet, v)
	}
}

func decodeCondition(cj conditionJSON) (types.Condition, error) {
	expr, err := decodeFn(cj.Fn, cj.Argv)
	if err != nil {
		return types.Condition{}, err
	}
	return types.Condition{Fn: expr, Bind: cj.Assign}, nil
}

// decodeExpr decodes one argv element: a literal, a reference object, or a
// nested function object. A string literal may itself be a template; a
// static template decodes to a literal and a lone placeholder to its
// underlying expression. Compound templates are not part of the condition
// grammar and are rejected in argument position.
func decodeExpr(raw json.RawMessage) (types.Expr, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidRuleSet, err)
	}
	switch value := v.(type) {
	case string:
		tmpl, err := ParseTemplate(value)
		if err != nil {
			return nil, err
		}
		if tmpl.IsStatic() {
			// Rebuild from the parsed parts so brace escapes decode to the
			// braces they denote, not the escape sequence.
			var static strings.Builder
			for _, p := range tmpl.Parts {
				static.WriteString(p.Static)
			}
			return &types.Literal{Value: static.String()}, nil
		}
		if len(tmpl.Parts) == 1 && tmpl.Parts[0].IsExpr {
			return tmpl.Parts[0].Expr, nil
		}
		return nil, fmt.Errorf("%w: compound template in argument position", types.ErrInvalidRuleSet)
	case bool:
		return &types.Literal{Value: value}, nil
	case []any:
		items := make([]string, 0, len(value))
		for _, item := range value {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: array literals must hold strings", types.ErrInvalidRuleSet)
			}
			items = append(items, s)
		}
		return &types.Literal{Value: items}, nil
	case map[string]any:
		if ref, ok := value["ref"].(string); ok {
			return &types.Reference{Name: ref}, nil
		}
		fn, ok := value["fn"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: expression object carries neither ref nor fn", types.ErrInvalidRuleSet)
		}
		var obj struct {
			Argv []json.RawMessage `json:"argv"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidRuleSet, err)
		}
		return decodeFn(fn, obj.Argv)
	default:
		return nil, fmt.Errorf("%w: unsupported expression literal %T", types.ErrInvalidRuleSet, v)
	}
}

func decodeFn(fn string, argv []json.RawMessage) (types.Expr, error) {
	args := make([]types.Expr, 0, len(argv))
	for _, raw := range argv {
		// getAttr's second argument is a path string, handled below.
		if fn == "getAttr" && len(args) == 1 {
			break
		}
		arg, err := decodeExpr(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		args = append(args, arg)
	}

	switch fn {
	case "isSet":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: isSet takes one argument", types.ErrInvalidRuleSet)
		}
		return &types.IsSet{Target: args[0]}, nil
	case "not":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: not takes one argument", types.ErrInvalidRuleSet)
		}
		return &types.Not{Inner: args[0]}, nil
	case "booleanEquals":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: booleanEquals takes two arguments", types.ErrInvalidRuleSet)
		}
		return &types.BooleanEquals{Left: args[0], Right: args[1]}, nil
	case "stringEquals":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: stringEquals takes two arguments", types.ErrInvalidRuleSet)
		}
		return &types.StringEquals{Left: args[0], Right: args[1]}, nil
	case "getAttr":
		if len(argv) != 2 || len(args) != 1 {
			return nil, fmt.Errorf("%w: getAttr takes a target and a path", types.ErrInvalidRuleSet)
		}
		var path string
		if err := json.Unmarshal(argv[1], &path); err != nil {
			return nil, fmt.Errorf("%w: getAttr path must be a string", types.ErrInvalidRuleSet)
		}
		segments, err := ParsePath(path)
		if err != nil {
			return nil, err
		}
		return &types.GetAttribute{Target: args[0], Path: segments}, nil
	default:
		// Includes the reserved coalesce id and all registry functions.
		return &types.LibraryCall{ID: fn, Args: args}, nil
	}
}
