// internal/rules/template.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Template and path parsing.
 *
 * Templates interleave static text with {placeholder} expressions. A
 * placeholder is a parameter/binding name, optionally followed by #attr as
 * shorthand for a single-key attribute access. Doubled braces escape
 * literal braces. Adjacent static runs merge into one part so the compiler
 * sees the minimal part list.
 *
 * getAttr paths use dotted keys with optional [n] indices, mirroring the
 * segment shape of the compiler's PathSegment type.
 */

// ParseTemplate parses a template string into its static and dynamic
// parts.
func ParseTemplate(s string) (types.Template, error) {
	var parts []types.TemplatePart
	var static strings.Builder

	flush := func() {
		if static.Len() > 0 {
			parts = append(parts, types.TemplatePart{Static: static.String()})
			static.Reset()
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				static.WriteRune('{')
				i++
				continue
			}
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '}' {
					end = j
					break
				}
			}
			if end < 0 {
				return types.Template{}, fmt.Errorf("%w: unterminated placeholder in %q", types.ErrTemplateSyntax, s)
			}
			inner := string(runes[i+1 : end])
			expr, err := placeholderExpr(inner)
			if err != nil {
				return types.Template{}, err
			}
			flush()
			parts = append(parts, types.TemplatePart{Expr: expr, IsExpr: true})
			i = end
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				static.WriteRune('}')
				i++
				continue
			}
			return types.Template{}, fmt.Errorf("%w: unbalanced brace in %q", types.ErrTemplateSyntax, s)
		default:
			static.WriteRune(runes[i])
		}
	}
	flush()

	if len(parts) > types.MaxTemplateParts {
		return types.Template{}, fmt.Errorf("%w: %d parts", types.ErrTemplateTooLarge, len(parts))
	}
	return types.Template{Parts: parts}, nil
}

// placeholderExpr parses the inside of a placeholder: "name" or
// "name#attr".
func placeholderExpr(inner string) (types.Expr, error) {
	if inner == "" {
		return nil, fmt.Errorf("%w: empty placeholder", types.ErrTemplateSyntax)
	}
	name, attr, found := strings.Cut(inner, "#")
	if !found {
		return &types.Reference{Name: inner}, nil
	}
	if name == "" || attr == "" {
		return nil, fmt.Errorf("%w: malformed placeholder %q", types.ErrTemplateSyntax, inner)
	}
	return &types.GetAttribute{
		Target: &types.Reference{Name: name},
		Path:   []types.PathSegment{{Key: attr}},
	}, nil
}

// ParsePath parses a getAttr path like "resourceId[0]" or
// "partition.dnsSuffix" into segments.
func ParsePath(path string) ([]types.PathSegment, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty attribute path", types.ErrInvalidRuleSet)
	}
	var segments []types.PathSegment
	for _, piece := range strings.Split(path, ".") {
		rest := piece
		for {
			open := strings.IndexByte(rest, '[')
			if open < 0 {
				if rest != "" {
					segments = append(segments, types.PathSegment{Key: rest})
				}
				break
			}
			if open > 0 {
				segments = append(segments, types.PathSegment{Key: rest[:open]})
			}
			close := strings.IndexByte(rest, ']')
			if close < open {
				return nil, fmt.Errorf("%w: malformed index in path %q", types.ErrInvalidRuleSet, path)
			}
			idx, err := strconv.Atoi(rest[open+1 : close])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: malformed index in path %q", types.ErrInvalidRuleSet, path)
			}
			segments = append(segments, types.PathSegment{Index: idx, IsIndex: true})
			rest = rest[close+1:]
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty attribute path", types.ErrInvalidRuleSet)
	}
	if len(segments) > types.MaxPathDepth {
		return nil, fmt.Errorf("%w: %d segments", types.ErrPathTooDeep, len(segments))
	}
	return segments, nil
}
