// internal/compiler/template.go
package compiler

import (
	"strings"

	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Template compiler.
 *
 * Three shapes, three strategies: a purely static template is a literal, a
 * lone placeholder delegates straight to the expression compiler, and a
 * mixed template builds its result through a string accumulator. Appending
 * borrows its argument, so every dynamic part compiles in Borrowed mode
 * regardless of the template's own requested mode.
 */

// compileTemplate compiles a string template in the requested ownership
// mode.
func (g *Generator) compileTemplate(t types.Template, mode Mode, ctx Context) (Fragment, Context, error) {
	// Empty static fragments compile to nothing, not an empty append.
	parts := make([]types.TemplatePart, 0, len(t.Parts))
	for _, p := range t.Parts {
		if !p.IsExpr && p.Static == "" {
			continue
		}
		parts = append(parts, p)
	}

	stringT := types.Type{Kind: types.KindString}
	switch {
	case len(parts) == 0:
		frag := Fragment{Code: `""`, Type: stringT}
		if mode == Owned {
			frag = frag.IntoOwned()
		}
		return frag, ctx, nil
	case len(parts) == 1 && !parts[0].IsExpr:
		frag := Fragment{Code: rustString(parts[0].Static), Type: stringT}
		if mode == Owned {
			frag = frag.IntoOwned()
		}
		return frag, ctx, nil
	case len(parts) == 1:
		// Single placeholder, no surrounding text: no wrapping.
		return g.compileExpr(parts[0].Expr, mode, ctx)
	}

	var b strings.Builder
	b.WriteString("{ let mut out = String::new();")
	for _, p := range parts {
		if !p.IsExpr {
			b.WriteString(" out.push_str(" + rustString(p.Static) + ");")
			continue
		}
		frag, _, err := g.compileBorrowed(p.Expr, ctx)
		if err != nil {
			return Fragment{}, ctx, err
		}
		b.WriteString(" out.push_str(" + appendArg(frag) + ");")
	}
	b.WriteString(" out }")

	frag := Fragment{Code: b.String(), Type: stringT, Owned: true}
	if mode == Borrowed {
		// A compound can only ever own its accumulator; hand back a
		// reference to the freshly built value.
		frag.Code = "&" + frag.Code
		frag.Owned = false
	}
	return frag, ctx, nil
}

// appendArg adapts a compiled part for push_str. Absent optional parts
// append nothing; booleans render their literal text.
func appendArg(frag Fragment) string {
	code := frag.Code
	if frag.Type.Kind == types.KindBool {
		if frag.Type.Optional {
			code = code + ".unwrap_or_default()"
		}
		return `if ` + code + ` { "true" } else { "false" }`
	}
	if frag.Type.Optional {
		return code + ".unwrap_or_default()"
	}
	return code
}
