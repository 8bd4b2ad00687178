// internal/compiler/template_test.go
package compiler

import (
	"testing"

	"github.com/solatis/ruleforge/internal/types"
)

func mustTemplate(t *testing.T, parts ...types.TemplatePart) types.Template {
	t.Helper()
	return types.Template{Parts: parts}
}

func staticPart(s string) types.TemplatePart { return types.TemplatePart{Static: s} }
func exprPart(e types.Expr) types.TemplatePart { return types.TemplatePart{Expr: e, IsExpr: true} }

func TestCompileTemplate(t *testing.T) {
	tests := []struct {
		name     string
		parts    []types.TemplatePart
		mode     Mode
		wantCode string
	}{
		{
			"static borrowed",
			[]types.TemplatePart{staticPart("https://example.com")},
			Borrowed,
			`"https://example.com"`,
		},
		{
			"static owned",
			[]types.TemplatePart{staticPart("https://example.com")},
			Owned,
			`"https://example.com".to_string()`,
		},
		{
			"empty template",
			nil,
			Borrowed,
			`""`,
		},
		{
			"empty statics dropped",
			[]types.TemplatePart{staticPart(""), staticPart("x"), staticPart("")},
			Borrowed,
			`"x"`,
		},
		{
			"lone placeholder delegates",
			[]types.TemplatePart{exprPart(ref("Region"))},
			Borrowed,
			"params.region.as_str()",
		},
		{
			"lone placeholder owned",
			[]types.TemplatePart{exprPart(ref("Region"))},
			Owned,
			"params.region.as_str().to_string()",
		},
		{
			"compound owned",
			[]types.TemplatePart{staticPart("https://"), exprPart(ref("Region")), staticPart(".example.com")},
			Owned,
			`{ let mut out = String::new(); out.push_str("https://"); out.push_str(params.region.as_str()); out.push_str(".example.com"); out }`,
		},
		{
			"compound borrowed takes a reference",
			[]types.TemplatePart{staticPart("https://"), exprPart(ref("Region"))},
			Borrowed,
			`&{ let mut out = String::new(); out.push_str("https://"); out.push_str(params.region.as_str()); out }`,
		},
		{
			"absent optional part appends nothing",
			[]types.TemplatePart{staticPart("p-"), exprPart(ref("Bucket"))},
			Owned,
			`{ let mut out = String::new(); out.push_str("p-"); out.push_str(params.bucket.as_deref().unwrap_or_default()); out }`,
		},
		{
			"boolean part renders literal text",
			[]types.TemplatePart{staticPart("fips="), exprPart(ref("UseFIPS"))},
			Owned,
			`{ let mut out = String::new(); out.push_str("fips="); out.push_str(if params.use_fips { "true" } else { "false" }); out }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t)
			frag, _, err := g.compileTemplate(mustTemplate(t, tt.parts...), tt.mode, NewContext(testParams()))
			if err != nil {
				t.Fatalf("compileTemplate() error = %v, want nil", err)
			}
			if frag.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", frag.Code, tt.wantCode)
			}
		})
	}
}

func TestCompileTemplate_StaticIdempotence(t *testing.T) {
	// A static template stays byte-identical through any number of
	// compilations and both ownership modes agree on content.
	g := newTestGenerator(t)
	tmpl := types.StaticTemplate("https://fixed.example.com")

	first, _, err := g.compileTemplate(tmpl, Borrowed, NewContext(testParams()))
	if err != nil {
		t.Fatalf("compileTemplate() error = %v, want nil", err)
	}
	for i := 0; i < 3; i++ {
		again, _, err := g.compileTemplate(tmpl, Borrowed, NewContext(testParams()))
		if err != nil {
			t.Fatalf("compileTemplate() error = %v, want nil", err)
		}
		if again != first {
			t.Fatalf("compilation %d = %+v, want %+v", i, again, first)
		}
	}

	owned, _, err := g.compileTemplate(tmpl, Owned, NewContext(testParams()))
	if err != nil {
		t.Fatalf("compileTemplate() error = %v, want nil", err)
	}
	if owned != first.IntoOwned() {
		t.Errorf("owned = %+v, want borrowed plus conversion", owned)
	}
}

func TestCompileTemplate_NarrowedPartUnwraps(t *testing.T) {
	g := newTestGenerator(t)
	ctx := NewContext(testParams()).WithKnown("Bucket")
	tmpl := mustTemplate(t, staticPart("https://"), exprPart(ref("Bucket")), staticPart(".example.com"))

	frag, _, err := g.compileTemplate(tmpl, Owned, ctx)
	if err != nil {
		t.Fatalf("compileTemplate() error = %v, want nil", err)
	}
	want := `{ let mut out = String::new(); out.push_str("https://"); out.push_str(params.bucket.as_deref().unwrap()); out.push_str(".example.com"); out }`
	if frag.Code != want {
		t.Errorf("Code = %q, want %q", frag.Code, want)
	}
}
