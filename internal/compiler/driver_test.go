// internal/compiler/driver_test.go
package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/ruleforge/internal/types"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(StandardFunctions(), AWSFunctions())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}
	return reg
}

func endpointNode(parts ...types.TemplatePart) *types.EndpointOutcome {
	return &types.EndpointOutcome{URL: types.Template{Parts: parts}}
}

func errorNode(msg string) *types.ErrorOutcome {
	return &types.ErrorOutcome{Message: types.StaticTemplate(msg)}
}

func countOccurrences(s, sub string) int {
	return strings.Count(s, sub)
}

func TestCompile_SimpleEndpoint(t *testing.T) {
	rs := &types.RuleSet{
		ServiceID:  "testsvc",
		Parameters: testParams(),
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.IsSet{Target: ref("Bucket")}},
			},
			OnTrue: endpointNode(
				staticPart("https://"),
				exprPart(ref("Bucket")),
				staticPart("."),
				exprPart(ref("Region")),
				staticPart(".example.com"),
			),
			OnFalse: errorNode("bucket required"),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	for _, want := range []string{
		"// Code generated by ruleforge. DO NOT EDIT.",
		"// Endpoint resolution for testsvc.",
		"use crate::endpoint_lib::endpoint::{Endpoint, ResolveEndpointError};",
		"pub struct Params {",
		"pub region: String,",
		"pub bucket: Option<String>,",
		"pub use_fips: bool,",
		"pub tags: Option<Vec<String>>,",
		"pub struct EndpointResolver;",
		"pub fn resolve_endpoint(&self, params: &Params) -> Result<Endpoint, ResolveEndpointError> {",
		"if params.bucket.is_some() {",
		"params.bucket.as_deref().unwrap()",
		`return Err(ResolveEndpointError::message("bucket required".to_string()));`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source missing %q\n%s", want, src)
		}
	}

	// One presence test narrows; every later read unwraps without
	// re-checking.
	if got := countOccurrences(src, ".is_some()"); got != 1 {
		t.Errorf("is_some() count = %v, want 1\n%s", got, src)
	}
	if out.SharedBlocks != 0 {
		t.Errorf("SharedBlocks = %v, want 0", out.SharedBlocks)
	}
}

func TestCompile_NarrowingDoesNotLeakToSibling(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.IsSet{Target: ref("Bucket")}},
			},
			OnTrue: endpointNode(staticPart("https://"), exprPart(ref("Bucket")), staticPart(".example.com")),
			OnFalse: &types.Branch{
				Conditions: []types.Condition{
					{Fn: &types.StringEquals{Left: ref("Bucket"), Right: &types.Literal{Value: "x"}}},
				},
				OnTrue:  endpointNode(staticPart("https://x.example.com")),
				OnFalse: errorNode("no match"),
			},
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	// The sibling branch must treat Bucket as unproven.
	if !strings.Contains(src, `params.bucket.as_deref() == Some("x")`) {
		t.Errorf("sibling comparison should guard the optional:\n%s", src)
	}
	if got := countOccurrences(src, ".unwrap()"); got != 1 {
		t.Errorf("unwrap count = %v, want 1 (narrowed branch only)\n%s", got, src)
	}
}

func TestCompile_NegatedPresenceKeepsReadsGuarded(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.Not{Inner: &types.IsSet{Target: ref("Endpoint")}}},
			},
			// The taken branch is the one where Endpoint is absent; reading
			// it here must never unwrap.
			OnTrue: &types.ErrorOutcome{Message: types.Template{Parts: []types.TemplatePart{
				staticPart("no endpoint override, got "),
				exprPart(ref("Endpoint")),
			}}},
			OnFalse: endpointNode(staticPart("https://"), exprPart(ref("Endpoint"))),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	if !strings.Contains(src, "if !(params.endpoint.is_some()) {") {
		t.Errorf("negated presence test not emitted\n%s", src)
	}
	if got := countOccurrences(src, "params.endpoint.as_deref().unwrap_or_default()"); got != 2 {
		t.Errorf("guarded read count = %v, want 2\n%s", got, src)
	}
	if got := countOccurrences(src, ".unwrap()"); got != 0 {
		t.Errorf("unwrap count = %v, want 0 (nothing proven present)\n%s", got, src)
	}
}

func TestCompile_NegatedPresenceDoesNotFoldLaterTest(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.Not{Inner: &types.IsSet{Target: ref("Endpoint")}}},
			},
			OnTrue: &types.Branch{
				Conditions: []types.Condition{
					{Fn: &types.IsSet{Target: ref("Endpoint")}},
				},
				OnTrue:  endpointNode(staticPart("https://"), exprPart(ref("Endpoint"))),
				OnFalse: errorNode("endpoint required"),
			},
			OnFalse: errorNode("endpoint configured"),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	// The inner test runs for real; the negation proved nothing about
	// presence on its own branch.
	if !strings.Contains(src, "if params.endpoint.is_some() {") {
		t.Errorf("inner presence test missing\n%s", src)
	}
	if strings.Contains(src, "if true {") {
		t.Errorf("presence test folded to a constant\n%s", src)
	}
	if got := countOccurrences(src, ".is_some()"); got != 2 {
		t.Errorf("is_some() count = %v, want 2\n%s", got, src)
	}
	// Only the inner test narrows, so exactly one unconditional read.
	if got := countOccurrences(src, "params.endpoint.as_deref().unwrap()"); got != 1 {
		t.Errorf("narrowed read count = %v, want 1\n%s", got, src)
	}
}

func TestCompile_UnprovenOptionalURLPartRendersEmpty(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root:       endpointNode(staticPart("https://"), exprPart(ref("Bucket")), staticPart(".example.com")),
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	// An optional never proven present contributes the empty string to the
	// URL rather than failing resolution.
	if !strings.Contains(src, `out.push_str(params.bucket.as_deref().unwrap_or_default());`) {
		t.Errorf("unproven optional part not defaulted\n%s", src)
	}
	if got := countOccurrences(src, ".unwrap()"); got != 0 {
		t.Errorf("unwrap count = %v, want 0\n%s", got, src)
	}
}

func TestCompile_ConditionForms(t *testing.T) {
	urlAttr := &types.GetAttribute{
		Target: ref("url"),
		Path:   []types.PathSegment{{Key: "authority"}},
	}
	rs := &types.RuleSet{
		Parameters: []types.Parameter{
			{Name: "Endpoint", Kind: types.KindString, Required: true},
			{Name: "UseFIPS", Kind: types.KindBool, Required: true},
		},
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.LibraryCall{ID: "parseURL", Args: []types.Expr{ref("Endpoint")}}, Bind: "url"},
				{Fn: &types.BooleanEquals{Left: ref("UseFIPS"), Right: &types.Literal{Value: true}}, Bind: "fips"},
			},
			OnTrue:  endpointNode(staticPart("https://"), exprPart(urlAttr)),
			OnFalse: errorNode("unresolvable"),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	for _, want := range []string{
		// Optional condition with binding becomes if-let.
		"if let Some(url) = crate::endpoint_lib::parse_url::parse_url(params.endpoint.as_str()) {",
		// Boolean condition with binding becomes let plus if.
		"let fips = params.use_fips == true;",
		"if fips {",
		// The binding is already unwrapped where used.
		"url.authority()",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source missing %q\n%s", want, src)
		}
	}
}

func TestCompile_NonBooleanConditionRejected(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: ref("Region")},
			},
			OnTrue:  endpointNode(staticPart("https://example.com")),
			OnFalse: errorNode("x"),
		},
	}
	_, err := Compile(rs, testRegistry(t), Options{})
	if !errors.Is(err, types.ErrTypeMismatch) {
		t.Errorf("Compile() error = %v, want ErrTypeMismatch", err)
	}
}

func TestCompile_SharedBranchEmittedOnce(t *testing.T) {
	shared := func() *types.Branch {
		return &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.StringEquals{Left: ref("Region"), Right: &types.Literal{Value: "eu-central-1"}}},
			},
			OnTrue:  endpointNode(staticPart("https://eu.example.com")),
			OnFalse: errorNode("unsupported region"),
		}
	}
	// Two structurally identical subtrees, distinct pointers: the DAG
	// detection is structural, not identity-based.
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.IsSet{Target: ref("Bucket")}},
			},
			OnTrue:  shared(),
			OnFalse: shared(),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	if out.SharedBlocks != 1 {
		t.Fatalf("SharedBlocks = %v, want 1", out.SharedBlocks)
	}
	if got := countOccurrences(src, "return self.resolve_shared_0(params);"); got != 2 {
		t.Errorf("helper call count = %v, want 2\n%s", got, src)
	}
	if got := countOccurrences(src, "fn resolve_shared_0(&self, params: &Params) -> Result<Endpoint, ResolveEndpointError> {"); got != 1 {
		t.Errorf("helper definition count = %v, want 1\n%s", got, src)
	}
	// The shared decision logic itself appears exactly once.
	if got := countOccurrences(src, `"https://eu.example.com"`); got != 1 {
		t.Errorf("shared endpoint emitted %v times, want 1\n%s", got, src)
	}
}

func TestCompile_SharedSubtreeWithBindingLiftsAtBindingScope(t *testing.T) {
	// The inner endpoint references a binding, so it can only be lifted
	// together with the branch that binds it.
	withBinding := func() *types.Branch {
		return &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.LibraryCall{ID: "parseURL", Args: []types.Expr{ref("Endpoint")}}, Bind: "url"},
			},
			OnTrue: endpointNode(
				staticPart("https://"),
				exprPart(&types.GetAttribute{Target: ref("url"), Path: []types.PathSegment{{Key: "authority"}}}),
			),
			OnFalse: errorNode("bad endpoint"),
		}
	}
	rs := &types.RuleSet{
		Parameters: []types.Parameter{
			{Name: "Endpoint", Kind: types.KindString, Required: true},
			{Name: "Fallback", Kind: types.KindBool, Required: true},
		},
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: ref("Fallback")},
			},
			OnTrue:  withBinding(),
			OnFalse: withBinding(),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if out.SharedBlocks != 1 {
		t.Fatalf("SharedBlocks = %v, want 1", out.SharedBlocks)
	}
	if got := countOccurrences(out.Source, "if let Some(url) ="); got != 1 {
		t.Errorf("binding condition emitted %v times, want 1 (inside the helper)\n%s", got, out.Source)
	}
}

func TestCompile_StatefulFunctionState(t *testing.T) {
	partitionAttr := &types.GetAttribute{
		Target: ref("p"),
		Path:   []types.PathSegment{{Key: "dnsSuffix"}},
	}
	rs := &types.RuleSet{
		Parameters: []types.Parameter{
			{Name: "Region", Kind: types.KindString, Required: true},
		},
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.LibraryCall{ID: "aws.partition", Args: []types.Expr{ref("Region")}}, Bind: "p"},
			},
			OnTrue:  endpointNode(staticPart("https://svc."), exprPart(partitionAttr)),
			OnFalse: errorNode("unknown partition"),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	for _, want := range []string{
		"pub struct EndpointResolver {",
		"partition_resolver: crate::endpoint_lib::partition::PartitionResolver,",
		"partition_resolver: crate::endpoint_lib::partition::PartitionResolver::new_from_embedded(),",
		"crate::endpoint_lib::partition::resolve_partition(&self.partition_resolver, params.region.as_str())",
		"p.dns_suffix()",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source missing %q\n%s", want, src)
		}
	}
	if strings.Contains(src, "pub struct EndpointResolver;") {
		t.Errorf("stateful resolver must not be a unit struct\n%s", src)
	}
}

func TestCompile_PropertiesAndHeaders(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root: &types.EndpointOutcome{
			URL: types.StaticTemplate("https://example.com"),
			Properties: map[string]types.Property{
				"disableDoubleEncoding": {Kind: types.PropertyBool, Bool: true},
				"authSchemes": {
					Kind: types.PropertyList,
					List: []types.Property{
						{
							Kind: types.PropertyMap,
							Map: map[string]types.Property{
								"name":          {Kind: types.PropertyString, Str: types.StaticTemplate("sigv4")},
								"signingRegion": {Kind: types.PropertyString, Str: types.Template{Parts: []types.TemplatePart{exprPart(ref("Region"))}}},
							},
						},
					},
				},
			},
			Headers: map[string][]types.Template{
				"x-amz-region": {types.Template{Parts: []types.TemplatePart{exprPart(ref("Region"))}}},
			},
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	src := out.Source

	for _, want := range []string{
		"use crate::endpoint_lib::document::Document;",
		`.property("authSchemes", Document::Array(vec![Document::Object({ let mut m = std::collections::HashMap::new(); m.insert("name".to_string(), Document::String("sigv4".to_string())); m.insert("signingRegion".to_string(), Document::String(params.region.as_str().to_string())); m })]))`,
		`.property("disableDoubleEncoding", Document::Bool(true))`,
		`.header("x-amz-region", params.region.as_str().to_string())`,
		".build());",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source missing %q\n%s", want, src)
		}
	}

	// Properties emit in sorted key order.
	if strings.Index(src, "authSchemes") > strings.Index(src, "disableDoubleEncoding") {
		t.Errorf("properties not sorted by key\n%s", src)
	}
}

func TestCompile_UnknownFunctionAborts(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root: &types.Branch{
			Conditions: []types.Condition{
				{Fn: &types.LibraryCall{ID: "no.such.fn", Args: []types.Expr{ref("Region")}}},
			},
			OnTrue:  endpointNode(staticPart("https://example.com")),
			OnFalse: errorNode("x"),
		},
	}

	out, err := Compile(rs, testRegistry(t), Options{})
	if !errors.Is(err, types.ErrUnknownFunction) {
		t.Fatalf("Compile() error = %v, want ErrUnknownFunction", err)
	}
	if !strings.Contains(err.Error(), `"no.such.fn"`) {
		t.Errorf("error %v should name the function id", err)
	}
	if out != nil {
		t.Errorf("output = %+v, want nil (no partial output)", out)
	}
}

func TestCompile_EmptyRuleTree(t *testing.T) {
	rs := &types.RuleSet{Parameters: testParams()}
	_, err := Compile(rs, testRegistry(t), Options{})
	if !errors.Is(err, types.ErrInvalidRuleSet) {
		t.Errorf("Compile() error = %v, want ErrInvalidRuleSet", err)
	}
}

func TestCompile_OptionsOverride(t *testing.T) {
	rs := &types.RuleSet{
		Parameters: testParams(),
		Root:       endpointNode(staticPart("https://example.com")),
	}
	out, err := Compile(rs, testRegistry(t), Options{
		ResolverName: "CustomResolver",
		RuntimeCrate: "my_runtime::support",
	})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if !strings.Contains(out.Source, "pub struct CustomResolver;") {
		t.Errorf("resolver name not applied\n%s", out.Source)
	}
	if !strings.Contains(out.Source, "use my_runtime::support::endpoint::{Endpoint, ResolveEndpointError};") {
		t.Errorf("runtime crate not applied\n%s", out.Source)
	}
}

// Property-based test: generation is deterministic
func TestCompile_PropertyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("identical inputs generate identical source", prop.ForAll(
		func(propCount int, headerCount int) bool {
			build := func() *types.RuleSet {
				props := map[string]types.Property{}
				for i := 0; i < propCount; i++ {
					props[fmt.Sprintf("prop%d", i)] = types.Property{Kind: types.PropertyBool, Bool: i%2 == 0}
				}
				headers := map[string][]types.Template{}
				for i := 0; i < headerCount; i++ {
					headers[fmt.Sprintf("x-header-%d", i)] = []types.Template{types.StaticTemplate("v")}
				}
				return &types.RuleSet{
					Parameters: testParams(),
					Root: &types.Branch{
						Conditions: []types.Condition{
							{Fn: &types.IsSet{Target: ref("Bucket")}},
						},
						OnTrue: &types.EndpointOutcome{
							URL:        types.StaticTemplate("https://example.com"),
							Properties: props,
							Headers:    headers,
						},
						OnFalse: errorNode("x"),
					},
				}
			}

			first, err := Compile(build(), testRegistry(t), Options{})
			if err != nil {
				return false
			}
			for i := 0; i < 3; i++ {
				again, err := Compile(build(), testRegistry(t), Options{})
				if err != nil || again.Source != first.Source {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 8),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

// Property-based test: compilation never panics on deep chains
func TestCompile_PropertyDeepChainsNeverPanic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("deep branch chains compile without panicking", prop.ForAll(
		func(depth int) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Compile() panicked at depth %d: %v", depth, r)
				}
			}()

			node := types.RuleNode(errorNode("exhausted"))
			for i := 0; i < depth; i++ {
				node = &types.Branch{
					Conditions: []types.Condition{
						{Fn: &types.StringEquals{Left: ref("Region"), Right: &types.Literal{Value: fmt.Sprintf("r%d", i)}}},
					},
					OnTrue:  endpointNode(staticPart(fmt.Sprintf("https://r%d.example.com", i))),
					OnFalse: node,
				}
			}
			rs := &types.RuleSet{Parameters: testParams(), Root: node}
			_, err := Compile(rs, testRegistry(t), Options{})
			return err == nil
		},
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}
