// internal/compiler/registry_test.go
package compiler

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/solatis/ruleforge/internal/types"
)

func TestNewRegistry_MergesSources(t *testing.T) {
	reg, err := NewRegistry(StandardFunctions(), AWSFunctions())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}

	for _, id := range []string{"isValidHostLabel", "parseURL", "uriEncode", "aws.partition", "aws.parseArn", "aws.isVirtualHostableS3Bucket"} {
		if _, ok := reg.Lookup(id); !ok {
			t.Errorf("Lookup(%q) = false, want registered", id)
		}
	}
	if _, ok := reg.Lookup(types.CoalesceID); ok {
		t.Errorf("coalesce must stay reserved, not registered")
	}
}

func TestNewRegistry_DuplicateIDFatal(t *testing.T) {
	dup := map[string]Descriptor{
		"parseURL": {Result: types.Type{Kind: types.KindString}, CallPath: "other::parse_url"},
	}
	_, err := NewRegistry(StandardFunctions(), dup)
	if !errors.Is(err, types.ErrDuplicateFunction) {
		t.Fatalf("error = %v, want ErrDuplicateFunction", err)
	}
	if !strings.Contains(err.Error(), `"parseURL"`) {
		t.Errorf("error %v should name the duplicate id", err)
	}
}

func TestRegistry_LookupIsCaseSensitive(t *testing.T) {
	reg, err := NewRegistry(StandardFunctions())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}
	if _, ok := reg.Lookup("parseurl"); ok {
		t.Errorf("Lookup(parseurl) = true, want exact-match miss")
	}
}

func TestRegistry_IDsSorted(t *testing.T) {
	reg, err := NewRegistry(StandardFunctions(), AWSFunctions())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}
	ids := reg.IDs()
	if !sort.StringsAreSorted(ids) {
		t.Errorf("IDs() = %v, want sorted", ids)
	}
	if len(ids) != 6 {
		t.Errorf("len(IDs()) = %v, want 6", len(ids))
	}
}

func TestRegistry_ResultOf(t *testing.T) {
	reg, err := NewRegistry(StandardFunctions(), AWSFunctions())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}

	result, ok := reg.ResultOf("aws.partition")
	if !ok {
		t.Fatal("ResultOf(aws.partition) = false, want true")
	}
	if result.Kind != types.KindObject || result.Object != "Partition" || !result.Optional {
		t.Errorf("result = %+v, want optional Partition object", result)
	}

	if _, ok := reg.ResultOf("nope"); ok {
		t.Errorf("ResultOf(nope) = true, want false")
	}
}

func TestRegistry_AttributeOf(t *testing.T) {
	reg, err := NewRegistry(StandardFunctions(), AWSFunctions())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}

	tests := []struct {
		name   string
		object string
		attr   string
		want   types.Type
		wantOk bool
	}{
		{"url scheme", "Url", "scheme", types.Type{Kind: types.KindString}, true},
		{"url isIp", "Url", "isIp", types.Type{Kind: types.KindBool}, true},
		{"partition dnsSuffix", "Partition", "dnsSuffix", types.Type{Kind: types.KindString}, true},
		{"arn resourceId", "Arn", "resourceId", types.Type{Kind: types.KindStringArray}, true},
		{"unknown attribute", "Url", "fragment", types.Type{}, false},
		{"unknown object", "Bucket", "name", types.Type{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := reg.AttributeOf(tt.object, tt.attr)
			if ok != tt.wantOk {
				t.Fatalf("AttributeOf(%s, %s) ok = %v, want %v", tt.object, tt.attr, ok, tt.wantOk)
			}
			if got != tt.want {
				t.Errorf("AttributeOf(%s, %s) = %+v, want %+v", tt.object, tt.attr, got, tt.want)
			}
		})
	}
}

func TestDescriptor_Stateful(t *testing.T) {
	aws := AWSFunctions()
	if !aws["aws.partition"].Stateful() {
		t.Errorf("aws.partition should be stateful")
	}
	if aws["aws.parseArn"].Stateful() {
		t.Errorf("aws.parseArn should be pure")
	}
}
