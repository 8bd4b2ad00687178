// internal/compiler/stdlib.go
package compiler

import (
	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Built-in registry sources.
 *
 * StandardFunctions is the generic library every generator build carries;
 * AWSFunctions is the vendor extension. The embedding tool concatenates the
 * sources it wants before compilation; the compiler core does not care
 * which sources exist, only that ids are unique.
 *
 * Call paths point into the runtime support crate shipped alongside the
 * generated code. aws.partition is the one stateful function: its resolver
 * owns a precomputed partition lookup table, initialized once in the
 * generated constructor and passed by reference at each call site.
 */

func stringType() types.Type { return types.Type{Kind: types.KindString} }
func boolType() types.Type   { return types.Type{Kind: types.KindBool} }

func optionalObject(name string) types.Type {
	return types.Type{Kind: types.KindObject, Object: name, Optional: true}
}

// StandardFunctions returns the vendor-neutral function library.
func StandardFunctions() map[string]Descriptor {
	return map[string]Descriptor{
		"isValidHostLabel": {
			Result:   boolType(),
			Params:   []types.Kind{types.KindString, types.KindBool},
			CallPath: "crate::endpoint_lib::host::is_valid_host_label",
		},
		"parseURL": {
			Result: optionalObject("Url"),
			Params: []types.Kind{types.KindString},
			Attributes: map[string]types.Type{
				"scheme":         stringType(),
				"authority":      stringType(),
				"path":           stringType(),
				"normalizedPath": stringType(),
				"isIp":           boolType(),
			},
			CallPath: "crate::endpoint_lib::parse_url::parse_url",
		},
		"uriEncode": {
			Result:   stringType(),
			Params:   []types.Kind{types.KindString},
			CallPath: "crate::endpoint_lib::uri_encode::uri_encode",
		},
	}
}

// AWSFunctions returns the AWS vendor extension library.
func AWSFunctions() map[string]Descriptor {
	return map[string]Descriptor{
		"aws.partition": {
			Result: optionalObject("Partition"),
			Params: []types.Kind{types.KindString},
			Attributes: map[string]types.Type{
				"name":                 stringType(),
				"dnsSuffix":            stringType(),
				"dualStackDnsSuffix":   stringType(),
				"supportsFIPS":         boolType(),
				"supportsDualStack":    boolType(),
				"implicitGlobalRegion": stringType(),
			},
			CallPath:   "crate::endpoint_lib::partition::resolve_partition",
			StateField: "partition_resolver",
			StateType:  "crate::endpoint_lib::partition::PartitionResolver",
			StateInit:  "crate::endpoint_lib::partition::PartitionResolver::new_from_embedded()",
			StateArg:   "&self.partition_resolver",
		},
		"aws.parseArn": {
			Result: optionalObject("Arn"),
			Params: []types.Kind{types.KindString},
			Attributes: map[string]types.Type{
				"partition": stringType(),
				"service":   stringType(),
				"region":    stringType(),
				"accountId": stringType(),
				"resourceId": {
					Kind: types.KindStringArray,
				},
			},
			CallPath: "crate::endpoint_lib::arn::parse_arn",
		},
		"aws.isVirtualHostableS3Bucket": {
			Result:   boolType(),
			Params:   []types.Kind{types.KindString, types.KindBool},
			CallPath: "crate::endpoint_lib::s3::is_virtual_hostable_s3_bucket",
		},
	}
}
