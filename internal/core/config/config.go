// Package config provides configuration management for the ruleforge CLI.
package config

import (
	"fmt"
	"strings"
)

// GeneratorConfig holds the settings for one code-generation run.
type GeneratorConfig struct {
	// RulesPath is the rule-set JSON document to compile.
	RulesPath string

	// OutPath receives the generated source. Empty means stdout.
	OutPath string

	// RuntimeCrate is the Rust path of the runtime support crate linked
	// by the generated code.
	RuntimeCrate string

	// ResolverName is the generated resolver struct name.
	ResolverName string

	// IncludeAWSFunctions registers the aws.* function family alongside
	// the standard functions.
	IncludeAWSFunctions bool

	// CacheDB is the path of the sqlite generation-manifest database.
	// Empty disables manifest caching.
	CacheDB string
}

// DefaultGeneratorConfig returns configuration with default values.
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		RuntimeCrate:        "crate::endpoint_lib",
		ResolverName:        "EndpointResolver",
		IncludeAWSFunctions: true,
	}
}

// validateConfig checks the settings a run cannot proceed without.
func validateConfig(cfg *GeneratorConfig) error {
	if cfg.RulesPath == "" {
		return fmt.Errorf("rules path is required")
	}
	if cfg.ResolverName == "" {
		return fmt.Errorf("resolver_name must not be empty")
	}
	if !isRustIdent(cfg.ResolverName) {
		return fmt.Errorf("resolver_name %q is not a valid identifier", cfg.ResolverName)
	}
	if cfg.RuntimeCrate == "" {
		return fmt.Errorf("runtime_crate must not be empty")
	}
	if !isRustPath(cfg.RuntimeCrate) {
		return fmt.Errorf("runtime_crate %q is not a valid crate path", cfg.RuntimeCrate)
	}
	return nil
}

// isRustIdent reports whether s is a plain ASCII identifier.
func isRustIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// isRustPath reports whether s is a `::`-separated chain of identifiers.
func isRustPath(s string) bool {
	for _, part := range strings.Split(s, "::") {
		if !isRustIdent(part) {
			return false
		}
	}
	return true
}
