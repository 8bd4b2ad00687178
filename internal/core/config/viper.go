package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*GeneratorConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultGeneratorConfig
	v.SetDefault("generator.runtime_crate", "crate::endpoint_lib")
	v.SetDefault("generator.resolver_name", "EndpointResolver")
	v.SetDefault("generator.aws_functions", true)
	v.SetDefault("generator.cache_db", "")
	v.SetDefault("generator.out", "")

	// Bind environment variables with RULEFORGE_ prefix
	v.SetEnvPrefix("RULEFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &GeneratorConfig{
		RulesPath:           v.GetString("generator.rules"),
		OutPath:             v.GetString("generator.out"),
		RuntimeCrate:        v.GetString("generator.runtime_crate"),
		ResolverName:        v.GetString("generator.resolver_name"),
		IncludeAWSFunctions: v.GetBool("generator.aws_functions"),
		CacheDB:             v.GetString("generator.cache_db"),
	}

	return cfg, nil
}

// Validate checks the loaded configuration after flag overrides have been
// applied.
func (cfg *GeneratorConfig) Validate() error {
	return validateConfig(cfg)
}
