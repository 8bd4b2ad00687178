package cmd

import (
	"crypto/sha256"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/ruleforge/internal/compiler"
	"github.com/solatis/ruleforge/internal/core/cache"
	"github.com/solatis/ruleforge/internal/core/config"
	"github.com/solatis/ruleforge/internal/rules"
	"github.com/solatis/ruleforge/internal/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compile a rule set into resolver source",
	RunE:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().String("rules", "", "rule-set JSON document to compile")
	generateCmd.Flags().String("out", "", "output file (default stdout)")
	generateCmd.Flags().String("resolver-name", "", "generated resolver struct name")
	generateCmd.Flags().String("runtime-crate", "", "runtime support crate path")
	generateCmd.Flags().Bool("no-aws-functions", false, "register only the standard function family")
	generateCmd.Flags().String("cache-db", "", "sqlite generation-manifest database")
	generateCmd.Flags().Bool("force", false, "regenerate even when the manifest has a matching run")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadGeneratorConfig(cmd)
	if err != nil {
		return err
	}

	doc, err := os.ReadFile(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to read rule set: %w", err)
	}

	out, err := compile(doc, cfg)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	ruleSetHash := fmt.Sprintf("%x", sha256.Sum256(doc))
	outputHash := fmt.Sprintf("%x", sha256.Sum256([]byte(out.Source)))

	if cfg.CacheDB != "" {
		manifest, err := cache.Open(cfg.CacheDB)
		if err != nil {
			return fmt.Errorf("failed to open manifest: %w", err)
		}
		defer manifest.Close()

		if !force && cfg.OutPath != "" {
			prev, ok, err := manifest.Lookup(ruleSetHash)
			if err != nil {
				return err
			}
			if ok && prev.OutputHash == outputHash && outputCurrent(cfg.OutPath, outputHash) {
				log.Printf("rule set unchanged since run %s, skipping write", prev.RunID)
				return nil
			}
		}

		runID := types.NewRunID()
		if err := manifest.Record(runID, ruleSetHash, outputHash); err != nil {
			return err
		}
		log.Printf("recorded generation run %s", runID)
	}

	if cfg.OutPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), out.Source)
		return nil
	}
	if err := os.WriteFile(cfg.OutPath, []byte(out.Source), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.Printf("wrote %s (%d shared blocks)", cfg.OutPath, out.SharedBlocks)
	return nil
}

// loadGeneratorConfig merges the config file, environment, and flags.
func loadGeneratorConfig(cmd *cobra.Command) (*config.GeneratorConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("rules") {
		cfg.RulesPath, _ = cmd.Flags().GetString("rules")
	}
	if cmd.Flags().Changed("out") {
		cfg.OutPath, _ = cmd.Flags().GetString("out")
	}
	if cmd.Flags().Changed("resolver-name") {
		cfg.ResolverName, _ = cmd.Flags().GetString("resolver-name")
	}
	if cmd.Flags().Changed("runtime-crate") {
		cfg.RuntimeCrate, _ = cmd.Flags().GetString("runtime-crate")
	}
	if cmd.Flags().Changed("no-aws-functions") {
		noAWS, _ := cmd.Flags().GetBool("no-aws-functions")
		cfg.IncludeAWSFunctions = !noAWS
	}
	if cmd.Flags().Changed("cache-db") {
		cfg.CacheDB, _ = cmd.Flags().GetString("cache-db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// compile runs the full decode/resolve/generate pipeline on a document.
func compile(doc []byte, cfg *config.GeneratorConfig) (*compiler.Output, error) {
	rs, err := rules.Decode(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rule set: %w", err)
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}

	if err := rules.Resolve(rs, registry); err != nil {
		return nil, fmt.Errorf("failed to resolve rule set: %w", err)
	}

	out, err := compiler.Compile(rs, registry, compiler.Options{
		ResolverName: cfg.ResolverName,
		RuntimeCrate: cfg.RuntimeCrate,
	})
	if err != nil {
		return nil, fmt.Errorf("compilation failed: %w", err)
	}
	return out, nil
}

func newRegistry(cfg *config.GeneratorConfig) (*compiler.Registry, error) {
	sources := []map[string]compiler.Descriptor{compiler.StandardFunctions()}
	if cfg.IncludeAWSFunctions {
		sources = append(sources, compiler.AWSFunctions())
	}
	registry, err := compiler.NewRegistry(sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to build function registry: %w", err)
	}
	return registry, nil
}

// outputCurrent reports whether the file at path still hashes to want.
func outputCurrent(path, want string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)) == want
}
