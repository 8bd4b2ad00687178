package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/ruleforge/internal/compiler"
	"github.com/solatis/ruleforge/internal/core/config"
	"github.com/solatis/ruleforge/internal/rules"
)

var lintCmd = &cobra.Command{
	Use:   "lint [rule-set...]",
	Short: "Validate rule-set documents without generating code",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
	lintCmd.Flags().Bool("no-aws-functions", false, "register only the standard function family")
}

func runLint(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("no-aws-functions") {
		noAWS, _ := cmd.Flags().GetBool("no-aws-functions")
		cfg.IncludeAWSFunctions = !noAWS
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range args {
		doc, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}

		rs, err := rules.Decode(doc)
		if err == nil {
			err = rules.Resolve(rs, registry)
		}
		if err == nil {
			_, err = compiler.Compile(rs, registry, compiler.Options{
				ResolverName: cfg.ResolverName,
				RuntimeCrate: cfg.RuntimeCrate,
			})
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d parameters)\n", path, len(rs.Parameters))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d rule sets failed validation", failed, len(args))
	}
	return nil
}
