package cmd

import (
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:     "ruleforge",
	Short:   "Ruleforge endpoint rule-set compiler",
	Long:    `Ruleforge compiles declarative endpoint rule sets into imperative resolver source with ownership-aware value handling.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
}

func Execute() error {
	return rootCmd.Execute()
}
