// Package cmd provides the metapersona CLI: route and execute tasks, explain
// routing decisions, list registered agents, and run distributed plans.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "metapersona",
	Short: "MetaPersona - multi-agent task routing and delegation",
	Long: `MetaPersona routes tasks across a roster of specialized agents,
delegating, critiquing, and merging their outputs.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "metapersona.yaml",
		"path to the YAML configuration file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
