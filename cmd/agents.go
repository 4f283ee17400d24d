package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var agentsJSON bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the registered agents",
	RunE:  runAgents,
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "emit descriptors as JSON")
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(configPath)
	if err != nil {
		return err
	}

	descriptors := rt.registry.Descriptors()

	if agentsJSON {
		return json.NewEncoder(os.Stdout).Encode(descriptors)
	}

	fmt.Printf("%-26s %-12s %-7s %s\n", "AGENT", "ROLE", "SKILLS", "DESCRIPTION")
	for _, d := range descriptors {
		fmt.Printf("%-26s %-12s %-7d %s\n", d.AgentID, d.Role, d.Skills, d.Description)
	}
	return nil
}
