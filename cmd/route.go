package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/metapersona/core/routing"
)

var (
	routeAgentID string
	routeRole    string
	routeJSON    bool
)

var routeCmd = &cobra.Command{
	Use:   "route <task>",
	Short: "Route a task to the best agent and execute it",
	Long: `Route scores every registered agent against the task, selects the best
match above the confidence threshold, and executes the task.

Examples:
  metapersona route "research the latest LLM routing papers"
  metapersona route --agent writing_agent "draft the launch email"
  metapersona route --role research "investigate competitor pricing"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeAgentID, "agent", "", "route directly to this agent id")
	routeCmd.Flags().StringVar(&routeRole, "role", "", "prefer agents with this role")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "emit the full result as JSON")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(configPath)
	if err != nil {
		return err
	}

	task := strings.Join(args, " ")
	result := rt.taskRouter.ExecuteTask(context.Background(), task, nil, routing.RouteOptions{
		AgentID:       routeAgentID,
		PreferredRole: routeRole,
	})

	if routeJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	if !result.Success {
		fmt.Fprintf(os.Stderr, "task failed (%s): %s\n", result.AgentID, result.Error)
		os.Exit(1)
	}
	fmt.Printf("[%s]\n%s\n", result.AgentID, result.Output)
	return nil
}
