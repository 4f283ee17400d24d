package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var explainJSON bool

var explainCmd = &cobra.Command{
	Use:   "explain <task>",
	Short: "Show how a task would be routed, without executing it",
	Long: `Explain scores every registered agent against the task and prints the
ranked candidate list. Nothing is executed and no history is recorded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().BoolVar(&explainJSON, "json", false, "emit the explanation as JSON")
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(configPath)
	if err != nil {
		return err
	}

	explanation := rt.taskRouter.ExplainRouting(strings.Join(args, " "), nil)

	if explainJSON {
		return json.NewEncoder(os.Stdout).Encode(explanation)
	}

	fmt.Printf("task: %s\nthreshold: %.2f\n\n", explanation.Task, explanation.Threshold)
	for _, c := range explanation.Candidates {
		marker := " "
		if c.MeetsThreshold {
			marker = "*"
		}
		fmt.Printf("%s %-26s %-12s %.2f\n", marker, c.AgentID, c.Role, c.Confidence)
	}
	return nil
}
