package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	planParallel bool
	planExecute  bool
	planJSON     bool
)

var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Generate, fragment, and optionally execute a distributed plan",
	Long: `Plan decomposes the request into steps, fragments them, negotiates an
owning agent per fragment, and (with --execute) runs them.

Examples:
  metapersona plan "prepare the quarterly market report"
  metapersona plan --execute --parallel "prepare the quarterly market report"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planParallel, "parallel", false, "execute fragments through the parallel engine")
	planCmd.Flags().BoolVar(&planExecute, "execute", false, "execute the plan after assignment")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "emit fragments as JSON")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(configPath)
	if err != nil {
		return err
	}
	if rt.planning == nil {
		return errors.New("no planning agent configured")
	}

	ctx := context.Background()
	request := strings.Join(args, " ")

	plan := rt.planner.GeneratePlan(ctx, request, rt.planning, nil)
	fragments := rt.planner.FragmentPlan(plan)
	fragments = rt.planner.AssignFragments(fragments, nil)

	if planExecute {
		fragments = rt.planner.ExecuteDistributedPlan(ctx, fragments, nil, planParallel)
	}

	if planJSON {
		return json.NewEncoder(os.Stdout).Encode(fragments)
	}

	fmt.Printf("plan %s (%d fragments)\n\n", plan.PlanID, len(fragments))
	for i, f := range fragments {
		fmt.Printf("%d. [%s] %s -> %s\n", i+1, f.State, f.Step, f.AssignedAgent)
		if result, ok := f.Result.(string); ok && result != "" {
			fmt.Printf("   %s\n", result)
		}
	}
	return nil
}
