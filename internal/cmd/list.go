package cmd

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/phasebuild/internal/hooks"
	"github.com/Iron-Ham/phasebuild/internal/orchestrator"
	"github.com/Iron-Ham/phasebuild/internal/plugins"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [phase...]",
	Short: "Show the operations a run would execute",
	Long: `List the operations "phasebuild run" would create for the same phases and
project selection, in execution order, with the operations each one waits for.
Nothing is executed.`,
	RunE: runList,
}

var (
	listTo   []string
	listOnly []string
)

func init() {
	listCmd.Flags().StringSliceVarP(&listTo, "to", "t", nil, "Select projects and their dependencies")
	listCmd.Flags().StringSliceVarP(&listOnly, "only", "o", nil, "Select only the named projects")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Close() }()

	o, err := orchestrator.New(orchestrator.Options{
		Workspace:   env.workspace,
		Phases:      args,
		To:          listTo,
		Only:        listOnly,
		Incremental: env.cfg.Execution.Incremental,
		Clean:       env.cfg.Execution.Clean,
		Plugins:     []hooks.Plugin{plugins.PhasedOperations{}},
		Logger:      env.logger,
	})
	if err != nil {
		return err
	}

	g, err := o.Plan(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if g.Len() == 0 {
		fmt.Fprintln(out, "No operations selected")
		return nil
	}
	for _, i := range g.TopologicalOrder() {
		fmt.Fprintln(out, g.Operation(i).Name)
		deps := g.Dependencies(i)
		if len(deps) == 0 {
			continue
		}
		names := make([]string, len(deps))
		for k, d := range deps {
			names[k] = g.Operation(d).Name
		}
		fmt.Fprintf(out, "    after: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(out, "\n%d operations, %d projects, %d phases\n", g.Len(), len(o.Projects()), len(o.Phases()))
	return nil
}
