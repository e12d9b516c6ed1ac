package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/timothygachengo/riju/pkg/artifacts"
	"github.com/timothygachengo/riju/pkg/config"
	"github.com/timothygachengo/riju/pkg/container"
	"github.com/timothygachengo/riju/pkg/depgraph"
	"github.com/timothygachengo/riju/pkg/remote"
	"github.com/timothygachengo/riju/pkg/shell"
	"github.com/timothygachengo/riju/pkg/store"
)

func newDepsCmd() *cobra.Command {
	var (
		flagList    bool
		flagPublish bool
		flagYes     bool
	)

	depsCmd := &cobra.Command{
		Use:   "deps [targets...]",
		Short: "Reconcile build artifacts against their declared inputs",
		Long: `Resolves each artifact's local, desired, and published hashes and applies
the cheapest sufficient action per artifact: nothing, retrieve the published
copy, or build locally. Targets name artifacts (e.g. image:lang-python);
their transitive dependencies are reconciled too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cmd, args, flagList, flagPublish, flagYes)
		},
	}

	depsCmd.Flags().BoolVar(&flagList, "list", false, "list artifact names and exit")
	depsCmd.Flags().BoolVar(&flagPublish, "publish", false, "publish artifacts after a successful build")
	depsCmd.Flags().BoolVar(&flagYes, "yes", false, "skip the confirmation prompt")

	return depsCmd
}

func runDeps(cmd *cobra.Command, targets []string, list, publish, yes bool) error {
	if !list && len(targets) == 0 {
		_ = cmd.Usage()
		return fmt.Errorf("no targets given (use --list to see artifact names)")
	}

	graph, err := buildGraph()
	if err != nil {
		return err
	}

	if list {
		names := graph.Artifacts()
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d artifact(s)\n", len(names))
		return nil
	}

	plan, err := graph.Plan(cmd.Context(), targets, depgraph.PlanOptions{Publish: publish})
	if err != nil {
		return err
	}

	pending := printPlan(cmd, plan)
	if pending == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Everything up to date")
		return nil
	}

	if !yes {
		var confirmed bool
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Apply %d action(s)?", pending)).
					Value(&confirmed),
			),
		).Run()
		if err != nil {
			return fmt.Errorf("confirmation prompt failed: %w", err)
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
	}

	results, err := graph.Execute(cmd.Context(), plan, depgraph.ExecuteOptions{Publish: publish})
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "failed %s %s: %v\n", r.Action, r.Name, r.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "done %s %s\n", r.Action, r.Name)
	}
	return err
}

// printPlan writes one line per artifact needing work and returns how many
// actions are pending.
func printPlan(cmd *cobra.Command, plan *depgraph.Plan) int {
	pending := 0
	for _, name := range plan.Order {
		d := plan.Decisions[name]
		if !d.NeedsWork() {
			continue
		}
		pending++
		action := d.Action.String()
		if d.Publish {
			if d.Action == depgraph.ActionNone {
				action = "publish"
			} else {
				action += "+publish"
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-24s local=%s desired=%s published=%s\n",
			action, name, d.Local.Short(8), d.Desired.Short(8), d.Published.Short(8))
	}
	return pending
}

func buildGraph() (*depgraph.Graph, error) {
	langs, err := config.LoadLanguages(filepath.Join(ProjectRoot, Cfg.Paths.Langs))
	if err != nil {
		return nil, err
	}

	engine, err := container.DetectEngine()
	if err != nil {
		return nil, err
	}

	runner := shell.New(ProjectRoot)

	return artifacts.BuildGraph(artifacts.Deps{
		Config: Cfg,
		Langs:  langs,
		Root:   ProjectRoot,
		Engine: engine,
		Remote: remote.NewClient(Cfg.Registry.Bucket, runner),
		Store:  store.New(filepath.Join(ProjectRoot, store.DefaultRoot)),
		Runner: runner,
	})
}
