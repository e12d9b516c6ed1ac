package depgraph

import (
	"context"
	"fmt"
)

// Result records the outcome of one artifact's planned action.
type Result struct {
	Name   string
	Action Action
	Err    error
}

type ExecuteOptions struct {
	// Publish must match the option the plan was computed with; a publish
	// decision only runs when both agree.
	Publish bool
}

// Execute runs each artifact's planned action in dependency order: no
// artifact's action begins before every dependency's action has completed.
// The first failure aborts the remainder of the plan; the results so far
// are returned alongside the error. Nothing at this layer retries.
func (g *Graph) Execute(ctx context.Context, plan *Plan, opts ExecuteOptions) ([]Result, error) {
	results := make([]Result, 0, len(plan.Order))

	for _, name := range plan.Order {
		d := plan.Decisions[name]
		if !d.NeedsWork() {
			continue
		}

		a, ok := g.byName[name]
		if !ok {
			return results, fmt.Errorf("%w: plan references unknown artifact %q", ErrConfig, name)
		}

		if err := g.executeOne(ctx, a, d, opts); err != nil {
			results = append(results, Result{Name: name, Action: d.Action, Err: err})
			return results, fmt.Errorf("reconciling %q: %w", name, err)
		}
		results = append(results, Result{Name: name, Action: d.Action})
	}

	return results, nil
}

func (g *Graph) executeOne(ctx context.Context, a Artifact, d Decision, opts ExecuteOptions) error {
	switch d.Action {
	case ActionBuild, ActionTrigger:
		if err := a.Build(ctx); err != nil {
			return err
		}
	case ActionRetrieve:
		if err := a.Retrieve(ctx, g.info); err != nil {
			return err
		}
	case ActionNone:
		// Publish-only decision.
	}

	if d.Publish && opts.Publish && d.Action != ActionRetrieve {
		if err := a.Publish(ctx); err != nil {
			return fmt.Errorf("publishing: %w", err)
		}
	}
	return nil
}
