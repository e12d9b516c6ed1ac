package depgraph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/timothygachengo/riju/pkg/hash"
)

// Action is what reconciliation decided for one artifact.
type Action int

const (
	// ActionNone: local state already matches the desired hash.
	ActionNone Action = iota
	// ActionBuild: nothing usable locally or remotely; build from inputs.
	ActionBuild
	// ActionRetrieve: the published artifact matches the desired hash;
	// pulling it is cheaper than rebuilding.
	ActionRetrieve
	// ActionTrigger: a not-hash-checked action trigger (the deploy
	// artifact) fires because a dependency needed real work.
	ActionTrigger
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionBuild:
		return "build"
	case ActionRetrieve:
		return "retrieve"
	case ActionTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// Decision is the planner's verdict for one artifact: the chosen action,
// whether to publish afterwards, and the three hashes it was derived from.
type Decision struct {
	Action    Action
	Publish   bool
	Local     hash.Hash
	Desired   hash.Hash
	Published hash.Hash
}

// NeedsWork reports whether the decision requires any action at all.
func (d Decision) NeedsWork() bool {
	return d.Action != ActionNone || d.Publish
}

// Plan is the full reconciliation decision set, computable without
// executing any action.
type Plan struct {
	// Order lists the planned artifacts in execution (dependency) order.
	Order     []string
	Decisions map[string]Decision
}

type PlanOptions struct {
	// Publish enables the publish action for artifacts whose published
	// hash does not match local state after reconciliation.
	Publish bool
}

// Plan resolves all three hashes for the targeted artifacts (plus their
// transitive dependencies; no targets means the whole graph) and folds them
// through the decision table. Desired hashes resolve in dependency order,
// independent branches concurrently; local and published hashes resolve
// concurrently with everything else. The first failure cancels all
// remaining resolution.
func (g *Graph) Plan(ctx context.Context, targets []string, opts PlanOptions) (*Plan, error) {
	order, err := g.subset(targets)
	if err != nil {
		return nil, err
	}

	res, err := g.resolve(ctx, order)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Order:     order,
		Decisions: make(map[string]Decision, len(order)),
	}

	// Dependency order guarantees every dependency's decision exists by
	// the time an action trigger consults it.
	for _, name := range order {
		a := g.byName[name]
		plan.Decisions[name] = decide(a, res, plan.Decisions, opts)
	}

	return plan, nil
}

// decide applies the reconciliation decision table to one artifact.
func decide(a Artifact, res *resolved, decisions map[string]Decision, opts PlanOptions) Decision {
	name := a.Name()
	d := Decision{
		Local:     res.local[name],
		Desired:   res.desired[name],
		Published: res.published[name],
	}

	switch {
	case d.Desired.IsNone():
		// Not hash-checked: never built or pulled by this mechanism. A pure
		// action trigger still fires when any dependency needed work.
		for _, dep := range a.Dependencies() {
			if decisions[dep].NeedsWork() {
				d.Action = ActionTrigger
				break
			}
		}

	case d.Local == d.Desired:
		// Up to date locally; at most a publish remains.
		d.Publish = opts.Publish && d.Published != d.Local

	case d.Published == d.Desired:
		// The published copy already matches; pulling beats rebuilding.
		d.Action = ActionRetrieve

	default:
		d.Action = ActionBuild
		d.Publish = opts.Publish
	}

	return d
}

// resolved holds the three hash maps produced by resolve. Only resolve's
// goroutines write to it, under mu.
type resolved struct {
	mu        sync.Mutex
	local     map[string]hash.Hash
	desired   map[string]hash.Hash
	published map[string]hash.Hash
}

func (r *resolved) set(m map[string]hash.Hash, name string, h hash.Hash) {
	r.mu.Lock()
	m[name] = h
	r.mu.Unlock()
}

// resolve computes local, published, and desired hashes for every artifact
// in order (a topological ordering). Local and published lookups all run
// concurrently; a desired-hash computation starts as soon as all of its
// dependencies' desired hashes are done.
func (g *Graph) resolve(ctx context.Context, order []string) (*resolved, error) {
	res := &resolved{
		local:     make(map[string]hash.Hash, len(order)),
		desired:   make(map[string]hash.Hash, len(order)),
		published: make(map[string]hash.Hash, len(order)),
	}

	inScope := make(map[string]bool, len(order))
	for _, name := range order {
		inScope[name] = true
	}

	// done[name] closes once name's desired hash is stored.
	done := make(map[string]chan struct{}, len(order))
	for _, name := range order {
		done[name] = make(chan struct{})
	}

	eg, ctx := errgroup.WithContext(ctx)

	for _, name := range order {
		a := g.byName[name]
		signal := done[name]

		eg.Go(func() error {
			h, err := a.LocalHash(ctx)
			if err != nil {
				return fmt.Errorf("resolving local hash of %q: %w", a.Name(), err)
			}
			res.set(res.local, a.Name(), h)
			return nil
		})

		eg.Go(func() error {
			h, err := a.PublishedHash(ctx, g.info)
			if err != nil {
				return fmt.Errorf("resolving published hash of %q: %w", a.Name(), err)
			}
			res.set(res.published, a.Name(), h)
			return nil
		})

		eg.Go(func() error {
			depHashes := make(map[string]hash.Hash, len(a.Dependencies()))
			for _, dep := range a.Dependencies() {
				if !inScope[dep] {
					// Can't happen: subset always includes transitive deps.
					return fmt.Errorf("artifact %q dependency %q missing from plan scope", a.Name(), dep)
				}
				select {
				case <-done[dep]:
				case <-ctx.Done():
					return ctx.Err()
				}
				res.mu.Lock()
				depHashes[dep] = res.desired[dep]
				res.mu.Unlock()
			}

			h, err := a.DesiredHash(ctx, depHashes)
			if err != nil {
				return fmt.Errorf("resolving desired hash of %q: %w", a.Name(), err)
			}
			res.set(res.desired, a.Name(), h)
			close(signal)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
