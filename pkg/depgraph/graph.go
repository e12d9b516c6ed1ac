package depgraph

import (
	"fmt"
)

// Graph is the full artifact set plus the informational dependency cache
// for one run. It is assembled once, validated eagerly, and immutable for
// the rest of the run.
type Graph struct {
	artifacts []Artifact // assembly order, for listing
	byName    map[string]Artifact
	order     []string // topological order, dependencies first
	info      *InfoCache
}

// New validates the artifact set and returns the assembled graph. It fails
// with a configuration error before any hash work when a dependency
// reference does not resolve, an informational key has no fetcher, a name
// is duplicated, or the dependency relation has a cycle.
func New(artifacts []Artifact, info *InfoCache) (*Graph, error) {
	g := &Graph{
		artifacts: artifacts,
		byName:    make(map[string]Artifact, len(artifacts)),
		info:      info,
	}

	for _, a := range artifacts {
		if _, dup := g.byName[a.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate artifact %q", ErrConfig, a.Name())
		}
		g.byName[a.Name()] = a
	}

	for _, a := range artifacts {
		for _, dep := range a.Dependencies() {
			if _, ok := g.byName[dep]; !ok {
				return nil, fmt.Errorf("%w: artifact %q depends on unknown artifact %q", ErrConfig, a.Name(), dep)
			}
		}
		for op, key := range a.InformationalDeps() {
			if !info.Has(key) {
				return nil, fmt.Errorf("%w: artifact %q operation %q references unknown informational dependency %q", ErrConfig, a.Name(), op, key)
			}
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// Artifacts returns every artifact name in assembly order.
func (g *Graph) Artifacts() []string {
	names := make([]string, len(g.artifacts))
	for i, a := range g.artifacts {
		names[i] = a.Name()
	}
	return names
}

// Lookup returns the artifact with the given name.
func (g *Graph) Lookup(name string) (Artifact, bool) {
	a, ok := g.byName[name]
	return a, ok
}

// Info returns the run's informational dependency cache.
func (g *Graph) Info() *InfoCache {
	return g.info
}

// topoSort orders artifact names dependencies-first using depth-first
// search with the classic three node states: unvisited, in the current
// recursion stack, and done. Finding a node already on the stack means
// the dependency relation has a cycle.
func (g *Graph) topoSort() ([]string, error) {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.artifacts))
	order := make([]string, 0, len(g.artifacts))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case onStack:
			return fmt.Errorf("%w: dependency cycle involving artifact %q", ErrConfig, name)
		}
		state[name] = onStack

		for _, dep := range g.byName[name].Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}

		state[name] = done
		order = append(order, name)
		return nil
	}

	// Iterate assembly order, not the map, so the result is stable.
	for _, a := range g.artifacts {
		if err := visit(a.Name()); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// subset returns the names of the targets plus all transitive dependencies,
// in topological order. An empty target list selects the whole graph.
func (g *Graph) subset(targets []string) ([]string, error) {
	if len(targets) == 0 {
		return g.order, nil
	}

	needed := make(map[string]bool)
	var mark func(name string) error
	mark = func(name string) error {
		if needed[name] {
			return nil
		}
		a, ok := g.byName[name]
		if !ok {
			return fmt.Errorf("%w: unknown artifact %q", ErrConfig, name)
		}
		needed[name] = true
		for _, dep := range a.Dependencies() {
			if err := mark(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range targets {
		if err := mark(t); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(needed))
	for _, name := range g.order {
		if needed[name] {
			out = append(out, name)
		}
	}
	return out, nil
}
