package feed

import (
	"fmt"
	"strings"
)

// graph is the derived execution plan for the current registration set. It is
// a pure function of the registry and is discarded whenever registration
// changes; it holds its own source map so an in-flight refresh keeps a
// consistent view even if the registry mutates underneath it.
type graph struct {
	byID   map[string]Source
	sorted []Source
	// dependents maps a source id to the ids that directly declare it as a
	// dependency. Used only for reactive partial recomputation.
	dependents map[string][]string
}

const (
	colorUnvisited = iota
	colorInProgress
	colorDone
)

// buildGraph validates dependencies, topologically sorts the sources, and
// derives the reverse-dependency index. order is the registration order and
// is the tie-break between independent sources.
func buildGraph(order []string, sources map[string]Source) (*graph, error) {
	byID := make(map[string]Source, len(sources))
	for id, src := range sources {
		byID[id] = src
	}

	for _, id := range order {
		for _, dep := range dependenciesOf(byID[id]) {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("source %q depends on unregistered source %q", id, dep)
			}
		}
	}

	color := make(map[string]int, len(order))
	sorted := make([]Source, 0, len(order))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case colorDone:
			return nil
		case colorInProgress:
			start := 0
			for i, p := range path {
				if p == id {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, path[start:]...), id)
			return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
		}
		color[id] = colorInProgress
		path = append(path, id)
		for _, dep := range dependenciesOf(byID[id]) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = colorDone
		sorted = append(sorted, byID[id])
		return nil
	}

	for _, id := range order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	dependents := make(map[string][]string)
	for _, id := range order {
		for _, dep := range dependenciesOf(byID[id]) {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	return &graph{byID: byID, sorted: sorted, dependents: dependents}, nil
}

// transitiveDependents returns every source reachable from id through the
// reverse-dependency index, in topological order. Diamond-shaped dependents
// are visited once.
func (g *graph) transitiveDependents(id string) []Source {
	seen := make(map[string]bool)
	var mark func(string)
	mark = func(id string) {
		for _, dep := range g.dependents[id] {
			if !seen[dep] {
				seen[dep] = true
				mark(dep)
			}
		}
	}
	mark(id)

	out := make([]Source, 0, len(seen))
	for _, src := range g.sorted {
		if seen[src.ID()] {
			out = append(out, src)
		}
	}
	return out
}
