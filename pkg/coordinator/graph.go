package coordinator

import "sort"

// Graph is a dependency adjacency mapping: node → the nodes it depends
// on. It answers the two questions scheduling needs: what can run
// together (parallel groups) and what bounds the total runtime
// (critical path).
type Graph struct {
	deps  map[string][]string
	order []string // insertion order for deterministic output
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{deps: make(map[string][]string)}
}

// AddNode registers a node and its dependencies. Re-adding a node
// replaces its dependency list.
func (g *Graph) AddNode(id string, deps ...string) {
	if _, seen := g.deps[id]; !seen {
		g.order = append(g.order, id)
	}
	g.deps[id] = append([]string(nil), deps...)
}

// ParallelGroups level-partitions the graph: each group contains nodes
// whose dependencies are all in earlier groups. An iteration that makes
// no progress stops, returning the remaining nodes as unschedulable —
// the cycle diagnostic.
func (g *Graph) ParallelGroups() (groups [][]string, unschedulable []string) {
	placed := make(map[string]bool, len(g.deps))
	remaining := len(g.deps)

	for remaining > 0 {
		var level []string
		for _, id := range g.order {
			if placed[id] {
				continue
			}
			ready := true
			for _, dep := range g.deps[id] {
				// Dependencies outside the graph are treated as satisfied;
				// the store gates on their actual completion.
				if _, known := g.deps[dep]; known && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			break // no progress: the rest participate in a cycle
		}
		sort.Strings(level)
		groups = append(groups, level)
		for _, id := range level {
			placed[id] = true
		}
		remaining -= len(level)
	}

	for _, id := range g.order {
		if !placed[id] {
			unschedulable = append(unschedulable, id)
		}
	}
	sort.Strings(unschedulable)
	return groups, unschedulable
}

// CriticalPath returns the longest dependency chain, from the deepest
// prerequisite to the final dependent. Cyclic portions are ignored.
func (g *Graph) CriticalPath() []string {
	memo := make(map[string][]string, len(g.deps))
	onStack := make(map[string]bool, len(g.deps))

	var longestTo func(id string) []string
	longestTo = func(id string) []string {
		if path, ok := memo[id]; ok {
			return path
		}
		if onStack[id] {
			return nil // cycle guard
		}
		onStack[id] = true
		defer func() { onStack[id] = false }()

		var best []string
		for _, dep := range g.deps[id] {
			if _, known := g.deps[dep]; !known {
				continue
			}
			if path := longestTo(dep); len(path) > len(best) {
				best = path
			}
		}
		path := append(append([]string(nil), best...), id)
		memo[id] = path
		return path
	}

	var critical []string
	for _, id := range g.order {
		if path := longestTo(id); len(path) > len(critical) {
			critical = path
		}
	}
	return critical
}
