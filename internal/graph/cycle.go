package graph

import (
	"fmt"
	"strings"

	"github.com/facebookarchive/commoner/internal/module"
)

// Cycle is a set of modules that depend on each other, directly or not.
//
// Cycles are legal: the installer runtime hands a partially initialized
// exports object to whichever module asks second. They are reported so
// authors can tell when load order matters.
type Cycle struct {
	Path []string `json:"path"` // ["a", "b", "a"]
}

func (c Cycle) String() string {
	if len(c.Path) == 2 {
		return fmt.Sprintf("module requires itself: %s", c.Path[0])
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(c.Path, " → "))
}

// Cycles finds dependency cycles among mods. Edges to modules outside mods
// are ignored. Results follow the order of mods.
func Cycles(mods []*module.Module) []Cycle {
	g := newDepGraph(mods)

	var cycles []Cycle
	for _, scc := range g.tarjan() {
		if len(scc) > 1 || g.hasSelfLoop(scc[0]) {
			cycles = append(cycles, Cycle{Path: g.cyclePath(scc)})
		}
	}
	return cycles
}

type depGraph struct {
	order []string
	edges map[string][]string
}

func newDepGraph(mods []*module.Module) *depGraph {
	g := &depGraph{edges: make(map[string][]string, len(mods))}
	for _, m := range mods {
		if _, ok := g.edges[m.ID]; !ok {
			g.order = append(g.order, m.ID)
			g.edges[m.ID] = nil
		}
	}
	for _, m := range mods {
		for _, dep := range m.Deps {
			if _, ok := g.edges[dep]; ok {
				g.edges[m.ID] = append(g.edges[m.ID], dep)
			}
		}
	}
	return g
}

func (g *depGraph) hasSelfLoop(id string) bool {
	for _, dep := range g.edges[id] {
		if dep == id {
			return true
		}
	}
	return false
}

// tarjan returns the strongly connected components, visiting nodes in
// insertion order so results are stable.
func (g *depGraph) tarjan() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, id := range g.order {
		if _, seen := indices[id]; !seen {
			strongConnect(id)
		}
	}
	return sccs
}

// cyclePath walks edges inside scc from its earliest member back to itself.
func (g *depGraph) cyclePath(scc []string) []string {
	members := make(map[string]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}
	start := scc[0]
	for _, id := range g.order {
		if members[id] {
			start = id
			break
		}
	}
	if len(scc) == 1 {
		return []string{start, start}
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, dep := range g.edges[current] {
			if members[dep] && (!visited[dep] || dep == start) {
				next = dep
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
