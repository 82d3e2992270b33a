package lower

import (
	"fmt"
	"slices"
	"strings"
)

// Inherit declares that Child inherits from Parent.
type Inherit struct {
	Child  string `json:"child" yaml:"child"`
	Parent string `json:"parent" yaml:"parent"`
}

// inheritGraph maps child -> parents.
type inheritGraph map[string][]string

func buildInheritGraph(decls []Inherit) inheritGraph {
	g := make(inheritGraph)
	for _, d := range decls {
		if !slices.Contains(g[d.Child], d.Parent) {
			g[d.Child] = append(g[d.Child], d.Parent)
		}
		if g[d.Parent] == nil {
			g[d.Parent] = []string{}
		}
	}
	return g
}

// FindCycles returns every inheritance cycle, each as a path that starts
// and ends on the same name. An acyclic hierarchy returns nil.
func FindCycles(decls []Inherit) [][]string {
	g := buildInheritGraph(decls)
	var cycles [][]string
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || slices.Contains(g[scc[0]], scc[0]) {
			cycles = append(cycles, cyclePath(scc, g))
		}
	}
	return cycles
}

// tarjanSCC finds strongly connected components. Nodes are visited in
// sorted order so results are stable.
func tarjanSCC(g inheritGraph) [][]string {
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

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
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
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside scc from its first member back to itself.
func cyclePath(scc []string, g inheritGraph) []string {
	in := make(map[string]bool, len(scc))
	for _, n := range scc {
		in[n] = true
	}
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{}
	for cur := start; ; {
		visited[cur] = true
		next := ""
		for _, w := range g[cur] {
			if in[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		cur = next
	}
}

func formatCycle(path []string) string {
	return fmt.Sprintf("inheritance cycle: %s", strings.Join(path, " -> "))
}

// canonicalTarget prefixes target with its ancestors, root first:
// with B inheriting A, "B" becomes "A.B". Targets on a cycle, or with
// more than one parent, are returned unchanged.
func canonicalTarget(target string, g inheritGraph) string {
	parts := []string{target}
	seen := map[string]bool{target: true}
	for cur := target; ; {
		parents := g[cur]
		if len(parents) != 1 {
			break
		}
		p := parents[0]
		if seen[p] {
			return target
		}
		seen[p] = true
		parts = append(parts, p)
		cur = p
	}
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}
