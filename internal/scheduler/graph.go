// Package scheduler holds the task dependency DAG and each task's lifecycle
// state. It answers the one question the pipeline keeps asking: which tasks
// became ready now that this one merged or failed?
package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/titabash/kugutsu/internal/task"
)

// CycleError reports circular dependencies. Every minimal cycle found is
// included, not just the first.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	paths := make([]string, len(e.Cycles))
	for i, cycle := range e.Cycles {
		paths[i] = strings.Join(cycle, " -> ")
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(paths, "; "))
}

// MissingDependencyError indicates a referenced dependency doesn't exist.
type MissingDependencyError struct {
	Task       string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on non-existent task %q", e.Task, e.Dependency)
}

// Graph is the task dependency DAG. Edges point from a task to each task it
// depends on; the inverse edge set makes dependent lookup O(|dependents|).
type Graph struct {
	nodes map[string]bool

	// edges["app-shell"] = ["project-setup", "config"]
	edges map[string][]string

	// dependents["config"] = ["app-shell", "deck-list"]
	dependents map[string][]string
}

// NewGraph constructs a dependency graph from tasks. Returns
// MissingDependencyError or CycleError when the task list is not a DAG.
func NewGraph(tasks []*task.Task) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]bool),
		edges:      make(map[string][]string),
		dependents: make(map[string][]string),
	}

	for _, t := range tasks {
		g.nodes[t.ID] = true
	}

	for _, t := range tasks {
		g.edges[t.ID] = make([]string, len(t.Dependencies))
		copy(g.edges[t.ID], t.Dependencies)

		for _, dep := range t.Dependencies {
			if !g.nodes[dep] {
				return nil, &MissingDependencyError{
					Task:       t.ID,
					Dependency: dep,
				}
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return nil, &CycleError{Cycles: cycles}
	}

	return g, nil
}

// Dependencies returns the direct dependencies of a task.
func (g *Graph) Dependencies(taskID string) []string {
	deps := g.edges[taskID]
	result := make([]string, len(deps))
	copy(result, deps)
	return result
}

// Dependents returns tasks that directly depend on the given task.
func (g *Graph) Dependents(taskID string) []string {
	deps := g.dependents[taskID]
	result := make([]string, len(deps))
	copy(result, deps)
	return result
}

// TransitiveDependents returns every task reachable through dependent edges,
// sorted for deterministic reporting.
func (g *Graph) TransitiveDependents(taskID string) []string {
	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		for _, dep := range g.dependents[id] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(taskID)

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// DetectCycles finds every minimal dependency cycle using recursion-stack
// DFS. Each cycle path is returned closed (first node repeated at the end);
// rotations of an already-reported cycle are suppressed.
func (g *Graph) DetectCycles() [][]string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // fully explored
	)

	color := make(map[string]int)
	var stack []string
	var cycles [][]string
	reported := make(map[string]bool)

	var dfs func(node string)
	dfs = func(node string) {
		color[node] = gray
		stack = append(stack, node)

		deps := make([]string, len(g.edges[node]))
		copy(deps, g.edges[node])
		sort.Strings(deps)

		for _, dep := range deps {
			switch color[dep] {
			case gray:
				// The cycle is the stack segment from dep to node.
				start := 0
				for i, id := range stack {
					if id == dep {
						start = i
						break
					}
				}
				cycle := append([]string{}, stack[start:]...)
				cycle = append(cycle, dep)
				if key := canonicalCycle(cycle); !reported[key] {
					reported[key] = true
					cycles = append(cycles, cycle)
				}
			case white:
				dfs(dep)
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = black
	}

	nodes := make([]string, 0, len(g.nodes))
	for node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		if color[node] == white {
			dfs(node)
		}
	}

	return cycles
}

// canonicalCycle keys a closed cycle path by its rotation starting at the
// smallest node, so A->B->A and B->A->B collapse to one report.
func canonicalCycle(cycle []string) string {
	// Drop the closing repeat before rotating.
	open := cycle[:len(cycle)-1]
	minIdx := 0
	for i, id := range open {
		if id < open[minIdx] {
			minIdx = i
		}
	}
	rotated := make([]string, 0, len(open))
	rotated = append(rotated, open[minIdx:]...)
	rotated = append(rotated, open[:minIdx]...)
	return strings.Join(rotated, "->")
}
