package orchestration

import (
	"fmt"
	"sort"
)

// TaskDAG is the directed acyclic graph of task-to-task dependencies
// derived from template references. Edges point from a referenced task to
// the task referencing it. Node order follows plan order so layering is
// deterministic.
type TaskDAG struct {
	order []string
	nodes map[string]*dagNode
}

type dagNode struct {
	name         string
	dependencies []string
	dependents   []string
}

// NewTaskDAG creates an empty DAG
func NewTaskDAG() *TaskDAG {
	return &TaskDAG{
		nodes: make(map[string]*dagNode),
	}
}

// AddTask adds a task with its dependencies. Adding an existing task
// replaces its dependency list.
func (d *TaskDAG) AddTask(name string, dependencies []string) {
	if existing, ok := d.nodes[name]; ok {
		existing.dependencies = dependencies
	} else {
		d.nodes[name] = &dagNode{
			name:         name,
			dependencies: dependencies,
		}
		d.order = append(d.order, name)
	}
	d.rebuildDependents()
}

// rebuildDependents recomputes the reverse edges for all nodes
func (d *TaskDAG) rebuildDependents() {
	for _, node := range d.nodes {
		node.dependents = nil
	}
	for _, name := range d.order {
		for _, dep := range d.nodes[name].dependencies {
			if depNode, ok := d.nodes[dep]; ok {
				depNode.dependents = append(depNode.dependents, name)
			}
		}
	}
}

// Validate checks that every dependency exists and that the graph has no
// cycles. A cycle is reported as a *CyclicDependencyError naming, in sorted
// order, the tasks on the depth-first search path when the back edge was
// found.
func (d *TaskDAG) Validate() error {
	for _, name := range d.order {
		for _, dep := range d.nodes[name].dependencies {
			if _, ok := d.nodes[dep]; !ok {
				return fmt.Errorf("task %q depends on unknown task %q", name, dep)
			}
		}
	}

	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	for _, name := range d.order {
		if !visited[name] {
			if cycle := d.findCycle(name, visited, inStack); cycle != nil {
				sort.Strings(cycle)
				return &CyclicDependencyError{Tasks: cycle}
			}
		}
	}
	return nil
}

// findCycle runs a depth-first search over dependents and returns the
// members of the recursion stack when a back edge is found.
func (d *TaskDAG) findCycle(name string, visited, inStack map[string]bool) []string {
	visited[name] = true
	inStack[name] = true

	for _, dependent := range d.nodes[name].dependents {
		if !visited[dependent] {
			if cycle := d.findCycle(dependent, visited, inStack); cycle != nil {
				return cycle
			}
		} else if inStack[dependent] {
			var members []string
			for task, on := range inStack {
				if on {
					members = append(members, task)
				}
			}
			return members
		}
	}

	inStack[name] = false
	return nil
}

// ExecutionLevels partitions tasks into a topological layering: level 0 is
// every task with no dependencies, level N+1 is every task whose
// dependencies all sit in levels <= N. Tasks within a level keep their
// plan order. Callers must Validate first; a cyclic graph yields a partial
// layering.
func (d *TaskDAG) ExecutionLevels() [][]string {
	placed := make(map[string]bool)
	var levels [][]string

	for len(placed) < len(d.order) {
		var level []string
		for _, name := range d.order {
			if placed[name] {
				continue
			}
			ready := true
			for _, dep := range d.nodes[name].dependencies {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, name := range level {
			placed[name] = true
		}
		levels = append(levels, level)
	}
	return levels
}

// Statistics summarizes the DAG shape for observability
type Statistics struct {
	TotalTasks      int
	MaxDependencies int
	MaxDependents   int
	MaxParallelism  int
	Depth           int
}

// Stats computes DAG statistics
func (d *TaskDAG) Stats() Statistics {
	stats := Statistics{TotalTasks: len(d.order)}

	for _, node := range d.nodes {
		if len(node.dependencies) > stats.MaxDependencies {
			stats.MaxDependencies = len(node.dependencies)
		}
		if len(node.dependents) > stats.MaxDependents {
			stats.MaxDependents = len(node.dependents)
		}
	}

	levels := d.ExecutionLevels()
	stats.Depth = len(levels)
	for _, level := range levels {
		if len(level) > stats.MaxParallelism {
			stats.MaxParallelism = len(level)
		}
	}
	return stats
}
