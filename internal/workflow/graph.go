package workflow

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TaskKind identifies which registered executor handles a node.
type TaskKind string

const (
	TaskKindSchedule TaskKind = "schedule"
	TaskKindGenerate TaskKind = "generate"
	TaskKindNotify   TaskKind = "notify"
)

// Node is a single unit of work in a graph. Params may hold literal
// values or "{{taskId}}" placeholder references resolved at dispatch
// time against the outputs of completed tasks.
type Node struct {
	ID        string
	Kind      TaskKind
	Params    map[string]any
	DependsOn []string

	// Timeout bounds a single execution of this node. Zero means the
	// node inherits only the instance context.
	Timeout time.Duration
}

// Graph is a static workflow definition: nodes indexed by id plus the
// dependency edges declared on each node. Graphs are validated once at
// registration, never re-parsed per launch.
type Graph struct {
	ID    string
	Name  string
	Nodes map[string]*Node
}

// Registry holds validated graph definitions.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
}

func NewRegistry() *Registry {
	return &Registry{graphs: make(map[string]*Graph)}
}

// Register validates the graph and makes it available for launching.
// Validation covers node identity, dependency references, and
// acyclicity; a graph that fails any check is not stored.
func (r *Registry) Register(g *Graph) error {
	if g == nil || g.ID == "" {
		return &Error{Code: CodeInvalidGraph, Message: "graph must have an id"}
	}
	if len(g.Nodes) == 0 {
		return &Error{Code: CodeInvalidGraph, Message: fmt.Sprintf("graph %q has no nodes", g.ID)}
	}
	for id, n := range g.Nodes {
		if n == nil || n.ID == "" || n.ID != id {
			return &Error{Code: CodeInvalidGraph, Message: fmt.Sprintf("graph %q: node key %q does not match node id", g.ID, id)}
		}
		if n.Kind == "" {
			return &Error{Code: CodeInvalidGraph, TaskID: id, Message: "node has no kind"}
		}
		for _, dep := range n.DependsOn {
			if dep == id {
				return &Error{Code: CodeInvalidGraph, TaskID: id, Message: "node depends on itself"}
			}
			if _, ok := g.Nodes[dep]; !ok {
				return &Error{Code: CodeInvalidGraph, TaskID: id, Message: fmt.Sprintf("unknown dependency %q", dep)}
			}
		}
	}
	if cycle := detectCycle(g); len(cycle) > 0 {
		return &Error{
			Code:    CodeCycleDetected,
			Message: fmt.Sprintf("graph %q contains a cycle: %s", g.ID, strings.Join(cycle, " -> ")),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[g.ID] = g
	return nil
}

// Get returns the registered graph or a GraphNotFound error.
func (r *Registry) Get(id string) (*Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[id]
	if !ok {
		return nil, &Error{Code: CodeGraphNotFound, Message: fmt.Sprintf("graph %q is not registered", id)}
	}
	return g, nil
}

// detectCycle runs DFS with color marking over the dependency edges.
// White (0) = unvisited, gray (1) = on the current path, black (2) =
// done. A gray-to-gray edge is a back edge; the cycle path is
// reconstructed through the parent map.
func detectCycle(g *Graph) []string {
	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string, len(g.Nodes))

	var dfs func(id string) []string
	dfs = func(id string) []string {
		color[id] = 1
		for _, dep := range g.Nodes[id].DependsOn {
			switch color[dep] {
			case 0:
				parent[dep] = id
				if cycle := dfs(dep); cycle != nil {
					return cycle
				}
			case 1:
				cycle := []string{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				return append([]string{dep}, cycle...)
			}
		}
		color[id] = 2
		return nil
	}

	for id := range g.Nodes {
		if color[id] == 0 {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
