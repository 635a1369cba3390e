package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle of one task within an instance.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Status is the lifecycle of a whole workflow instance.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the instance can make no further progress.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type taskState struct {
	status      TaskStatus
	err         *Error
	startedAt   *time.Time
	completedAt *time.Time
}

// instance is the runtime state of one launched graph. The outputs map
// is the only channel between tasks: a task's output becomes visible
// there, atomically and at most once, when its completion is committed.
type instance struct {
	id      uuid.UUID
	graph   *Graph
	started time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	status  Status
	tasks   map[string]*taskState
	outputs map[string]any
	err     *Error
}

// InputKey is the reserved output id under which launch params are
// exposed to placeholder references ("{{input.field}}").
const InputKey = "input"

func newInstance(id uuid.UUID, g *Graph, initialParams map[string]any, cancel context.CancelFunc) *instance {
	tasks := make(map[string]*taskState, len(g.Nodes))
	for nodeID := range g.Nodes {
		tasks[nodeID] = &taskState{status: TaskStatusPending}
	}
	outputs := map[string]any{}
	if initialParams != nil {
		outputs[InputKey] = initialParams
	}
	return &instance{
		id:      id,
		graph:   g,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  StatusRunning,
		tasks:   tasks,
		outputs: outputs,
	}
}

// readyNodes returns pending nodes whose declared dependencies have all
// completed. Tasks with no ordering relation between them surface in
// the same frontier and are dispatched concurrently.
func (in *instance) readyNodes() []*Node {
	in.mu.RLock()
	defer in.mu.RUnlock()

	var ready []*Node
	for nodeID, ts := range in.tasks {
		if ts.status != TaskStatusPending {
			continue
		}
		node := in.graph.Nodes[nodeID]
		if in.depsCompletedLocked(node.DependsOn) {
			ready = append(ready, node)
		}
	}
	return ready
}

func (in *instance) depsCompletedLocked(deps []string) bool {
	for _, dep := range deps {
		ts, ok := in.tasks[dep]
		if !ok || ts.status != TaskStatusCompleted {
			return false
		}
	}
	return true
}

func (in *instance) markStarted(nodeID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if ts, ok := in.tasks[nodeID]; ok {
		ts.status = TaskStatusRunning
		now := time.Now()
		ts.startedAt = &now
	}
}

// markCompleted commits the task's output. The status flip and the
// outputs write happen under one lock so a sibling completing
// concurrently can never observe a completed task without its output.
func (in *instance) markCompleted(nodeID string, output any) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if ts, ok := in.tasks[nodeID]; ok {
		ts.status = TaskStatusCompleted
		now := time.Now()
		ts.completedAt = &now
		in.outputs[nodeID] = output
	}
}

func (in *instance) markFailed(nodeID string, err *Error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if ts, ok := in.tasks[nodeID]; ok {
		ts.status = TaskStatusFailed
		ts.err = err
		now := time.Now()
		ts.completedAt = &now
	}
}

// markBlockedFailed fails every still-pending task; called when no
// frontier exists but the instance is not complete, i.e. everything
// left is transitively behind a failed dependency.
func (in *instance) markBlockedFailed() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for nodeID, ts := range in.tasks {
		if ts.status == TaskStatusPending {
			ts.status = TaskStatusFailed
			ts.err = &Error{Code: CodeBlocked, TaskID: nodeID, Message: "dependency failed, task never started"}
			now := time.Now()
			ts.completedAt = &now
		}
	}
}

func (in *instance) allTerminal() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, ts := range in.tasks {
		if ts.status != TaskStatusCompleted && ts.status != TaskStatusFailed {
			return false
		}
	}
	return true
}

func (in *instance) anyFailed() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, ts := range in.tasks {
		if ts.status == TaskStatusFailed {
			return true
		}
	}
	return false
}

func (in *instance) firstTaskError() *Error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	var first *Error
	var firstAt time.Time
	for _, ts := range in.tasks {
		if ts.err == nil || ts.err.Code == CodeBlocked || ts.completedAt == nil {
			continue
		}
		if first == nil || ts.completedAt.Before(firstAt) {
			first = ts.err
			firstAt = *ts.completedAt
		}
	}
	return first
}

// outputsSnapshot copies the committed outputs for binding or external
// inspection. Partial results of a failed instance stay readable.
func (in *instance) outputsSnapshot() map[string]any {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make(map[string]any, len(in.outputs))
	for k, v := range in.outputs {
		out[k] = v
	}
	return out
}

func (in *instance) finish(status Status, err *Error) {
	in.mu.Lock()
	in.status = status
	in.err = err
	in.mu.Unlock()
	close(in.done)
}

// TaskSnapshot is the externally visible state of one task.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Kind        TaskKind   `json:"kind"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot is a point-in-time copy of an instance, safe to hand to
// callers while execution continues.
type Snapshot struct {
	ID        uuid.UUID               `json:"instance_id"`
	GraphID   string                  `json:"graph_id"`
	Status    Status                  `json:"status"`
	Tasks     map[string]TaskSnapshot `json:"tasks"`
	Outputs   map[string]any          `json:"outputs"`
	Error     string                  `json:"error,omitempty"`
	StartedAt time.Time               `json:"started_at"`
}

func (in *instance) snapshot() Snapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()

	tasks := make(map[string]TaskSnapshot, len(in.tasks))
	for nodeID, ts := range in.tasks {
		snap := TaskSnapshot{
			ID:          nodeID,
			Kind:        in.graph.Nodes[nodeID].Kind,
			Status:      ts.status,
			StartedAt:   ts.startedAt,
			CompletedAt: ts.completedAt,
		}
		if ts.err != nil {
			snap.Error = ts.err.Error()
		}
		tasks[nodeID] = snap
	}
	outputs := make(map[string]any, len(in.outputs))
	for k, v := range in.outputs {
		outputs[k] = v
	}
	snap := Snapshot{
		ID:        in.id,
		GraphID:   in.graph.ID,
		Status:    in.status,
		Tasks:     tasks,
		Outputs:   outputs,
		StartedAt: in.started,
	}
	if in.err != nil {
		snap.Error = in.err.Error()
	}
	return snap
}
