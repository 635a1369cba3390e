package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task is the executor-facing view of one dispatched node, with its
// params already bound.
type Task struct {
	InstanceID uuid.UUID
	NodeID     string
	Kind       TaskKind
	Params     map[string]any
}

// Executor runs one kind of task. Implementations are pure from the
// engine's point of view: they receive bound params and return an
// output value or an error.
type Executor interface {
	Execute(ctx context.Context, task Task) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task Task) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, task Task) (any, error) {
	return f(ctx, task)
}

// Engine drives workflow instances over registered graphs. Independent
// tasks in the same frontier are dispatched concurrently; a downstream
// task starts only after every declared dependency has committed its
// output.
type Engine struct {
	registry    *Registry
	logger      *zap.Logger
	maxParallel int

	mu        sync.RWMutex
	executors map[TaskKind]Executor
	instances map[uuid.UUID]*instance
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxParallel bounds how many tasks one instance may execute
// concurrently.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

func NewEngine(registry *Registry, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		logger:      logger,
		maxParallel: 8,
		executors:   make(map[TaskKind]Executor),
		instances:   make(map[uuid.UUID]*instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterExecutor binds a task kind to its executor. Later
// registrations for the same kind replace earlier ones.
func (e *Engine) RegisterExecutor(kind TaskKind, ex Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executors[kind] = ex
}

// Launch validates the graph reference, creates an instance, and
// begins executing it asynchronously. Graph-level problems
// (GraphNotFound, CycleDetected at registration) fail here and no
// instance is created.
func (e *Engine) Launch(ctx context.Context, graphID string, initialParams map[string]any) (uuid.UUID, error) {
	g, err := e.registry.Get(graphID)
	if err != nil {
		return uuid.Nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	in := newInstance(uuid.New(), g, initialParams, cancel)

	e.mu.Lock()
	e.instances[in.id] = in
	e.mu.Unlock()

	e.logger.Info("workflow launched",
		zap.String("graph_id", graphID),
		zap.String("instance_id", in.id.String()),
		zap.Int("node_count", len(g.Nodes)),
	)

	go e.run(runCtx, in)
	return in.id, nil
}

// run drives the instance as a completion-event loop: every runnable
// node is dispatched the moment its dependencies commit, and each task
// completion re-evaluates the frontier immediately. The semaphore is
// the only concurrency bound; independent tasks never wait on one
// another, and a slow task stalls nothing outside its own branch.
func (e *Engine) run(ctx context.Context, in *instance) {
	sem := make(chan struct{}, e.maxParallel)
	completions := make(chan struct{}, len(in.graph.Nodes))

	inFlight := 0
	dispatch := func() {
		for _, node := range in.readyNodes() {
			in.markStarted(node.ID)
			inFlight++
			go func(n *Node) {
				sem <- struct{}{}
				defer func() { <-sem }()
				e.runTask(ctx, in, n)
				completions <- struct{}{}
			}(node)
		}
	}

	dispatch()
	for inFlight > 0 {
		select {
		case <-ctx.Done():
			e.logger.Warn("workflow cancelled",
				zap.String("instance_id", in.id.String()),
				zap.Error(ctx.Err()),
			)
			in.finish(StatusCancelled, &Error{Code: CodeCancelled, Message: "instance cancelled", Cause: ctx.Err()})
			return
		case <-completions:
			inFlight--
			dispatch()
		}
	}

	if ctx.Err() != nil {
		in.finish(StatusCancelled, &Error{Code: CodeCancelled, Message: "instance cancelled", Cause: ctx.Err()})
		return
	}

	if !in.allTerminal() {
		// Pending tasks remain but nothing is in flight: everything
		// left sits behind a failed dependency. Acyclicity is
		// guaranteed at registration, so this is not a deadlock on a
		// cycle.
		in.markBlockedFailed()
		e.logger.Warn("workflow blocked, no further progress possible",
			zap.String("instance_id", in.id.String()),
		)
	}
	if in.anyFailed() {
		in.finish(StatusFailed, in.firstTaskError())
		e.logger.Warn("workflow failed", zap.String("instance_id", in.id.String()))
		return
	}
	in.finish(StatusCompleted, nil)
	e.logger.Info("workflow completed", zap.String("instance_id", in.id.String()))
}

func (e *Engine) runTask(ctx context.Context, in *instance, node *Node) {
	params, err := BindParams(node.ID, node.Params, in.outputsSnapshot())
	if err != nil {
		// A binding failure takes down this task only; siblings that
		// do not depend on it keep running.
		e.logger.Warn("task param binding failed",
			zap.String("instance_id", in.id.String()),
			zap.String("task_id", node.ID),
			zap.Error(err),
		)
		in.markFailed(node.ID, err.(*Error))
		return
	}

	e.mu.RLock()
	ex, ok := e.executors[node.Kind]
	e.mu.RUnlock()
	if !ok {
		in.markFailed(node.ID, &Error{
			Code:    CodeTaskExecution,
			TaskID:  node.ID,
			Message: fmt.Sprintf("no executor registered for kind %q", node.Kind),
		})
		return
	}

	taskCtx := ctx
	if node.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, node.Timeout)
		defer cancel()
	}

	out, execErr := ex.Execute(taskCtx, Task{
		InstanceID: in.id,
		NodeID:     node.ID,
		Kind:       node.Kind,
		Params:     params,
	})
	if execErr != nil {
		e.logger.Warn("task execution failed",
			zap.String("instance_id", in.id.String()),
			zap.String("task_id", node.ID),
			zap.Error(execErr),
		)
		in.markFailed(node.ID, &Error{
			Code:    CodeTaskExecution,
			TaskID:  node.ID,
			Message: execErr.Error(),
			Cause:   execErr,
		})
		return
	}

	in.markCompleted(node.ID, out)
	e.logger.Debug("task completed",
		zap.String("instance_id", in.id.String()),
		zap.String("task_id", node.ID),
	)
}

// AwaitCompletion blocks until the instance reaches a terminal state
// or ctx expires. On instance failure the partial outputs committed by
// successful branches are still returned for diagnosis.
func (e *Engine) AwaitCompletion(ctx context.Context, instanceID uuid.UUID) (map[string]any, error) {
	in, err := e.get(instanceID)
	if err != nil {
		return nil, err
	}
	select {
	case <-in.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	in.mu.RLock()
	instErr := in.err
	in.mu.RUnlock()

	outputs := in.outputsSnapshot()
	if instErr != nil {
		return outputs, instErr
	}
	return outputs, nil
}

// Cancel stops dispatching new tasks for the instance. Tasks already
// in flight observe the cancelled context; outputs committed before
// cancellation remain inspectable.
func (e *Engine) Cancel(instanceID uuid.UUID) error {
	in, err := e.get(instanceID)
	if err != nil {
		return err
	}
	in.cancel()
	return nil
}

// Instance returns a point-in-time snapshot of a running or finished
// instance.
func (e *Engine) Instance(instanceID uuid.UUID) (Snapshot, error) {
	in, err := e.get(instanceID)
	if err != nil {
		return Snapshot{}, err
	}
	return in.snapshot(), nil
}

// Remove evicts a terminal instance from the engine so finished runs
// do not accumulate for the process lifetime. Callers that need the
// snapshot to outlive the engine archive it first. Removing a running
// instance is refused.
func (e *Engine) Remove(instanceID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	in, ok := e.instances[instanceID]
	if !ok {
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("instance %s not found", instanceID)}
	}
	in.mu.RLock()
	terminal := in.status.IsTerminal()
	in.mu.RUnlock()
	if !terminal {
		return &Error{Code: CodeNotTerminal, Message: fmt.Sprintf("instance %s is still running", instanceID)}
	}
	delete(e.instances, instanceID)
	return nil
}

func (e *Engine) get(instanceID uuid.UUID) (*instance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in, ok := e.instances[instanceID]
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("instance %s not found", instanceID)}
	}
	return in, nil
}
