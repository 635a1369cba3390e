package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type execSpan struct {
	start time.Time
	end   time.Time
}

// spanRecorder tracks when each task ran so tests can assert on
// concurrency and join barriers.
type spanRecorder struct {
	mu    sync.Mutex
	spans map[string]execSpan
}

func newSpanRecorder() *spanRecorder {
	return &spanRecorder{spans: make(map[string]execSpan)}
}

func (r *spanRecorder) record(nodeID string, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans[nodeID] = execSpan{start: start, end: end}
}

func (r *spanRecorder) span(nodeID string) execSpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spans[nodeID]
}

func newTestEngine(t *testing.T, g *Graph) *Engine {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(g))
	return NewEngine(reg, zap.NewNop())
}

func TestLaunchUnknownGraph(t *testing.T) {
	engine := NewEngine(NewRegistry(), zap.NewNop())
	id, err := engine.Launch(context.Background(), "nope", nil)
	assert.True(t, IsCode(err, CodeGraphNotFound))
	assert.Equal(t, uuid.Nil, id)
}

func TestIndependentTasksRunConcurrently(t *testing.T) {
	g := &Graph{
		ID: "fanout",
		Nodes: map[string]*Node{
			"a": {ID: "a", Kind: TaskKindGenerate},
			"b": {ID: "b", Kind: TaskKindGenerate},
			"c": {ID: "c", Kind: TaskKindGenerate, DependsOn: []string{"a", "b"}},
		},
	}
	engine := newTestEngine(t, g)
	rec := newSpanRecorder()
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		start := time.Now()
		time.Sleep(80 * time.Millisecond)
		rec.record(task.NodeID, start, time.Now())
		return map[string]any{"from": task.NodeID}, nil
	}))

	id, err := engine.Launch(context.Background(), "fanout", nil)
	require.NoError(t, err)

	outputs, err := engine.AwaitCompletion(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, outputs, "a")
	assert.Contains(t, outputs, "b")
	assert.Contains(t, outputs, "c")

	a, b, c := rec.span("a"), rec.span("b"), rec.span("c")

	// a and b must overlap: neither waits on the other.
	assert.True(t, a.start.Before(b.end) && b.start.Before(a.end),
		"independent tasks were serialized: a=%v..%v b=%v..%v", a.start, a.end, b.start, b.end)

	// The join barrier: c starts only after both branches committed.
	assert.False(t, c.start.Before(a.end), "c started before a completed")
	assert.False(t, c.start.Before(b.end), "c started before b completed")
}

func TestDependentDispatchesWhileUnrelatedTaskRuns(t *testing.T) {
	g := &Graph{
		ID: "uneven",
		Nodes: map[string]*Node{
			"slow":      {ID: "slow", Kind: TaskKindGenerate},
			"fast":      {ID: "fast", Kind: TaskKindGenerate},
			"dependent": {ID: "dependent", Kind: TaskKindGenerate, DependsOn: []string{"fast"}},
		},
	}
	engine := newTestEngine(t, g)
	rec := newSpanRecorder()
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		start := time.Now()
		if task.NodeID == "slow" {
			time.Sleep(400 * time.Millisecond)
		}
		rec.record(task.NodeID, start, time.Now())
		return map[string]any{"ok": true}, nil
	}))

	id, err := engine.Launch(context.Background(), "uneven", nil)
	require.NoError(t, err)
	_, err = engine.AwaitCompletion(context.Background(), id)
	require.NoError(t, err)

	slow, fast, dep := rec.span("slow"), rec.span("fast"), rec.span("dependent")

	// The moment fast commits, dependent is runnable. It must start
	// then, while the unrelated slow task is still in flight.
	assert.True(t, dep.start.Before(slow.end),
		"dependent waited for an unrelated task: dep start=%v slow end=%v", dep.start, slow.end)
	assert.Less(t, dep.start.Sub(fast.end), 200*time.Millisecond,
		"dependent was not dispatched promptly after its only dependency completed")
}

func TestOutputsFlowThroughBinding(t *testing.T) {
	g := &Graph{
		ID: "chain",
		Nodes: map[string]*Node{
			"produce": {ID: "produce", Kind: TaskKindGenerate},
			"consume": {
				ID:        "consume",
				Kind:      TaskKindGenerate,
				DependsOn: []string{"produce"},
				Params:    map[string]any{"value": "{{produce.answer}}", "greeting": "hello {{input.name}}"},
			},
		},
	}
	engine := newTestEngine(t, g)

	var consumed map[string]any
	var mu sync.Mutex
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		if task.NodeID == "produce" {
			return map[string]any{"answer": 42}, nil
		}
		mu.Lock()
		consumed = task.Params
		mu.Unlock()
		return map[string]any{"ok": true}, nil
	}))

	id, err := engine.Launch(context.Background(), "chain", map[string]any{"name": "ada"})
	require.NoError(t, err)
	_, err = engine.AwaitCompletion(context.Background(), id)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 42, consumed["value"])
	assert.Equal(t, "hello ada", consumed["greeting"])
}

func TestParamBindingFailureIsTaskLocal(t *testing.T) {
	g := &Graph{
		ID: "badref",
		Nodes: map[string]*Node{
			"good": {ID: "good", Kind: TaskKindGenerate},
			"bad":  {ID: "bad", Kind: TaskKindGenerate, Params: map[string]any{"v": "{{nonexistent}}"}},
		},
	}
	engine := newTestEngine(t, g)
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		return map[string]any{"done": task.NodeID}, nil
	}))

	id, err := engine.Launch(context.Background(), "badref", nil)
	require.NoError(t, err)

	outputs, err := engine.AwaitCompletion(context.Background(), id)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeParamBinding))

	// The sibling that did not depend on the bad task kept its output.
	assert.Contains(t, outputs, "good")

	snap, err := engine.Instance(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, TaskStatusCompleted, snap.Tasks["good"].Status)
	assert.Equal(t, TaskStatusFailed, snap.Tasks["bad"].Status)
}

func TestFailedBranchBlocksDownstreamOnly(t *testing.T) {
	g := &Graph{
		ID: "partial",
		Nodes: map[string]*Node{
			"fails":      {ID: "fails", Kind: TaskKindGenerate},
			"survives":   {ID: "survives", Kind: TaskKindGenerate},
			"downstream": {ID: "downstream", Kind: TaskKindGenerate, DependsOn: []string{"fails", "survives"}},
		},
	}
	engine := newTestEngine(t, g)

	var downstreamRan bool
	var mu sync.Mutex
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		switch task.NodeID {
		case "fails":
			return nil, errors.New("capability unavailable")
		case "downstream":
			mu.Lock()
			downstreamRan = true
			mu.Unlock()
		}
		return map[string]any{"ok": true}, nil
	}))

	id, err := engine.Launch(context.Background(), "partial", nil)
	require.NoError(t, err)

	outputs, err := engine.AwaitCompletion(context.Background(), id)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeTaskExecution))

	mu.Lock()
	assert.False(t, downstreamRan, "downstream of a failed dependency must never start")
	mu.Unlock()

	// Completed branch output survives for diagnosis.
	assert.Contains(t, outputs, "survives")

	snap, err := engine.Instance(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, TaskStatusFailed, snap.Tasks["downstream"].Status)
	assert.Contains(t, snap.Tasks["downstream"].Error, "blocked")
}

func TestMissingExecutorFailsTask(t *testing.T) {
	g := &Graph{
		ID:    "orphan",
		Nodes: map[string]*Node{"n": {ID: "n", Kind: TaskKindNotify}},
	}
	engine := newTestEngine(t, g)

	id, err := engine.Launch(context.Background(), "orphan", nil)
	require.NoError(t, err)

	_, err = engine.AwaitCompletion(context.Background(), id)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeTaskExecution))
}

func TestCancelStopsDispatchKeepsCommittedOutputs(t *testing.T) {
	g := &Graph{
		ID: "cancellable",
		Nodes: map[string]*Node{
			"fast": {ID: "fast", Kind: TaskKindGenerate},
			"slow": {ID: "slow", Kind: TaskKindGenerate, DependsOn: []string{"fast"}},
		},
	}
	engine := newTestEngine(t, g)
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		if task.NodeID == "slow" {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return map[string]any{"too": "late"}, nil
			}
		}
		return map[string]any{"quick": true}, nil
	}))

	id, err := engine.Launch(context.Background(), "cancellable", nil)
	require.NoError(t, err)

	// Wait for the fast task to commit before cancelling.
	require.Eventually(t, func() bool {
		snap, err := engine.Instance(id)
		return err == nil && snap.Tasks["fast"].Status == TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, engine.Cancel(id))

	outputs, err := engine.AwaitCompletion(context.Background(), id)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeCancelled))
	assert.Contains(t, outputs, "fast", "committed outputs must survive cancellation")

	snap, err := engine.Instance(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)
}

func TestPerTaskTimeout(t *testing.T) {
	g := &Graph{
		ID: "timed",
		Nodes: map[string]*Node{
			"stuck": {ID: "stuck", Kind: TaskKindGenerate, Timeout: 30 * time.Millisecond},
		},
	}
	engine := newTestEngine(t, g)
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	}))

	id, err := engine.Launch(context.Background(), "timed", nil)
	require.NoError(t, err)

	_, err = engine.AwaitCompletion(context.Background(), id)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeTaskExecution))
}

func TestRemoveEvictsTerminalInstance(t *testing.T) {
	g := &Graph{
		ID:    "oneshot",
		Nodes: map[string]*Node{"n": {ID: "n", Kind: TaskKindGenerate}},
	}
	engine := newTestEngine(t, g)
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		return map[string]any{"ok": true}, nil
	}))

	id, err := engine.Launch(context.Background(), "oneshot", nil)
	require.NoError(t, err)
	_, err = engine.AwaitCompletion(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, engine.Remove(id))

	_, err = engine.Instance(id)
	assert.True(t, IsCode(err, CodeNotFound))
	assert.True(t, IsCode(engine.Remove(id), CodeNotFound))
}

func TestRemoveRefusesRunningInstance(t *testing.T) {
	g := &Graph{
		ID:    "held",
		Nodes: map[string]*Node{"n": {ID: "n", Kind: TaskKindGenerate}},
	}
	engine := newTestEngine(t, g)
	release := make(chan struct{})
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		<-release
		return map[string]any{"ok": true}, nil
	}))

	id, err := engine.Launch(context.Background(), "held", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := engine.Instance(id)
		return err == nil && snap.Tasks["n"].Status == TaskStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, IsCode(engine.Remove(id), CodeNotTerminal))

	close(release)
	_, err = engine.AwaitCompletion(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, engine.Remove(id))
}

func TestLaunchInputsVisibleToPlaceholders(t *testing.T) {
	g := &Graph{
		ID: "seeded",
		Nodes: map[string]*Node{
			"n": {ID: "n", Kind: TaskKindGenerate, Params: map[string]any{"who": "{{input.who}}"}},
		},
	}
	engine := newTestEngine(t, g)
	engine.RegisterExecutor(TaskKindGenerate, ExecutorFunc(func(ctx context.Context, task Task) (any, error) {
		return task.Params["who"], nil
	}))

	id, err := engine.Launch(context.Background(), "seeded", map[string]any{"who": "applicant-1"})
	require.NoError(t, err)

	outputs, err := engine.AwaitCompletion(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "applicant-1", outputs["n"])
}
