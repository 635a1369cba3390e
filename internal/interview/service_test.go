package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/notify"
	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
	"github.com/romiteld/eva-assistant-sub006/pkg/model"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	return nil
}

func (d *recordingDispatcher) sent() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.messages...)
}

type fixture struct {
	store      *MemoryStore
	service    *Service
	engine     *workflow.Engine
	dispatcher *recordingDispatcher
}

// newStubEngine builds the real engine with the interview preparation
// graph and fake executors. The schedule stub writes two candidate
// slots straight into the store, the way the real executor does after
// a resolver run.
func newStubEngine(t *testing.T, store *MemoryStore) *workflow.Engine {
	t.Helper()

	reg := workflow.NewRegistry()
	require.NoError(t, reg.Register(InterviewPrepGraph(time.Second)))
	engine := workflow.NewEngine(reg, zap.NewNop())

	engine.RegisterExecutor(workflow.TaskKindSchedule, workflow.ExecutorFunc(func(ctx context.Context, task workflow.Task) (any, error) {
		raw, _ := task.Params["interview_id"].(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		slots := testSlots()
		if err := store.SetCandidateSlots(ctx, id, slots); err != nil {
			return nil, err
		}
		return map[string]any{"interview_id": raw, "count": len(slots)}, nil
	}))
	engine.RegisterExecutor(workflow.TaskKindGenerate, workflow.ExecutorFunc(func(ctx context.Context, task workflow.Task) (any, error) {
		return map[string]any{"summary": "stub", "node": task.NodeID}, nil
	}))
	engine.RegisterExecutor(workflow.TaskKindNotify, workflow.ExecutorFunc(func(ctx context.Context, task workflow.Task) (any, error) {
		return map[string]any{"dispatched": true}, nil
	}))
	return engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := NewMemoryStore()
	engine := newStubEngine(t, store)
	dispatcher := &recordingDispatcher{}
	svc := NewService(store, engine, zap.NewNop(), WithDispatcher(dispatcher))
	return &fixture{store: store, service: svc, engine: engine, dispatcher: dispatcher}
}

func createReq() model.CreateInterviewReq {
	return model.CreateInterviewReq{
		ApplicantID:     uuid.New(),
		JobID:           uuid.New(),
		Kind:            model.KindTechnical,
		Round:           2,
		DurationMinutes: 45,
		Timezone:        "America/New_York",
		PanelIDs:        []string{"panel-eng", "panel-em"},
	}
}

func TestServiceCreateLaunchesSchedulingWorkflow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	iv, err := fx.service.Create(ctx, createReq())
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingScheduling, iv.Status)
	require.NotNil(t, iv.WorkflowInstanceID)

	_, err = fx.engine.AwaitCompletion(ctx, *iv.WorkflowInstanceID)
	require.NoError(t, err)

	got, err := fx.store.Get(ctx, iv.ID)
	require.NoError(t, err)
	assert.Len(t, got.CandidateSlots, 2, "schedule task must persist candidate slots")
	require.NotNil(t, got.WorkflowInstanceID)
	assert.Equal(t, *iv.WorkflowInstanceID, *got.WorkflowInstanceID)
}

func TestServiceCreateValidatesInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	bad := createReq()
	bad.Kind = model.InterviewKind("vibes")
	_, err := fx.service.Create(ctx, bad)
	assert.Error(t, err)

	bad = createReq()
	bad.Timezone = "Mars/Olympus_Mons"
	_, err = fx.service.Create(ctx, bad)
	assert.Error(t, err)
}

func TestServiceConfirmSlotOutOfRange(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	iv := seedInterview(t, fx.store, model.StatusPendingScheduling)
	require.NoError(t, fx.store.SetCandidateSlots(ctx, iv.ID, testSlots()))

	_, err := fx.service.ConfirmSlot(ctx, iv.ID, model.ConfirmSlotReq{SlotIndex: 5, Raters: []string{"r1"}})
	assert.ErrorIs(t, err, ErrNoSuchSlot)

	_, err = fx.service.ConfirmSlot(ctx, iv.ID, model.ConfirmSlotReq{SlotIndex: -1, Raters: []string{"r1"}})
	assert.ErrorIs(t, err, ErrNoSuchSlot)
}

func TestServiceConfirmSlotRaceHasOneWinner(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	iv := seedInterview(t, fx.store, model.StatusPendingScheduling)
	require.NoError(t, fx.store.SetCandidateSlots(ctx, iv.ID, testSlots()))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.service.ConfirmSlot(ctx, iv.ID, model.ConfirmSlotReq{SlotIndex: i, Raters: []string{"r1"}})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyScheduled)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestServiceFeedbackDrivesConsensusStage(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	iv := seedInterview(t, fx.store, model.StatusPendingScheduling)
	require.NoError(t, fx.store.SetCandidateSlots(ctx, iv.ID, testSlots()))

	confirmed, err := fx.service.ConfirmSlot(ctx, iv.ID, model.ConfirmSlotReq{SlotIndex: 0, Raters: []string{"r1", "r2"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, confirmed.Status)

	partial, err := fx.service.SubmitFeedback(ctx, iv.ID, model.SubmitFeedbackReq{
		RaterID:        "r1",
		Scores:         map[string]float64{"technical": 5, "communication": 4},
		Recommendation: "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, partial.Status, "one of two raters must not complete the interview")

	final, err := fx.service.SubmitFeedback(ctx, iv.ID, model.SubmitFeedbackReq{
		RaterID:        "r2",
		Scores:         map[string]float64{"technical": 3},
		Recommendation: "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinalReview, final.Status)
	assert.InDelta(t, 4.0, final.AveragedScores["technical"], 1e-9)
	assert.InDelta(t, 4.0, final.AveragedScores["communication"], 1e-9)

	// The stage transition notification is fire-and-forget.
	require.Eventually(t, func() bool {
		for _, msg := range fx.dispatcher.sent() {
			if msg.Template == "stage_transition" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestServiceFeedbackTieBreaksCautiously(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	iv := seedInterview(t, fx.store, model.StatusPendingScheduling)
	require.NoError(t, fx.store.SetCandidateSlots(ctx, iv.ID, testSlots()))

	_, err := fx.service.ConfirmSlot(ctx, iv.ID, model.ConfirmSlotReq{SlotIndex: 0, Raters: []string{"r1", "r2"}})
	require.NoError(t, err)

	_, err = fx.service.SubmitFeedback(ctx, iv.ID, model.SubmitFeedbackReq{
		RaterID: "r1", Scores: map[string]float64{"technical": 4}, Recommendation: "yes",
	})
	require.NoError(t, err)

	final, err := fx.service.SubmitFeedback(ctx, iv.ID, model.SubmitFeedbackReq{
		RaterID: "r2", Scores: map[string]float64{"technical": 2}, Recommendation: "maybe",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAdditionalReview, final.Status)
}

func TestServiceFeedbackRejectsBadSubmissions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	iv := seedInterview(t, fx.store, model.StatusPendingScheduling)
	require.NoError(t, fx.store.SetCandidateSlots(ctx, iv.ID, testSlots()))
	_, err := fx.service.ConfirmSlot(ctx, iv.ID, model.ConfirmSlotReq{SlotIndex: 0, Raters: []string{"r1"}})
	require.NoError(t, err)

	_, err = fx.service.SubmitFeedback(ctx, iv.ID, model.SubmitFeedbackReq{
		RaterID: "r1", Scores: map[string]float64{}, Recommendation: "definitely",
	})
	assert.Error(t, err, "unknown recommendation must be rejected before storage")

	_, err = fx.service.SubmitFeedback(ctx, iv.ID, model.SubmitFeedbackReq{
		RaterID: "outsider", Scores: map[string]float64{}, Recommendation: "yes",
	})
	assert.ErrorIs(t, err, ErrUnknownRater)
}

func TestServiceRescheduleSupersedes(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	original, err := fx.service.Create(ctx, createReq())
	require.NoError(t, err)

	replacement, err := fx.service.Reschedule(ctx, original.ID)
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, replacement.ID)
	assert.Equal(t, model.StatusPendingScheduling, replacement.Status)
	assert.Equal(t, original.ApplicantID, replacement.ApplicantID)
	assert.Equal(t, original.Round, replacement.Round)
	require.NotNil(t, replacement.WorkflowInstanceID)

	old, err := fx.store.Get(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuperseded, old.Status)
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, replacement.ID, *old.SupersededBy)

	// Superseded records stay frozen.
	_, err = fx.service.ConfirmSlot(ctx, original.ID, model.ConfirmSlotReq{SlotIndex: 0, Raters: []string{"r1"}})
	assert.Error(t, err)

	_, err = fx.service.Reschedule(ctx, original.ID)
	assert.ErrorIs(t, err, ErrSuperseded)
}

type recordingArchiver struct {
	mu    sync.Mutex
	snaps []workflow.Snapshot
}

func (a *recordingArchiver) ArchiveInstance(_ context.Context, snap workflow.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps = append(a.snaps, snap)
	return nil
}

func (a *recordingArchiver) archived() []workflow.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]workflow.Snapshot(nil), a.snaps...)
}

func TestServiceArchivesAndEvictsFinishedWorkflow(t *testing.T) {
	store := NewMemoryStore()
	engine := newStubEngine(t, store)
	archiver := &recordingArchiver{}
	svc := NewService(store, engine, zap.NewNop(), WithArchiver(archiver))

	iv, err := svc.Create(context.Background(), createReq())
	require.NoError(t, err)
	require.NotNil(t, iv.WorkflowInstanceID)
	instanceID := *iv.WorkflowInstanceID

	// Once the run finishes the snapshot lands in the archive and the
	// engine drops the instance.
	require.Eventually(t, func() bool {
		if len(archiver.archived()) == 0 {
			return false
		}
		_, err := engine.Instance(instanceID)
		return workflow.IsCode(err, workflow.CodeNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	snaps := archiver.archived()
	require.Len(t, snaps, 1)
	assert.Equal(t, instanceID, snaps[0].ID)
	assert.Equal(t, workflow.StatusCompleted, snaps[0].Status)
	assert.Contains(t, snaps[0].Outputs, "find_slots")
}

func TestServiceGetUnknown(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
