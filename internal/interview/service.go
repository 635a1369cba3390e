package interview

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/consensus"
	"github.com/romiteld/eva-assistant-sub006/internal/notify"
	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
	"github.com/romiteld/eva-assistant-sub006/pkg/model"
)

// InstanceArchiver durably stores a finished workflow instance
// snapshot. Implemented by the pgx repository; optional.
type InstanceArchiver interface {
	ArchiveInstance(ctx context.Context, snap workflow.Snapshot) error
}

// Service owns the interview record lifecycle: it launches the
// scheduling workflow, applies the slot-confirmation CAS, collects
// feedback, and drives the consensus stage transition.
type Service struct {
	store      Store
	engine     *workflow.Engine
	dispatcher notify.Dispatcher
	archiver   InstanceArchiver
	logger     *zap.Logger

	notifyRecipient string
}

type ServiceOption func(*Service)

// WithDispatcher enables stage-change notifications.
func WithDispatcher(d notify.Dispatcher) ServiceOption {
	return func(s *Service) { s.dispatcher = d }
}

// WithArchiver persists finished workflow instance snapshots.
func WithArchiver(a InstanceArchiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithNotifyRecipient sets the operator inbox the scheduling workflow
// notifies when slots are ready.
func WithNotifyRecipient(recipient string) ServiceOption {
	return func(s *Service) { s.notifyRecipient = recipient }
}

func NewService(store Store, engine *workflow.Engine, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:           store,
		engine:          engine,
		logger:          logger,
		notifyRecipient: "scheduling-ops",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new pending_scheduling record and launches the
// interview preparation workflow for it.
func (s *Service) Create(ctx context.Context, req model.CreateInterviewReq) (*model.Interview, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown interview kind %q", req.Kind)
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", req.Timezone, err)
	}

	now := time.Now()
	iv := &model.Interview{
		ID:              uuid.New(),
		ApplicantID:     req.ApplicantID,
		JobID:           req.JobID,
		Kind:            req.Kind,
		Round:           req.Round,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
		Status:          model.StatusPendingScheduling,
		PanelIDs:        req.PanelIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, iv); err != nil {
		return nil, err
	}

	instanceID, err := s.launchWorkflow(ctx, iv)
	if err != nil {
		return nil, err
	}
	iv.WorkflowInstanceID = &instanceID
	return iv, nil
}

func (s *Service) launchWorkflow(ctx context.Context, iv *model.Interview) (uuid.UUID, error) {
	input := map[string]any{
		"interview_id":     iv.ID.String(),
		"applicant_id":     iv.ApplicantID.String(),
		"job_id":           iv.JobID.String(),
		"kind":             string(iv.Kind),
		"round":            iv.Round,
		"duration_minutes": iv.DurationMinutes,
		"timezone":         iv.Timezone,
		"panel_ids":        iv.PanelIDs,
		"notify_recipient": s.notifyRecipient,
	}

	instanceID, err := s.engine.Launch(ctx, GraphInterviewPrep, input)
	if err != nil {
		return uuid.Nil, fmt.Errorf("launch scheduling workflow: %w", err)
	}
	if err := s.store.SetWorkflowInstance(ctx, iv.ID, instanceID); err != nil {
		s.logger.Warn("failed to record workflow instance id",
			zap.String("interview_id", iv.ID.String()),
			zap.Error(err),
		)
	}

	go s.watchInstance(instanceID, iv.ID)
	return instanceID, nil
}

// watchInstance waits for the launched workflow to reach a terminal
// state and archives the snapshot. Failures keep their partial outputs
// for diagnosis.
func (s *Service) watchInstance(instanceID, interviewID uuid.UUID) {
	ctx := context.Background()
	if _, err := s.engine.AwaitCompletion(ctx, instanceID); err != nil {
		s.logger.Warn("scheduling workflow did not complete",
			zap.String("interview_id", interviewID.String()),
			zap.String("instance_id", instanceID.String()),
			zap.Error(err),
		)
	}
	if s.archiver == nil {
		return
	}
	snap, err := s.engine.Instance(instanceID)
	if err != nil {
		return
	}
	if err := s.archiver.ArchiveInstance(ctx, snap); err != nil {
		s.logger.Warn("failed to archive workflow instance",
			zap.String("instance_id", instanceID.String()),
			zap.Error(err),
		)
		return
	}
	// The snapshot is durable now; drop the in-memory instance so
	// finished runs do not accumulate in the engine.
	if err := s.engine.Remove(instanceID); err != nil {
		s.logger.Warn("failed to evict workflow instance",
			zap.String("instance_id", instanceID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Interview, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]model.Interview, int, error) {
	return s.store.List(ctx, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*model.InterviewStats, error) {
	return s.store.Stats(ctx)
}

// ConfirmSlot applies a human's slot selection. The store's
// compare-and-set guarantees first-confirmation-wins; a lost race
// surfaces as ErrAlreadyScheduled. The expected rater set is fixed
// here and never changes afterwards.
func (s *Service) ConfirmSlot(ctx context.Context, id uuid.UUID, req model.ConfirmSlotReq) (*model.Interview, error) {
	iv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.SlotIndex < 0 || req.SlotIndex >= len(iv.CandidateSlots) {
		return nil, ErrNoSuchSlot
	}

	updated, err := s.store.ConfirmSlot(ctx, id, iv.CandidateSlots[req.SlotIndex], req.Raters)
	if err != nil {
		return nil, err
	}
	s.logger.Info("slot confirmed",
		zap.String("interview_id", id.String()),
		zap.Time("slot_start", updated.SelectedSlot.Start),
		zap.Int("expected_raters", len(updated.ExpectedRaters)),
	)
	return updated, nil
}

// SubmitFeedback appends one rater's record. When the final expected
// rater submits, the interview completes and the consensus aggregate
// moves the record into its terminal pipeline stage.
func (s *Service) SubmitFeedback(ctx context.Context, id uuid.UUID, req model.SubmitFeedbackReq) (*model.Interview, error) {
	rec := consensus.Recommendation(req.Recommendation)
	if !rec.Valid() {
		return nil, fmt.Errorf("unknown recommendation %q", req.Recommendation)
	}

	fb := model.FeedbackRecord{
		RaterID:        req.RaterID,
		Scores:         req.Scores,
		Notes:          req.Notes,
		Recommendation: req.Recommendation,
		SubmittedAt:    time.Now(),
	}
	updated, err := s.store.AppendFeedback(ctx, id, fb)
	if err != nil {
		return nil, err
	}

	if len(updated.Feedback) < len(updated.ExpectedRaters) {
		return updated, nil
	}
	return s.closeOut(ctx, updated)
}

// closeOut runs the scheduled -> completed -> stage transition once
// the feedback set is complete.
func (s *Service) closeOut(ctx context.Context, iv *model.Interview) (*model.Interview, error) {
	if err := s.store.UpdateStatus(ctx, iv.ID, model.StatusScheduled, model.StatusCompleted); err != nil {
		return nil, err
	}

	records := make([]consensus.Feedback, 0, len(iv.Feedback))
	for _, fb := range iv.Feedback {
		records = append(records, consensus.Feedback{
			RaterID:        fb.RaterID,
			Scores:         fb.Scores,
			Notes:          fb.Notes,
			Recommendation: consensus.Recommendation(fb.Recommendation),
			SubmittedAt:    fb.SubmittedAt,
		})
	}
	result, err := consensus.Aggregate(records, len(iv.ExpectedRaters))
	if err != nil {
		return nil, err
	}

	stage := model.InterviewStatus(result.Stage)
	if err := s.store.SetConsensus(ctx, iv.ID, result.AveragedScores, stage); err != nil {
		return nil, err
	}
	s.logger.Info("consensus reached",
		zap.String("interview_id", iv.ID.String()),
		zap.String("recommendation", string(result.Recommendation)),
		zap.String("stage", string(stage)),
	)

	if s.dispatcher != nil {
		msg := notify.Message{
			Recipient: s.notifyRecipient,
			Template:  "stage_transition",
			Vars: map[string]any{
				"interview_id": iv.ID.String(),
				"applicant_id": iv.ApplicantID.String(),
				"stage":        string(stage),
			},
		}
		go func() {
			if err := s.dispatcher.Dispatch(context.Background(), msg); err != nil {
				s.logger.Warn("stage notification failed", zap.Error(err))
			}
		}()
	}

	return s.store.Get(ctx, iv.ID)
}

// Reschedule supersedes an interview: the old record becomes terminal
// superseded and a fresh record for the same applicant/job/round is
// created and scheduled. Audit history is preserved, nothing is
// deleted.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID) (*model.Interview, error) {
	old, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status == model.StatusSuperseded {
		return nil, ErrSuperseded
	}

	now := time.Now()
	replacement := &model.Interview{
		ID:              uuid.New(),
		ApplicantID:     old.ApplicantID,
		JobID:           old.JobID,
		Kind:            old.Kind,
		Round:           old.Round,
		DurationMinutes: old.DurationMinutes,
		Timezone:        old.Timezone,
		Status:          model.StatusPendingScheduling,
		PanelIDs:        old.PanelIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, replacement); err != nil {
		return nil, err
	}
	if err := s.store.Supersede(ctx, old.ID, replacement.ID); err != nil {
		return nil, err
	}

	instanceID, err := s.launchWorkflow(ctx, replacement)
	if err != nil {
		return nil, err
	}
	replacement.WorkflowInstanceID = &instanceID
	return replacement, nil
}
