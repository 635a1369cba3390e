package model

import (
	"time"

	"github.com/google/uuid"
)

type InterviewKind string

const (
	KindPhone     InterviewKind = "phone"
	KindVideo     InterviewKind = "video"
	KindOnsite    InterviewKind = "onsite"
	KindTechnical InterviewKind = "technical"
)

func (k InterviewKind) Valid() bool {
	switch k {
	case KindPhone, KindVideo, KindOnsite, KindTechnical:
		return true
	}
	return false
}

// InterviewStatus is the interview state machine. Terminal stages
// after completion mirror the consensus stage table; superseded is the
// terminal state of a record replaced by a reschedule.
type InterviewStatus string

const (
	StatusPendingScheduling InterviewStatus = "pending_scheduling"
	StatusScheduled         InterviewStatus = "scheduled"
	StatusCompleted         InterviewStatus = "completed"
	StatusOffer             InterviewStatus = "offer"
	StatusFinalReview       InterviewStatus = "final_review"
	StatusAdditionalReview  InterviewStatus = "additional_review"
	StatusRejected          InterviewStatus = "rejected"
	StatusSuperseded        InterviewStatus = "superseded"
)

// CandidateSlot is a scored, duration-exact slot produced by the
// scheduling search. Slots are immutable; a new search supersedes old
// results instead of editing them.
type CandidateSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Parties   []string  `json:"parties"`
	Score     int       `json:"score"`
	Conflicts []string  `json:"conflicts,omitempty"`
}

// FeedbackRecord is one rater's submission, immutable once written.
type FeedbackRecord struct {
	RaterID        string             `json:"rater_id"`
	Scores         map[string]float64 `json:"scores"`
	Notes          string             `json:"notes,omitempty"`
	Recommendation string             `json:"recommendation"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// Interview is the durable record for one applicant/job/round
// scheduling effort. Records are never hard-deleted; a reschedule
// creates a successor and leaves this record superseded for audit.
type Interview struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ApplicantID     uuid.UUID       `json:"applicant_id" db:"applicant_id"`
	JobID           uuid.UUID       `json:"job_id" db:"job_id"`
	Kind            InterviewKind   `json:"kind" db:"kind"`
	Round           int             `json:"round" db:"round"`
	DurationMinutes int             `json:"duration_minutes" db:"duration_minutes"`
	Timezone        string          `json:"timezone" db:"timezone"`
	Status          InterviewStatus `json:"status" db:"status"`

	// PanelIDs are the approver roles whose availability constrains
	// scheduling.
	PanelIDs []string `json:"panel_ids" db:"panel_ids"`

	// CandidateSlots are ordered by score descending.
	CandidateSlots []CandidateSlot `json:"candidate_slots" db:"candidate_slots"`

	// SelectedSlot is write-once: set by the first confirmation, never
	// overwritten.
	SelectedSlot *CandidateSlot `json:"selected_slot,omitempty" db:"selected_slot"`

	// ExpectedRaters is fixed at confirmation time; Feedback is
	// append-only and keyed by rater id, at most one entry per rater.
	ExpectedRaters []string                  `json:"expected_raters" db:"expected_raters"`
	Feedback       map[string]FeedbackRecord `json:"feedback" db:"feedback"`

	// AveragedScores holds the consensus output once the interview
	// completes.
	AveragedScores map[string]float64 `json:"averaged_scores,omitempty" db:"averaged_scores"`

	WorkflowInstanceID *uuid.UUID `json:"workflow_instance_id,omitempty" db:"workflow_instance_id"`
	SupersededBy       *uuid.UUID `json:"superseded_by,omitempty" db:"superseded_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateInterviewReq struct {
	ApplicantID     uuid.UUID     `json:"applicant_id" binding:"required"`
	JobID           uuid.UUID     `json:"job_id" binding:"required"`
	Kind            InterviewKind `json:"kind" binding:"required"`
	Round           int           `json:"round" binding:"required,min=1"`
	DurationMinutes int           `json:"duration_minutes" binding:"required,min=15,max=480"`
	Timezone        string        `json:"timezone" binding:"required"`
	PanelIDs        []string      `json:"panel_ids" binding:"required,min=1"`
}

type ConfirmSlotReq struct {
	SlotIndex int      `json:"slot_index" binding:"min=0"`
	Raters    []string `json:"raters" binding:"required,min=1"`
}

type SubmitFeedbackReq struct {
	RaterID        string             `json:"rater_id" binding:"required"`
	Scores         map[string]float64 `json:"scores" binding:"required"`
	Notes          string             `json:"notes"`
	Recommendation string             `json:"recommendation" binding:"required"`
}

type ListInterviewsQuery struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

type InterviewStats struct {
	Total    int                     `json:"total"`
	ByStatus map[InterviewStatus]int `json:"by_status"`
}
