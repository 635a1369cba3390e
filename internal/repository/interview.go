package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/romiteld/eva-assistant-sub006/internal/interview"
	"github.com/romiteld/eva-assistant-sub006/pkg/model"
)

const interviewColumns = `
	id, applicant_id, job_id, kind, round, duration_minutes, timezone, status,
	panel_ids, candidate_slots, selected_slot, expected_raters, feedback,
	averaged_scores, workflow_instance_id, superseded_by, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, iv *model.Interview) error {
	const q = `
INSERT INTO interviews (
	id, applicant_id, job_id, kind, round, duration_minutes, timezone, status,
	panel_ids, candidate_slots, feedback, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '{}'::jsonb, $11, $12)
`
	panelIDs, err := json.Marshal(iv.PanelIDs)
	if err != nil {
		return fmt.Errorf("marshal panel ids: %w", err)
	}
	slots, err := json.Marshal(iv.CandidateSlots)
	if err != nil {
		return fmt.Errorf("marshal candidate slots: %w", err)
	}
	_, err = r.db.Exec(ctx, q,
		iv.ID, iv.ApplicantID, iv.JobID, iv.Kind, iv.Round, iv.DurationMinutes,
		iv.Timezone, iv.Status, panelIDs, slots, iv.CreatedAt, iv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*model.Interview, error) {
	q := `SELECT` + interviewColumns + ` FROM interviews WHERE id = $1`
	iv, err := scanInterview(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interview.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}
	return iv, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]model.Interview, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM interviews`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count interviews: %w", err)
	}

	q := `SELECT` + interviewColumns + ` FROM interviews ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query interviews: %w", err)
	}
	defer rows.Close()

	out := make([]model.Interview, 0, limit)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan interview row: %w", err)
		}
		out = append(out, *iv)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("rows error: %w", rows.Err())
	}
	return out, total, nil
}

func (r *Repository) Stats(ctx context.Context) (*model.InterviewStats, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(1) FROM interviews GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("interview stats: %w", err)
	}
	defer rows.Close()

	stats := &model.InterviewStats{ByStatus: make(map[model.InterviewStatus]int)}
	for rows.Next() {
		var status model.InterviewStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

func (r *Repository) SetWorkflowInstance(ctx context.Context, id, instanceID uuid.UUID) error {
	const q = `UPDATE interviews SET workflow_instance_id = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, instanceID)
	if err != nil {
		return fmt.Errorf("set workflow instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return interview.ErrNotFound
	}
	return nil
}

func (r *Repository) SetCandidateSlots(ctx context.Context, id uuid.UUID, slots []model.CandidateSlot) error {
	b, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("marshal candidate slots: %w", err)
	}
	const q = `UPDATE interviews SET candidate_slots = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, b)
	if err != nil {
		return fmt.Errorf("set candidate slots: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return interview.ErrNotFound
	}
	return nil
}

// ConfirmSlot is a single conditional UPDATE: the selected_slot
// IS NULL guard makes first-confirmation-wins hold across concurrent
// callers without any advisory locking.
func (r *Repository) ConfirmSlot(ctx context.Context, id uuid.UUID, slot model.CandidateSlot, raters []string) (*model.Interview, error) {
	slotJSON, err := json.Marshal(slot)
	if err != nil {
		return nil, fmt.Errorf("marshal slot: %w", err)
	}
	ratersJSON, err := json.Marshal(raters)
	if err != nil {
		return nil, fmt.Errorf("marshal raters: %w", err)
	}

	const q = `
UPDATE interviews
SET selected_slot = $2, expected_raters = $3, status = $4, updated_at = now()
WHERE id = $1 AND selected_slot IS NULL AND status = $5
`
	tag, err := r.db.Exec(ctx, q, id, slotJSON, ratersJSON, model.StatusScheduled, model.StatusPendingScheduling)
	if err != nil {
		return nil, fmt.Errorf("confirm slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, r.confirmFailure(ctx, id)
	}
	return r.Get(ctx, id)
}

func (r *Repository) confirmFailure(ctx context.Context, id uuid.UUID) error {
	var status model.InterviewStatus
	var hasSlot bool
	err := r.db.QueryRow(ctx,
		`SELECT status, selected_slot IS NOT NULL FROM interviews WHERE id = $1`, id,
	).Scan(&status, &hasSlot)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect interview: %w", err)
	}
	switch {
	case hasSlot:
		return interview.ErrAlreadyScheduled
	case status == model.StatusSuperseded:
		return interview.ErrSuperseded
	default:
		return interview.ErrInvalidTransition
	}
}

// AppendFeedback relies on jsonb concatenation guarded by key absence,
// so each rater's record lands at most once even under concurrent
// submissions.
func (r *Repository) AppendFeedback(ctx context.Context, id uuid.UUID, fb model.FeedbackRecord) (*model.Interview, error) {
	fbJSON, err := json.Marshal(map[string]model.FeedbackRecord{fb.RaterID: fb})
	if err != nil {
		return nil, fmt.Errorf("marshal feedback: %w", err)
	}

	const q = `
UPDATE interviews
SET feedback = COALESCE(feedback, '{}'::jsonb) || $2, updated_at = now()
WHERE id = $1
  AND status = $3
  AND expected_raters ? $4
  AND NOT (COALESCE(feedback, '{}'::jsonb) ? $4)
`
	tag, err := r.db.Exec(ctx, q, id, fbJSON, model.StatusScheduled, fb.RaterID)
	if err != nil {
		return nil, fmt.Errorf("append feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, r.feedbackFailure(ctx, id, fb.RaterID)
	}
	return r.Get(ctx, id)
}

func (r *Repository) feedbackFailure(ctx context.Context, id uuid.UUID, raterID string) error {
	iv, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if iv.Status != model.StatusScheduled {
		return interview.ErrInvalidTransition
	}
	for _, expected := range iv.ExpectedRaters {
		if expected == raterID {
			return interview.ErrDuplicateFeedback
		}
	}
	return interview.ErrUnknownRater
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.InterviewStatus) error {
	const q = `UPDATE interviews SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, q, id, from, to)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return interview.ErrInvalidTransition
	}
	return nil
}

func (r *Repository) SetConsensus(ctx context.Context, id uuid.UUID, averaged map[string]float64, stage model.InterviewStatus) error {
	b, err := json.Marshal(averaged)
	if err != nil {
		return fmt.Errorf("marshal averaged scores: %w", err)
	}
	const q = `
UPDATE interviews SET averaged_scores = $2, status = $3, updated_at = now()
WHERE id = $1 AND status = $4
`
	tag, err := r.db.Exec(ctx, q, id, b, stage, model.StatusCompleted)
	if err != nil {
		return fmt.Errorf("set consensus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return interview.ErrInvalidTransition
	}
	return nil
}

func (r *Repository) Supersede(ctx context.Context, oldID, newID uuid.UUID) error {
	return r.execTx(ctx, func(tx pgx.Tx) error {
		const q = `
UPDATE interviews SET superseded_by = $2, status = $3, updated_at = now()
WHERE id = $1 AND status <> $3
`
		tag, err := tx.Exec(ctx, q, oldID, newID, model.StatusSuperseded)
		if err != nil {
			return fmt.Errorf("supersede interview: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT true FROM interviews WHERE id = $1`, oldID).Scan(&exists); errors.Is(err, pgx.ErrNoRows) {
				return interview.ErrNotFound
			}
			return interview.ErrSuperseded
		}
		return nil
	})
}

func scanInterview(row pgx.Row) (*model.Interview, error) {
	var iv model.Interview
	var panelIDs, slots, raters, feedback []byte
	var selectedSlot, averaged []byte

	err := row.Scan(
		&iv.ID, &iv.ApplicantID, &iv.JobID, &iv.Kind, &iv.Round, &iv.DurationMinutes,
		&iv.Timezone, &iv.Status, &panelIDs, &slots, &selectedSlot, &raters,
		&feedback, &averaged, &iv.WorkflowInstanceID, &iv.SupersededBy,
		&iv.CreatedAt, &iv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalColumn(panelIDs, &iv.PanelIDs); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(slots, &iv.CandidateSlots); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(selectedSlot, &iv.SelectedSlot); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(raters, &iv.ExpectedRaters); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(feedback, &iv.Feedback); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(averaged, &iv.AveragedScores); err != nil {
		return nil, err
	}
	return &iv, nil
}

func unmarshalColumn(b []byte, dest any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dest)
}
