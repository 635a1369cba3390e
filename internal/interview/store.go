package interview

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romiteld/eva-assistant-sub006/pkg/model"
)

// Store is the persistence contract for interview records. The
// write-once guarantee on the selected slot and the append-only
// guarantee on feedback live here, so every implementation enforces
// them under concurrency.
type Store interface {
	Create(ctx context.Context, iv *model.Interview) error
	Get(ctx context.Context, id uuid.UUID) (*model.Interview, error)
	List(ctx context.Context, limit, offset int) ([]model.Interview, int, error)
	Stats(ctx context.Context) (*model.InterviewStats, error)

	SetWorkflowInstance(ctx context.Context, id, instanceID uuid.UUID) error
	SetCandidateSlots(ctx context.Context, id uuid.UUID, slots []model.CandidateSlot) error

	// ConfirmSlot sets the selected slot, the expected rater set, and
	// the scheduled status in one compare-and-set step. The first
	// confirmation wins; later ones fail with ErrAlreadyScheduled.
	ConfirmSlot(ctx context.Context, id uuid.UUID, slot model.CandidateSlot, raters []string) (*model.Interview, error)

	// AppendFeedback adds one rater's record, at most once per rater.
	AppendFeedback(ctx context.Context, id uuid.UUID, fb model.FeedbackRecord) (*model.Interview, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.InterviewStatus) error

	// SetConsensus writes the averaged scores and moves the completed
	// record into its terminal pipeline stage.
	SetConsensus(ctx context.Context, id uuid.UUID, averaged map[string]float64, stage model.InterviewStatus) error

	// Supersede links the old record to its replacement and parks it
	// in the terminal superseded state. Records are never hard-deleted.
	Supersede(ctx context.Context, oldID, newID uuid.UUID) error
}

// MemoryStore is an in-process Store guarding every record mutation
// with one lock, which makes the CAS and append-once guarantees exact.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.Interview
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*model.Interview)}
}

func (s *MemoryStore) Create(_ context.Context, iv *model.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneInterview(iv)
	s.records[iv.ID] = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*model.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInterview(iv), nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]model.Interview, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*model.Interview, 0, len(s.records))
	for _, iv := range s.records {
		all = append(all, iv)
	}
	// Newest first, id as a stable tie-break.
	sortInterviews(all)

	total := len(all)
	if offset >= total {
		return []model.Interview{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]model.Interview, 0, end-offset)
	for _, iv := range all[offset:end] {
		out = append(out, *cloneInterview(iv))
	}
	return out, total, nil
}

func (s *MemoryStore) Stats(_ context.Context) (*model.InterviewStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &model.InterviewStats{
		Total:    len(s.records),
		ByStatus: make(map[model.InterviewStatus]int),
	}
	for _, iv := range s.records {
		stats.ByStatus[iv.Status]++
	}
	return stats, nil
}

func (s *MemoryStore) SetWorkflowInstance(_ context.Context, id, instanceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	iid := instanceID
	iv.WorkflowInstanceID = &iid
	iv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetCandidateSlots(_ context.Context, id uuid.UUID, slots []model.CandidateSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	iv.CandidateSlots = append([]model.CandidateSlot(nil), slots...)
	iv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ConfirmSlot(_ context.Context, id uuid.UUID, slot model.CandidateSlot, raters []string) (*model.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if iv.Status == model.StatusSuperseded {
		return nil, ErrSuperseded
	}
	if iv.SelectedSlot != nil {
		return nil, ErrAlreadyScheduled
	}
	if iv.Status != model.StatusPendingScheduling {
		return nil, ErrInvalidTransition
	}
	chosen := slot
	iv.SelectedSlot = &chosen
	iv.ExpectedRaters = append([]string(nil), raters...)
	iv.Status = model.StatusScheduled
	iv.UpdatedAt = time.Now()
	return cloneInterview(iv), nil
}

func (s *MemoryStore) AppendFeedback(_ context.Context, id uuid.UUID, fb model.FeedbackRecord) (*model.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if iv.Status != model.StatusScheduled {
		return nil, ErrInvalidTransition
	}
	expected := false
	for _, r := range iv.ExpectedRaters {
		if r == fb.RaterID {
			expected = true
			break
		}
	}
	if !expected {
		return nil, ErrUnknownRater
	}
	if iv.Feedback == nil {
		iv.Feedback = make(map[string]model.FeedbackRecord)
	}
	if _, dup := iv.Feedback[fb.RaterID]; dup {
		return nil, ErrDuplicateFeedback
	}
	iv.Feedback[fb.RaterID] = fb
	iv.UpdatedAt = time.Now()
	return cloneInterview(iv), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.InterviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if iv.Status != from {
		return ErrInvalidTransition
	}
	iv.Status = to
	iv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetConsensus(_ context.Context, id uuid.UUID, averaged map[string]float64, stage model.InterviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if iv.Status != model.StatusCompleted {
		return ErrInvalidTransition
	}
	iv.AveragedScores = cloneScores(averaged)
	iv.Status = stage
	iv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Supersede(_ context.Context, oldID, newID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.records[oldID]
	if !ok {
		return ErrNotFound
	}
	if iv.Status == model.StatusSuperseded {
		return ErrSuperseded
	}
	nid := newID
	iv.SupersededBy = &nid
	iv.Status = model.StatusSuperseded
	iv.UpdatedAt = time.Now()
	return nil
}

func cloneInterview(iv *model.Interview) *model.Interview {
	cp := *iv
	cp.PanelIDs = append([]string(nil), iv.PanelIDs...)
	cp.CandidateSlots = append([]model.CandidateSlot(nil), iv.CandidateSlots...)
	cp.ExpectedRaters = append([]string(nil), iv.ExpectedRaters...)
	if iv.SelectedSlot != nil {
		slot := *iv.SelectedSlot
		cp.SelectedSlot = &slot
	}
	if iv.Feedback != nil {
		cp.Feedback = make(map[string]model.FeedbackRecord, len(iv.Feedback))
		for k, v := range iv.Feedback {
			cp.Feedback[k] = v
		}
	}
	cp.AveragedScores = cloneScores(iv.AveragedScores)
	return &cp
}

func cloneScores(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortInterviews(ivs []*model.Interview) {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].CreatedAt.Equal(ivs[j].CreatedAt) {
			return ivs[i].CreatedAt.After(ivs[j].CreatedAt)
		}
		return ivs[i].ID.String() < ivs[j].ID.String()
	})
}
