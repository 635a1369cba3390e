package consensus

import (
	"errors"
	"fmt"
	"time"
)

// Recommendation is the ordinal hiring recommendation a rater submits.
type Recommendation string

const (
	RecStrongNo  Recommendation = "strong_no"
	RecNo        Recommendation = "no"
	RecMaybe     Recommendation = "maybe"
	RecYes       Recommendation = "yes"
	RecStrongYes Recommendation = "strong_yes"
)

// ordinals order recommendations from most cautious to most positive.
// Tie-breaks resolve toward the lower ordinal.
var ordinals = []Recommendation{RecStrongNo, RecNo, RecMaybe, RecYes, RecStrongYes}

// Valid reports whether r is a known recommendation value.
func (r Recommendation) Valid() bool {
	for _, o := range ordinals {
		if r == o {
			return true
		}
	}
	return false
}

// Stage is the pipeline stage a consensus outcome advances the
// applicant to.
type Stage string

const (
	StageOffer            Stage = "offer"
	StageFinalReview      Stage = "final_review"
	StageAdditionalReview Stage = "additional_review"
	StageRejected         Stage = "rejected"
)

// stageTable is the fixed recommendation-to-stage mapping. Policy
// changes edit this table; nothing interprets raters or scores here.
var stageTable = map[Recommendation]Stage{
	RecStrongYes: StageOffer,
	RecYes:       StageFinalReview,
	RecMaybe:     StageAdditionalReview,
	RecNo:        StageRejected,
	RecStrongNo:  StageRejected,
}

// StageFor returns the pipeline stage for a consensus recommendation.
func StageFor(rec Recommendation) (Stage, error) {
	stage, ok := stageTable[rec]
	if !ok {
		return "", fmt.Errorf("unknown recommendation %q", rec)
	}
	return stage, nil
}

// Feedback is one rater's immutable submission.
type Feedback struct {
	RaterID        string             `json:"rater_id"`
	Scores         map[string]float64 `json:"scores"`
	Notes          string             `json:"notes,omitempty"`
	Recommendation Recommendation     `json:"recommendation"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// Result is the aggregate over a complete feedback set.
type Result struct {
	AveragedScores map[string]float64 `json:"averaged_scores"`
	Recommendation Recommendation     `json:"consensus_recommendation"`
	Stage          Stage              `json:"stage"`
}

// ErrIncompleteFeedbackSet is returned when aggregation is attempted
// before every expected rater has submitted. Aggregation is refused,
// never defaulted.
var ErrIncompleteFeedbackSet = errors.New("feedback set is incomplete")

// Aggregate computes per-criterion means and the majority
// recommendation over a complete feedback set. A criterion's mean is
// taken over the raters that reported it; absent keys never count as
// zero. The consensus recommendation is the mode, with ties broken
// toward the more cautious value.
func Aggregate(records []Feedback, expectedRaters int) (Result, error) {
	if len(records) < expectedRaters {
		return Result{}, fmt.Errorf("%w: have %d of %d raters", ErrIncompleteFeedbackSet, len(records), expectedRaters)
	}
	if len(records) == 0 {
		return Result{}, fmt.Errorf("%w: no feedback submitted", ErrIncompleteFeedbackSet)
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	votes := map[Recommendation]int{}

	for _, fb := range records {
		if !fb.Recommendation.Valid() {
			return Result{}, fmt.Errorf("rater %q submitted unknown recommendation %q", fb.RaterID, fb.Recommendation)
		}
		votes[fb.Recommendation]++
		for criterion, score := range fb.Scores {
			sums[criterion] += score
			counts[criterion]++
		}
	}

	averaged := make(map[string]float64, len(sums))
	for criterion, sum := range sums {
		averaged[criterion] = sum / float64(counts[criterion])
	}

	// Walk ordinals from most cautious upward and require a strictly
	// greater count to displace the current mode, so ties land on the
	// lower recommendation.
	var consensus Recommendation
	best := 0
	for _, rec := range ordinals {
		if votes[rec] > best {
			best = votes[rec]
			consensus = rec
		}
	}

	stage, err := StageFor(consensus)
	if err != nil {
		return Result{}, err
	}

	return Result{
		AveragedScores: averaged,
		Recommendation: consensus,
		Stage:          stage,
	}, nil
}
