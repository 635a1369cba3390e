package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fb(rater string, rec Recommendation, scores map[string]float64) Feedback {
	return Feedback{RaterID: rater, Recommendation: rec, Scores: scores}
}

func TestAggregateMajorityRecommendation(t *testing.T) {
	result, err := Aggregate([]Feedback{
		fb("r1", RecYes, nil),
		fb("r2", RecYes, nil),
		fb("r3", RecMaybe, nil),
	}, 3)
	require.NoError(t, err)

	assert.Equal(t, RecYes, result.Recommendation)
	assert.Equal(t, StageFinalReview, result.Stage)
}

func TestAggregateTieBreaksTowardCaution(t *testing.T) {
	result, err := Aggregate([]Feedback{
		fb("r1", RecMaybe, nil),
		fb("r2", RecYes, nil),
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, RecMaybe, result.Recommendation)
	assert.Equal(t, StageAdditionalReview, result.Stage)
}

func TestAggregateAveragesPerCriterion(t *testing.T) {
	result, err := Aggregate([]Feedback{
		fb("r1", RecYes, map[string]float64{"technical": 4, "communication": 5}),
		fb("r2", RecYes, map[string]float64{"technical": 3}),
	}, 2)
	require.NoError(t, err)

	assert.InDelta(t, 3.5, result.AveragedScores["technical"], 1e-9)

	// r2 never scored communication, so the mean is over one rater,
	// not a zero-padded pair.
	assert.InDelta(t, 5.0, result.AveragedScores["communication"], 1e-9)
}

func TestAggregateStageMapping(t *testing.T) {
	cases := []struct {
		rec   Recommendation
		stage Stage
	}{
		{RecStrongYes, StageOffer},
		{RecYes, StageFinalReview},
		{RecMaybe, StageAdditionalReview},
		{RecNo, StageRejected},
		{RecStrongNo, StageRejected},
	}
	for _, tc := range cases {
		t.Run(string(tc.rec), func(t *testing.T) {
			result, err := Aggregate([]Feedback{fb("r1", tc.rec, nil)}, 1)
			require.NoError(t, err)
			assert.Equal(t, tc.stage, result.Stage)
		})
	}
}

func TestAggregateRefusesIncompleteSet(t *testing.T) {
	_, err := Aggregate([]Feedback{fb("r1", RecYes, nil)}, 2)
	assert.ErrorIs(t, err, ErrIncompleteFeedbackSet)

	_, err = Aggregate(nil, 0)
	assert.ErrorIs(t, err, ErrIncompleteFeedbackSet)
}

func TestAggregateRejectsUnknownRecommendation(t *testing.T) {
	_, err := Aggregate([]Feedback{fb("r1", Recommendation("meh"), nil)}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meh")
}

func TestStageForUnknownRecommendation(t *testing.T) {
	_, err := StageFor(Recommendation("shrug"))
	assert.Error(t, err)
}

func TestRecommendationValid(t *testing.T) {
	for _, rec := range []Recommendation{RecStrongNo, RecNo, RecMaybe, RecYes, RecStrongYes} {
		assert.True(t, rec.Valid())
	}
	assert.False(t, Recommendation("").Valid())
	assert.False(t, Recommendation("YES").Valid())
}
