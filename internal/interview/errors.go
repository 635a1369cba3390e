package interview

import "errors"

var (
	// ErrNotFound means no interview record exists for the id.
	ErrNotFound = errors.New("interview not found")

	// ErrAlreadyScheduled is the loser of a slot-confirmation race.
	// The winner's slot stands; nothing is silently overwritten.
	ErrAlreadyScheduled = errors.New("interview already scheduled")

	// ErrNoSuchSlot means the confirmation referenced a candidate slot
	// index that does not exist.
	ErrNoSuchSlot = errors.New("candidate slot does not exist")

	// ErrUnknownRater means the submitting rater is not in the
	// expected rater set fixed at scheduling time.
	ErrUnknownRater = errors.New("rater is not expected for this interview")

	// ErrDuplicateFeedback means the rater already submitted; feedback
	// is append-only with at most one entry per rater.
	ErrDuplicateFeedback = errors.New("rater has already submitted feedback")

	// ErrInvalidTransition means the record was not in the required
	// state for the requested operation.
	ErrInvalidTransition = errors.New("invalid interview status transition")

	// ErrSuperseded means the record was replaced by a reschedule and
	// accepts no further mutations.
	ErrSuperseded = errors.New("interview record has been superseded")
)
