package sequencer

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid sequence graph")
	ErrMissingLeadSource = errors.New("no Lead-Source node found")
	ErrMalformedLabel    = errors.New("malformed node label")
	ErrNotFound          = errors.New("sequence not found")
	ErrAlreadyScheduled  = errors.New("sequence is not pending")
	ErrPersistence       = errors.New("sequence store unavailable")
	ErrScheduler         = errors.New("job submission failed")
	ErrLockHeld          = errors.New("sequence is locked by another request")
)

// SchedulerError reports which job submission failed and how many jobs had
// been submitted before it within the same batch.
type SchedulerError struct {
	Step      int
	Submitted int
	Err       error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("%v: step %d (%d submitted before failure): %v", ErrScheduler, e.Step, e.Submitted, e.Err)
}

func (e *SchedulerError) Unwrap() []error {
	return []error{ErrScheduler, e.Err}
}

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func malformedLabelf(nodeID string, kind NodeKind, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s node %s: %s", ErrMalformedLabel, kind, nodeID, fmt.Sprintf(format, args...))
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
