package queue

import (
	"errors"
	"fmt"

	"launchlock/internal/services"
)

var (
	// ErrNotFound is returned when a command id does not exist.
	ErrNotFound = errors.New("command not found")
	// ErrStatusConflict is returned when a conditional transition lost a race:
	// the row no longer has the status the caller observed.
	ErrStatusConflict = errors.New("command status changed concurrently")
)

// IllegalTransitionError reports a transition outside the status graph.
type IllegalTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("command %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// FailureStatus maps a handler error to the status the worker should persist.
//
// Policy and validation failures need an operator. Fatal failures stop. Anything
// else is transient and retried until the attempt budget is spent, after which
// it also needs an operator.
func FailureStatus(err error, attempts, maxAttempts int) Status {
	switch services.Classify(err) {
	case services.KindPolicy, services.KindValidation:
		return StatusHumanRequired
	case services.KindFatal:
		return StatusFailedFatal
	default:
		if maxAttempts > 0 && attempts >= maxAttempts {
			return StatusHumanRequired
		}
		return StatusFailedRetryable
	}
}
