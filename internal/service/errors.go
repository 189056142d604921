package service

import (
	"errors"
	"fmt"
)

// Rejections a caller is expected to handle. Store failures are returned
// wrapped and match none of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidState     = errors.New("event is not open for this operation")
	ErrCapacityExceeded = errors.New("not enough seats left")
	ErrAlreadyReserved  = errors.New("user already holds a reservation for this event")
	ErrNothingToCancel  = errors.New("no active reservation to cancel")
	ErrForbidden        = errors.New("only the host may change this event")

	// ErrConflict means the event was too contended to lock in time.
	// Nothing was written; the request can be retried.
	ErrConflict = errors.New("event is busy, retry")
)

// CapacityExceededError reports how many seats were still free.
type CapacityExceededError struct {
	Remaining int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("%s: %d remaining", ErrCapacityExceeded, e.Remaining)
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
