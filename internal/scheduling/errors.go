package scheduling

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the lifecycle manager.
var (
	// ErrForbidden means the actor does not own the resource or is
	// outside their organization scope.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced schedule, organization, member or
	// program does not exist.
	ErrNotFound = errors.New("not found")
)

// PolicyViolationError rejects a request before any capacity check: date
// outside the allowed window, past date, same-day cancellation. The
// reason is specific enough to render to the end user.
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string { return e.Reason }

// CapacityExceededError rejects a booking whose slot is at or over the
// configured concurrency cap.
type CapacityExceededError struct {
	CurrentCount int
	MaxCount     int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("slot is full: %d of %d students already booked", e.CurrentCount, e.MaxCount)
}

// StudentConflictError rejects a booking overlapping one the student
// already holds, regardless of program.
type StudentConflictError struct{}

func (e *StudentConflictError) Error() string {
	return "student already has a schedule overlapping this time"
}
