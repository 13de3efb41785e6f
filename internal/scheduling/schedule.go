package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is one booked time slot. Occurrences materialized from a
// recurring series carry a ParentID back to the row holding the rule;
// IsException marks an occurrence that was individually moved out of its
// otherwise-regular series.
type Schedule struct {
	ID             uuid.UUID  `json:"id"`
	OrgID          uuid.UUID  `json:"org_id"`
	ProgramID      *uuid.UUID `json:"program_id,omitempty"`
	StudentID      uuid.UUID  `json:"student_id"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         time.Time  `json:"ends_at"`
	RecurrenceRule *string    `json:"recurrence_rule,omitempty"`
	ParentID       *uuid.UUID `json:"parent_schedule_id,omitempty"`
	IsException    bool       `json:"is_exception"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Availability is the checker verdict for a proposed slot. CurrentCount
// and MaxCount are reported even on rejection so callers can render a
// precise message.
type Availability struct {
	Allowed      bool `json:"allowed"`
	CurrentCount int  `json:"current_count"`
	MaxCount     int  `json:"max_count"`
	HasConflict  bool `json:"has_conflict"`
}

// Overlaps reports half-open interval intersection: [a1,a2) and [b1,b2)
// overlap iff a1 < b2 && b1 < a2.
func Overlaps(a1, a2, b1, b2 time.Time) bool {
	return a1.Before(b2) && b1.Before(a2)
}
