package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Queue message types published after a committed mutation.
const (
	EventCreated   = "schedule.created"
	EventCancelled = "schedule.cancelled"
)

// Event is the payload carried on the notification queue. Delivery
// (email, AlimTalk) happens in the worker, outside the booking path.
type Event struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	OrgID      uuid.UUID `json:"org_id"`
	StudentID  uuid.UUID `json:"student_id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}
