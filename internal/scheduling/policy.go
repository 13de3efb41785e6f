package scheduling

import (
	"fmt"
	"time"

	"lessonhub/internal/org"
)

// DurationOption is one of the fixed slot lengths offered to students.
type DurationOption struct {
	Label string `json:"label"`
	Hours int    `json:"hours"`
}

// DurationOptions returns the enumerated slot lengths, shortest first.
func DurationOptions() []DurationOption {
	return []DurationOption{
		{Label: "1 hour", Hours: 1},
		{Label: "2 hours", Hours: 2},
		{Label: "3 hours", Hours: 3},
		{Label: "4 hours", Hours: 4},
	}
}

// Policy computes, without side effects, which calendar dates a student
// may interact with and what slot durations are offered. All date math is
// done in the organization's local zone.
type Policy struct {
	loc             *time.Location
	windowDays      int
	defaultDuration int
	intervalMinutes int
}

// PolicyFor builds the policy for one organization from its settings.
func PolicyFor(loc *time.Location, settings org.Settings) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{
		loc:             loc,
		windowDays:      settings.BookingWindowDays,
		defaultDuration: settings.ScheduleDurationHours,
		intervalMinutes: settings.BookingIntervalMinutes,
	}
}

// AllowedBookingRange returns the half-open window of instants a booking
// may start in: from local midnight today through windowDays ahead.
func (p Policy) AllowedBookingRange(now time.Time) (start, end time.Time) {
	start = p.startOfDay(now)
	end = start.AddDate(0, 0, p.windowDays+1)
	return start, end
}

// CanCreate reports whether a booking starting at t is inside the allowed
// window. Past dates are never allowed.
func (p Policy) CanCreate(t, now time.Time) bool {
	start, end := p.AllowedBookingRange(now)
	return !t.Before(start) && t.Before(end)
}

// CanCancel reports whether a schedule starting at startsAt may still be
// cancelled: only when its local start date is strictly after today.
// Same-day cancellation is always disallowed, regardless of how many
// hours remain before start.
func (p Policy) CanCancel(startsAt, now time.Time) bool {
	return p.startOfDay(startsAt).After(p.startOfDay(now))
}

// CanMutate reports whether an admin may still touch a schedule: today
// and future dates only. Past schedules are immutable history.
func (p Policy) CanMutate(startsAt, now time.Time) bool {
	return !p.startOfDay(startsAt).Before(p.startOfDay(now))
}

// ResolveDuration maps a requested duration option to a wall-clock
// duration. Anything outside the enumerated options falls back to the
// organization's configured default instead of failing the request.
func (p Policy) ResolveDuration(hours int) time.Duration {
	for _, opt := range DurationOptions() {
		if opt.Hours == hours {
			return time.Duration(opt.Hours) * time.Hour
		}
	}
	return time.Duration(p.defaultDuration) * time.Hour
}

// SlotTimes resolves a calendar date and clock time into the slot's start
// and end instants. The date is resolved as a local calendar day first
// and the clock time applied after, so a date near midnight is never
// reinterpreted across a UTC boundary.
func (p Policy) SlotTimes(dateStr, timeStr string, duration time.Duration) (start, end time.Time, err error) {
	day, err := time.ParseInLocation("2006-01-02", dateStr, p.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", dateStr)
	}
	clock, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q: expected HH:MM", timeStr)
	}
	if p.intervalMinutes > 0 {
		if (clock.Hour()*60+clock.Minute())%p.intervalMinutes != 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("start time must align to %d-minute intervals", p.intervalMinutes)
		}
	}

	start = time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, p.loc)
	end = start.Add(duration)
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("slot must end after it starts")
	}
	return start, end, nil
}

func (p Policy) startOfDay(t time.Time) time.Time {
	local := t.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
}
