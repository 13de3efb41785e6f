package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonhub/internal/org"
)

func testPolicy(t *testing.T, tz string) Policy {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)
	return PolicyFor(loc, org.DefaultSettings())
}

func TestAllowedBookingRange(t *testing.T) {
	p := testPolicy(t, "UTC")
	now := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)

	start, end := p.AllowedBookingRange(now)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC), end)
}

func TestCanCreate(t *testing.T) {
	p := testPolicy(t, "UTC")
	now := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		slot time.Time
		want bool
	}{
		{"yesterday", time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC), false},
		{"earlier today", time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC), true},
		{"tomorrow", time.Date(2026, time.March, 11, 10, 0, 0, 0, time.UTC), true},
		{"last day of window", time.Date(2026, time.April, 9, 10, 0, 0, 0, time.UTC), true},
		{"past the window", time.Date(2026, time.April, 10, 10, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.CanCreate(tc.slot, now))
		})
	}
}

func TestCanCancelSameDayLock(t *testing.T) {
	p := testPolicy(t, "Asia/Seoul")
	seoul, _ := time.LoadLocation("Asia/Seoul")
	now := time.Date(2026, time.March, 10, 1, 0, 0, 0, seoul)

	// Same local day is locked even with hours left before start.
	assert.False(t, p.CanCancel(time.Date(2026, time.March, 10, 23, 0, 0, 0, seoul), now))
	assert.True(t, p.CanCancel(time.Date(2026, time.March, 11, 0, 30, 0, 0, seoul), now))
	assert.False(t, p.CanCancel(time.Date(2026, time.March, 9, 10, 0, 0, 0, seoul), now))
}

func TestResolveDurationFallsBackToConfiguredDefault(t *testing.T) {
	settings := org.DefaultSettings()
	settings.ScheduleDurationHours = 2
	p := PolicyFor(time.UTC, settings)

	assert.Equal(t, 4*time.Hour, p.ResolveDuration(4))
	assert.Equal(t, 2*time.Hour, p.ResolveDuration(0), "missing option uses org default")
	assert.Equal(t, 2*time.Hour, p.ResolveDuration(9), "invalid option uses org default")
}

func TestSlotTimesKeepsLocalCalendarDay(t *testing.T) {
	p := testPolicy(t, "Asia/Seoul")

	// 00:30 local is before midnight UTC of the previous day; the calendar
	// day must not shift.
	start, end, err := p.SlotTimes("2026-03-10", "00:30", 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 10, start.Day())
	assert.Equal(t, "Asia/Seoul", start.Location().String())
	assert.Equal(t, 3*time.Hour, end.Sub(start))
}

func TestSlotTimesValidation(t *testing.T) {
	p := testPolicy(t, "UTC")

	_, _, err := p.SlotTimes("03/10/2026", "10:00", time.Hour)
	assert.Error(t, err, "non-ISO date rejected")

	_, _, err = p.SlotTimes("2026-03-10", "25:00", time.Hour)
	assert.Error(t, err, "bad clock time rejected")

	_, _, err = p.SlotTimes("2026-03-10", "10:10", time.Hour)
	assert.Error(t, err, "start must align to the booking interval")

	_, _, err = p.SlotTimes("2026-03-10", "10:00", 0)
	assert.Error(t, err, "zero duration yields end <= start")
}

func TestOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	end := base.Add(3 * time.Hour)

	assert.True(t, Overlaps(base, end, base.Add(time.Hour), base.Add(2*time.Hour)))
	assert.True(t, Overlaps(base, end, base.Add(-time.Hour), base.Add(time.Hour)))
	assert.False(t, Overlaps(base, end, end, end.Add(time.Hour)), "touching intervals do not overlap")
	assert.False(t, Overlaps(base, end, base.Add(-time.Hour), base), "touching on the left either")
}
