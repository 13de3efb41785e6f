package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestExpandAscendingAndBounded(t *testing.T) {
	rule := Rule{
		Freq:    FreqWeekly,
		DTStart: date(2026, time.January, 5, 10, 0),
		Until:   date(2026, time.February, 2, 10, 0),
	}

	got := rule.Expand()
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].After(got[i-1]), "occurrences must ascend")
		assert.Equal(t, 7*24*time.Hour, got[i].Sub(got[i-1]))
	}
	assert.Equal(t, rule.DTStart, got[0])
	assert.Equal(t, rule.Until, got[4])
}

func TestExpandEmptyWhenUntilBeforeStart(t *testing.T) {
	rule := Rule{
		Freq:    FreqWeekly,
		DTStart: date(2026, time.March, 2, 9, 0),
		Until:   date(2026, time.February, 2, 9, 0),
	}
	assert.Empty(t, rule.Expand())
}

func TestSerializeParseRoundTrip(t *testing.T) {
	start := date(2026, time.January, 5, 10, 0)
	until := date(2026, time.March, 1, 10, 0)

	parsed, err := Parse(Serialize(start, until))
	require.NoError(t, err)

	direct := Rule{Freq: FreqWeekly, DTStart: start, Until: until}
	assert.Equal(t, direct.Expand(), parsed.Expand())
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"monthly", "DTSTART=20260105T100000Z;FREQ=MONTHLY;UNTIL=20260301T100000Z"},
		{"missing until", "DTSTART=20260105T100000Z;FREQ=WEEKLY"},
		{"missing dtstart", "FREQ=WEEKLY;UNTIL=20260301T100000Z"},
		{"garbage stamp", "DTSTART=next-monday;FREQ=WEEKLY;UNTIL=20260301T100000Z"},
		{"unknown component", "DTSTART=20260105T100000Z;FREQ=WEEKLY;UNTIL=20260301T100000Z;COUNT=4"},
		{"duplicate", "DTSTART=20260105T100000Z;DTSTART=20260105T100000Z;FREQ=WEEKLY;UNTIL=20260301T100000Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestParseAcceptsBareDates(t *testing.T) {
	rule, err := Parse("DTSTART=20260105;FREQ=WEEKLY;UNTIL=20260119")
	require.NoError(t, err)
	assert.Len(t, rule.Expand(), 3)
}

func TestRemaining(t *testing.T) {
	ruleStr := Serialize(date(2026, time.January, 5, 10, 0), date(2026, time.February, 2, 10, 0))

	t.Run("midway", func(t *testing.T) {
		got, err := Remaining(ruleStr, date(2026, time.January, 18, 0, 0))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 19, got[0].Day())
	})

	t.Run("from exactly on an occurrence day includes it", func(t *testing.T) {
		got, err := Remaining(ruleStr, date(2026, time.January, 19, 23, 59))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 19, got[0].Day())
	})

	t.Run("fully elapsed", func(t *testing.T) {
		got, err := Remaining(ruleStr, date(2026, time.June, 1, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSerializePreservesLocalCalendarDay(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	// 00:30 in Seoul is still the previous day in UTC; the written rule
	// must carry the local calendar day.
	start := time.Date(2026, time.January, 5, 0, 30, 0, 0, seoul)
	until := time.Date(2026, time.February, 2, 0, 30, 0, 0, seoul)
	ruleStr := Serialize(start, until)
	assert.Contains(t, ruleStr, "DTSTART=20260105T003000Z")
	assert.Contains(t, ruleStr, "UNTIL=20260202T003000Z")

	ok, err := IsValidOccurrence(ruleStr, time.Date(2026, time.January, 5, 10, 0, 0, 0, seoul))
	require.NoError(t, err)
	assert.True(t, ok, "series start day must survive serialization")

	got, err := Remaining(ruleStr, time.Date(2026, time.January, 5, 0, 0, 0, 0, seoul))
	require.NoError(t, err)
	assert.Len(t, got, 5, "the first occurrence is still ahead")
}

func TestIsValidOccurrenceIgnoresTimeOfDay(t *testing.T) {
	// Rule generated with a 10:00 dtstart must match a 23:59 query on the
	// same calendar day.
	ruleStr := Serialize(date(2026, time.January, 5, 10, 0), date(2026, time.February, 2, 10, 0))

	ok, err := IsValidOccurrence(ruleStr, date(2026, time.January, 12, 23, 59))
	require.NoError(t, err)
	assert.True(t, ok)

	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	ok, err = IsValidOccurrence(ruleStr, time.Date(2026, time.January, 12, 0, 30, 0, 0, seoul))
	require.NoError(t, err)
	assert.True(t, ok, "zone must not shift the calendar day")

	ok, err = IsValidOccurrence(ruleStr, date(2026, time.January, 13, 10, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}
