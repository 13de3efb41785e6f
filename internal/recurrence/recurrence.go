// Package recurrence expands weekly recurrence rules into concrete
// occurrence dates and round-trips them to a textual rule form for storage.
package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FreqWeekly is the only frequency the rule grammar supports.
const FreqWeekly = "WEEKLY"

const (
	timestampLayout = "20060102T150405Z"
	dateLayout      = "20060102"
)

// Rule is a bounded weekly recurrence: one occurrence per week starting at
// DTStart, up to and including Until.
type Rule struct {
	Freq    string
	DTStart time.Time
	Until   time.Time
}

// Serialize renders the rule string for a weekly series between start and
// until.
func Serialize(start, until time.Time) string {
	return Rule{Freq: FreqWeekly, DTStart: start, Until: until}.String()
}

// String renders the textual rule form, e.g.
// DTSTART=20260104T100000Z;FREQ=WEEKLY;UNTIL=20260301T100000Z.
// Timestamps are written with the rule's own wall-clock components, not
// converted to UTC: occurrence matching compares calendar days as
// written, and converting would shift an early-morning start in a
// positive-offset zone onto the previous day.
func (r Rule) String() string {
	return fmt.Sprintf("DTSTART=%s;FREQ=%s;UNTIL=%s",
		r.DTStart.Format(timestampLayout),
		r.Freq,
		r.Until.Format(timestampLayout))
}

// Parse decodes a rule string produced by Serialize. Timestamps may be
// full date-times or bare dates.
func Parse(s string) (Rule, error) {
	rule := Rule{Freq: FreqWeekly}
	seen := map[string]bool{}

	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("recurrence: malformed component %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if seen[key] {
			return Rule{}, fmt.Errorf("recurrence: duplicate component %s", key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			if !strings.EqualFold(val, FreqWeekly) {
				return Rule{}, fmt.Errorf("recurrence: unsupported frequency %q", val)
			}
		case "DTSTART":
			t, err := parseStamp(val)
			if err != nil {
				return Rule{}, fmt.Errorf("recurrence: bad DTSTART: %w", err)
			}
			rule.DTStart = t
		case "UNTIL":
			t, err := parseStamp(val)
			if err != nil {
				return Rule{}, fmt.Errorf("recurrence: bad UNTIL: %w", err)
			}
			rule.Until = t
		default:
			return Rule{}, fmt.Errorf("recurrence: unsupported component %s", key)
		}
	}

	if rule.DTStart.IsZero() {
		return Rule{}, fmt.Errorf("recurrence: DTSTART is required")
	}
	if rule.Until.IsZero() {
		return Rule{}, fmt.Errorf("recurrence: UNTIL is required")
	}
	return rule, nil
}

func parseStamp(s string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(dateLayout, s)
}

// Expand returns every occurrence of the rule in ascending order. The
// sequence is finite: it is bounded by Until and empty when Until precedes
// DTStart.
func (r Rule) Expand() []time.Time {
	var out []time.Time
	for t := r.DTStart; !t.After(r.Until); t = t.AddDate(0, 0, 7) {
		out = append(out, t)
	}
	return out
}

// Remaining returns the occurrences of ruleStr on or after from (by
// calendar day). The result is empty when the series has fully elapsed.
func Remaining(ruleStr string, from time.Time) ([]time.Time, error) {
	rule, err := Parse(ruleStr)
	if err != nil {
		return nil, err
	}
	all := rule.Expand()
	idx := sort.Search(len(all), func(i int) bool {
		return !dayBefore(all[i], from)
	})
	return all[idx:], nil
}

// IsValidOccurrence reports whether date falls on the same calendar day as
// some occurrence of ruleStr. Time of day and zone are ignored.
func IsValidOccurrence(ruleStr string, date time.Time) (bool, error) {
	rule, err := Parse(ruleStr)
	if err != nil {
		return false, err
	}
	for _, occ := range rule.Expand() {
		if sameDay(occ, date) {
			return true, nil
		}
	}
	return false, nil
}

// sameDay compares the calendar-day components of each value as written,
// deliberately not converting between zones.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
