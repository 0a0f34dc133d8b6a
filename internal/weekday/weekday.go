// Package weekday is the single source of truth for the three-valued
// weekday gate: nil ("no restriction"), an empty set ("never run"), and a
// non-empty subset of {1..7} ("run only on those weekdays"). The
// orchestrator's gate decides through IsAllowed; the admin API decodes the
// weekdays field straight into *[]int and does not call Parse.
package weekday

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/originpress/inkwell/pkg/apierr"
)

// Tag summarizes a weekday set for UI display.
type Tag string

const (
	TagEveryDay     Tag = "every_day"
	TagWeekday      Tag = "weekday"
	TagWeekend      Tag = "weekend"
	TagUnrestricted Tag = "unrestricted"
	TagNever        Tag = "never"
	TagCustom       Tag = "custom"
)

// Set is the parsed three-valued payload: nil means unrestricted, a non-nil
// empty slice means never, a non-nil non-empty slice restricts to those
// ISO weekdays.
type Set = *[]int

// Parse accepts a strictly-typed []int or nil and returns the normalized
// Set. Out-of-range days (outside 1-7) make the payload invalid.
func Parse(raw []int, isNull bool) (Set, error) {
	if isNull {
		return nil, nil
	}
	for _, d := range raw {
		if d < 1 || d > 7 {
			return nil, apierr.Validation("weekdays_json", "weekday values must be in 1..7")
		}
	}
	normalized := Normalize(raw)
	return &normalized, nil
}

// Coerce is the tolerant parser for legacy callers: besides []int or nil it
// also accepts a comma-separated string or a single integer. coercedFromLegacy
// reports whether a non-strict shape was accepted, so callers can log a
// deprecation warning.
func Coerce(value interface{}) (set Set, coercedFromLegacy bool, err error) {
	switch v := value.(type) {
	case nil:
		return nil, false, nil
	case []int:
		normalized := Normalize(v)
		return &normalized, false, nil
	case int:
		normalized := Normalize([]int{v})
		return &normalized, true, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			empty := []int{}
			return &empty, true, nil
		}
		parts := strings.Split(trimmed, ",")
		days := make([]int, 0, len(parts))
		for _, p := range parts {
			n, convErr := strconv.Atoi(strings.TrimSpace(p))
			if convErr != nil || n < 1 || n > 7 {
				return nil, true, apierr.Validation("weekdays_json", "could not coerce legacy weekday payload")
			}
			days = append(days, n)
		}
		normalized := Normalize(days)
		return &normalized, true, nil
	default:
		return nil, false, apierr.Validation("weekdays_json", "unsupported weekday payload type")
	}
}

// Normalize dedupes, sorts, and clips a raw day list to the 1..7 range.
func Normalize(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 1 || d > 7 {
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// IsAllowed reports whether a pipeline configured with days may run at
// instant, evaluated in tz.
func IsAllowed(days Set, instant time.Time, tz *time.Location) bool {
	if days == nil {
		return true
	}
	if len(*days) == 0 {
		return false
	}
	today := isoWeekday(instant.In(tz))
	for _, d := range *days {
		if d == today {
			return true
		}
	}
	return false
}

// isoWeekday converts Go's Sunday=0 weekday numbering to ISO's Monday=1.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// TagFor summarizes days for UI display.
func TagFor(days Set) Tag {
	if days == nil {
		return TagUnrestricted
	}
	d := Normalize(*days)
	switch {
	case len(d) == 0:
		return TagNever
	case len(d) == 7:
		return TagEveryDay
	case equalSets(d, []int{1, 2, 3, 4, 5}):
		return TagWeekday
	case equalSets(d, []int{6, 7}):
		return TagWeekend
	default:
		return TagCustom
	}
}

func equalSets(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
