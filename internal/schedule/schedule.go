package schedule

import (
	"regexp"
	"sort"
	"time"
)

// TimeLayout is the wall-clock format of a schedule entry.
const TimeLayout = "15:04"

// Default is the built-in schedule used when no file exists or the existing
// one cannot be read.
func Default() []string {
	return []string{"06:00", "12:00", "16:02"}
}

var reEntry = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Valid reports whether s is a strict 24-hour "HH:MM" entry.
func Valid(s string) bool { return reEntry.MatchString(s) }

// Add returns a copy of times with t inserted in sorted position.
// Malformed or duplicate entries are rejected and the input is returned
// unchanged. The input slice is never mutated.
func Add(times []string, t string) ([]string, bool) {
	if !Valid(t) {
		return times, false
	}
	for _, e := range times {
		if e == t {
			return times, false
		}
	}
	out := make([]string, 0, len(times)+1)
	out = append(out, times...)
	out = append(out, t)
	// Lexicographic order equals chronological order for zero-padded HH:MM.
	sort.Strings(out)
	return out, true
}

// Remove returns a copy of times without the element at index i.
func Remove(times []string, i int) ([]string, bool) {
	if i < 0 || i >= len(times) {
		return times, false
	}
	out := make([]string, 0, len(times)-1)
	out = append(out, times[:i]...)
	out = append(out, times[i+1:]...)
	return out, true
}

// Tick decides whether a feed should fire at now.
//
// It fires exactly once per matching minute: true iff now formatted as
// HH:MM is a member of times AND differs from lastMarker. On fire the new
// marker is that time string; once the clock leaves the fired minute the
// marker resets so the same entry fires again on a later day.
func Tick(times []string, now time.Time, lastMarker string) (bool, string) {
	cur := now.Format(TimeLayout)
	if cur == lastMarker {
		return false, lastMarker
	}
	for _, e := range times {
		if e == cur {
			return true, cur
		}
	}
	// Outside the fired minute: clear the marker so the same wall-clock time
	// fires again on a later day.
	return false, ""
}
