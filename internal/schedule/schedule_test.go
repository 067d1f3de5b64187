package schedule

import (
	"reflect"
	"testing"
	"time"
)

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", "2026-08-31 "+hhmm)
	if err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return ts
}

func TestAddKeepsSortedAndUnique(t *testing.T) {
	times := []string{"06:00", "12:00"}

	out, ok := Add(times, "08:30")
	if !ok {
		t.Fatalf("expected add to succeed")
	}
	want := []string{"06:00", "08:30", "12:00"}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	// input must not be mutated
	if !reflect.DeepEqual(times, []string{"06:00", "12:00"}) {
		t.Fatalf("input mutated: %v", times)
	}

	// duplicate is a no-op
	out2, ok := Add(out, "08:30")
	if ok {
		t.Fatalf("expected duplicate add to fail")
	}
	if !reflect.DeepEqual(out2, want) {
		t.Fatalf("schedule changed on rejected add: %v", out2)
	}
}

func TestAddRejectsMalformed(t *testing.T) {
	bad := []string{"", "6:00", "24:00", "12:60", "ab:cd", "12:3", "12:345", " 12:00", "12:00 ", "12-00"}
	for _, in := range bad {
		if _, ok := Add(nil, in); ok {
			t.Errorf("expected %q to be rejected", in)
		}
	}
	good := []string{"00:00", "23:59", "09:05"}
	for _, in := range good {
		if _, ok := Add(nil, in); !ok {
			t.Errorf("expected %q to be accepted", in)
		}
	}
}

func TestRemove(t *testing.T) {
	times := []string{"06:00", "12:00", "16:02"}

	out, ok := Remove(times, 1)
	if !ok {
		t.Fatalf("expected remove to succeed")
	}
	if want := []string{"06:00", "16:02"}; !reflect.DeepEqual(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}

	for _, i := range []int{-1, 3, 100} {
		if _, ok := Remove(times, i); ok {
			t.Errorf("expected remove(%d) to fail", i)
		}
	}
	if _, ok := Remove(nil, 0); ok {
		t.Fatalf("expected remove on empty schedule to fail")
	}
}

func TestTickFiresOncePerMatchingMinute(t *testing.T) {
	times := []string{"06:00", "12:00"}

	fire, marker := Tick(times, at(t, "06:00"), "")
	if !fire || marker != "06:00" {
		t.Fatalf("first tick at 06:00: fire=%v marker=%q", fire, marker)
	}

	// same minute again: suppressed
	fire, marker = Tick(times, at(t, "06:00"), marker)
	if fire || marker != "06:00" {
		t.Fatalf("second tick at 06:00: fire=%v marker=%q", fire, marker)
	}

	// non-matching minute: no fire, marker re-arms
	fire, marker = Tick(times, at(t, "06:01"), marker)
	if fire || marker != "" {
		t.Fatalf("tick at 06:01: fire=%v marker=%q", fire, marker)
	}

	// next scheduled minute fires and moves the marker
	fire, marker = Tick(times, at(t, "12:00"), marker)
	if !fire || marker != "12:00" {
		t.Fatalf("tick at 12:00: fire=%v marker=%q", fire, marker)
	}
}

func TestTickSameMinuteNextDay(t *testing.T) {
	// The marker only compares the HH:MM string, so after a full day the
	// same minute fires again provided an intermediate tick saw another
	// minute (which a <=60s poll interval guarantees).
	times := []string{"06:00"}

	fire, marker := Tick(times, at(t, "06:00"), "")
	if !fire {
		t.Fatalf("expected fire")
	}
	_, marker = Tick(times, at(t, "06:01"), marker)
	fire, _ = Tick(times, at(t, "06:00"), marker)
	if !fire {
		t.Fatalf("expected fire on the next day's matching minute")
	}
}

func TestTickEmptySchedule(t *testing.T) {
	fire, marker := Tick(nil, at(t, "06:00"), "")
	if fire || marker != "" {
		t.Fatalf("empty schedule fired: fire=%v marker=%q", fire, marker)
	}
}
