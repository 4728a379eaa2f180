package etc

import (
	"testing"
	"time"
)

func TestNewFreshIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewFreshID()
		if id == "" {
			t.Fatal("empty id")
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestTimezoneInfoFormat(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2025, time.March, 9, 14, 5, 7, 0, loc)

	info := timezoneInfoAt(now)

	if info.Timezone != "CET" {
		t.Errorf("timezone = %q, want CET", info.Timezone)
	}
	if info.CurrentDate != "Sunday, March 9, 2025" {
		t.Errorf("date = %q", info.CurrentDate)
	}
	if info.CurrentTime != "14:05:07" {
		t.Errorf("time = %q", info.CurrentTime)
	}
	if info.CurrentDateTime != "Sunday, March 9, 2025 at 14:05:07" {
		t.Errorf("datetime = %q", info.CurrentDateTime)
	}
}
