package database

import (
	"testing"
	"time"
)

func TestDateParamUsesCalendarDateOfLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	midnight := time.Date(2025, time.July, 17, 0, 0, 0, 0, ist)

	if got := DateParam(midnight); got != "2025-07-17" {
		t.Errorf("DateParam = %q, want 2025-07-17", got)
	}
}

func TestDateIn(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	scanned := time.Date(2025, time.July, 17, 0, 0, 0, 0, time.UTC)

	got := DateIn(scanned, ist)
	want := time.Date(2025, time.July, 17, 0, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Errorf("DateIn = %v, want %v", got, want)
	}
}
