package auction

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	start, end := t0, t0.Add(48*time.Hour)

	tests := []struct {
		name     string
		now      time.Time
		expected Phase
	}{
		{name: "BeforeStart", now: t0.Add(-time.Second), expected: PhaseScheduled},
		{name: "AtStart", now: t0, expected: PhaseActive},
		{name: "WellBeforeEnd", now: t0.Add(time.Hour), expected: PhaseActive},
		{name: "ExactlyThresholdLeft", now: end.Add(-24 * time.Hour), expected: PhaseEndingSoon},
		{name: "LastSecond", now: end.Add(-time.Second), expected: PhaseEndingSoon},
		{name: "AtEnd", now: end, expected: PhaseEnded},
		{name: "LongAfterEnd", now: end.Add(365 * 24 * time.Hour), expected: PhaseEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.now, start, end, DefaultEndingSoon); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestClassify_EndingSoonBeforeStart(t *testing.T) {
	// A short auction that has not opened is scheduled, not ending-soon
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := Classify(t0.Add(-time.Minute), t0, t0.Add(time.Hour), DefaultEndingSoon)
	if got != PhaseScheduled {
		t.Errorf("expected scheduled, got %s", got)
	}
}

func TestClassify_EndedIsTerminal(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := t0.Add(time.Hour)
	for offset := time.Duration(0); offset < 10*time.Hour; offset += 17 * time.Minute {
		if got := Classify(end.Add(offset), t0, end, DefaultEndingSoon); got != PhaseEnded {
			t.Fatalf("at end+%s expected ended, got %s", offset, got)
		}
	}
}

func TestCanAcceptBid(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	start, end := t0, t0.Add(time.Hour)

	tests := []struct {
		name     string
		now      time.Time
		expected bool
	}{
		{name: "BeforeStart", now: start.Add(-time.Nanosecond), expected: false},
		{name: "AtStart", now: start, expected: true},
		{name: "Middle", now: start.Add(30 * time.Minute), expected: true},
		{name: "JustBeforeEnd", now: end.Add(-time.Nanosecond), expected: true},
		{name: "AtEnd", now: end, expected: false},
		{name: "AfterEnd", now: end.Add(time.Second), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAcceptBid(tt.now, start, end); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
