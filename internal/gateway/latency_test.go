package gateway

import (
	"math"
	"testing"
	"time"
)

func TestLatencyTracker_Empty(t *testing.T) {
	p50, p95, p99 := NewLatencyTracker(100).Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker: expected (0,0,0), got (%f,%f,%f)", p50, p95, p99)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(1000)
	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}

	p50, p95, p99 := lt.Percentiles()
	if math.Abs(p50-50.5) > 1e-9 {
		t.Errorf("p50: got %f, want 50.5", p50)
	}
	if math.Abs(p95-95.05) > 1e-9 {
		t.Errorf("p95: got %f, want 95.05", p95)
	}
	if math.Abs(p99-99.01) > 1e-9 {
		t.Errorf("p99: got %f, want 99.01", p99)
	}
}

func TestLatencyTracker_WraparoundAndObserve(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 1; i <= 20; i++ {
		lt.Observe(time.Duration(i) * time.Millisecond)
	}
	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", lt.Count())
	}

	// Buffer holds 11..20 ms.
	p50, _, p99 := lt.Percentiles()
	if math.Abs(p50-15.5) > 1e-9 {
		t.Errorf("p50 after wraparound: got %f, want 15.5", p50)
	}
	if p99 > 20 || p99 < 19 {
		t.Errorf("p99 after wraparound: got %f", p99)
	}
}
