package util

import (
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	stats := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	if stats.Mean != 5 {
		t.Errorf("Expected mean 5, got %f", stats.Mean)
	}
	if stats.StdDeviation != 2 {
		t.Errorf("Expected standard deviation 2, got %f", stats.StdDeviation)
	}
	if stats.Min != 2 || stats.Max != 9 {
		t.Errorf("Expected min/max 2/9, got %f/%f", stats.Min, stats.Max)
	}

	if empty := NewStats(nil); empty != (Stats{}) {
		t.Errorf("Expected zero stats for empty input, got %+v", empty)
	}
}

func TestDistributionQuality(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1 {
		t.Errorf("Even distribution should have quality 1, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{0, 0, 0, 40})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Skewed distribution should have lower quality, got %f", skewed.DistributionQuality)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram()

	if h.Median() != 0 || h.Average() != 0 {
		t.Error("Empty histogram should report zero estimates")
	}

	for i := 0; i < 90; i++ {
		h.AddSample(1)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(100)
	}

	if h.Count() != 100 {
		t.Errorf("Expected 100 samples, got %d", h.Count())
	}
	if h.Median() != 1 {
		t.Errorf("Expected median 1, got %d", h.Median())
	}
	if p := h.Percentile(95); p != 128 {
		t.Errorf("Expected 95th percentile bucket 128, got %d", p)
	}
	if avg := h.Average(); math.Abs(avg-10.9) > 1e-9 {
		t.Errorf("Expected average 10.9, got %f", avg)
	}

	h.AddSample(1 << 20)
	if p := h.Percentile(100); p != 1<<17 {
		t.Errorf("Expected overflow estimate %d, got %d", 1<<17, p)
	}

	h.Reset()
	if h.Count() != 0 {
		t.Errorf("Expected empty histogram after reset, got %d samples", h.Count())
	}
}

func TestHashString(t *testing.T) {
	if HashString("key", 1) != HashString("key", 1) {
		t.Error("HashString must be deterministic")
	}
	if HashString("key", 1) == HashString("key", 2) {
		t.Error("Different seeds should produce different hashes")
	}
	if Mix64(1) == Mix64(2) {
		t.Error("Mix64 should spread adjacent values")
	}
}
