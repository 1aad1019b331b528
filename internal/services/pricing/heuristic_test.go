package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgeBandHeuristic_BandFor(t *testing.T) {
	h := NewAgeBandHeuristic(1)

	tests := []struct {
		age  time.Duration
		low  float64
		high float64
	}{
		{age: -time.Hour, low: 0.95, high: 1.05},
		{age: 6 * day, low: 0.95, high: 1.05},
		{age: 7 * day, low: 0.85, high: 1.15},
		{age: 89 * day, low: 0.70, high: 1.30},
		{age: 364 * day, low: 0.50, high: 1.50},
		{age: 1094 * day, low: 0.30, high: 0.80},
		{age: 5000 * day, low: 0.10, high: 0.50},
	}

	for _, tt := range tests {
		b := h.BandFor(tt.age)
		assert.Equal(t, tt.low, b.Low, "age %s", tt.age)
		assert.Equal(t, tt.high, b.High, "age %s", tt.age)
	}
}

func TestAgeBandHeuristic_EstimateWithinBand(t *testing.T) {
	h := NewAgeBandHeuristic(42)
	const reference = 40000.0

	for _, age := range []time.Duration{day, 20 * day, 60 * day, 200 * day, 700 * day, 2000 * day} {
		b := h.BandFor(age)
		for i := 0; i < 200; i++ {
			p := h.Estimate(reference, age)
			assert.GreaterOrEqual(t, p, reference*b.Low)
			assert.LessOrEqual(t, p, reference*b.High)
		}
	}
}

func TestAgeBandHeuristic_SeedIsReproducible(t *testing.T) {
	a := NewAgeBandHeuristic(7)
	b := NewAgeBandHeuristic(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Estimate(100, 10*day), b.Estimate(100, 10*day))
	}
}
