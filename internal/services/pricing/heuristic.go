package pricing

import (
	"math/rand"
	"sync"
	"time"
)

// PriceHeuristic estimates a historical price when no observed price exists.
// Implementations must not fail.
type PriceHeuristic interface {
	Estimate(reference float64, age time.Duration) float64
}

// Band is a multiplier range applied to the reference price for ages below MaxAge
type Band struct {
	MaxAge time.Duration
	Low    float64
	High   float64
}

const day = 24 * time.Hour

// DefaultBands widen with age. The last band has no upper age bound.
var DefaultBands = []Band{
	{MaxAge: 7 * day, Low: 0.95, High: 1.05},
	{MaxAge: 30 * day, Low: 0.85, High: 1.15},
	{MaxAge: 90 * day, Low: 0.70, High: 1.30},
	{MaxAge: 365 * day, Low: 0.50, High: 1.50},
	{MaxAge: 1095 * day, Low: 0.30, High: 0.80},
	{MaxAge: 0, Low: 0.10, High: 0.50},
}

// AgeBandHeuristic draws a uniform multiplier from the band matching the age
type AgeBandHeuristic struct {
	bands []Band

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewAgeBandHeuristic creates a heuristic over DefaultBands. seed 0 uses the clock.
func NewAgeBandHeuristic(seed int64) *AgeBandHeuristic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &AgeBandHeuristic{
		bands: DefaultBands,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

// BandFor returns the band an age falls into
func (h *AgeBandHeuristic) BandFor(age time.Duration) Band {
	if age < 0 {
		age = 0
	}
	for _, b := range h.bands {
		if b.MaxAge == 0 || age < b.MaxAge {
			return b
		}
	}
	return h.bands[len(h.bands)-1]
}

// Estimate returns reference × U(low, high) for the age band
func (h *AgeBandHeuristic) Estimate(reference float64, age time.Duration) float64 {
	b := h.BandFor(age)

	h.mu.Lock()
	u := h.rnd.Float64()
	h.mu.Unlock()

	return reference * (b.Low + u*(b.High-b.Low))
}

// FixedHeuristic returns reference × Multiplier. Deterministic, for tests and dry runs.
type FixedHeuristic struct {
	Multiplier float64
}

func (h FixedHeuristic) Estimate(reference float64, _ time.Duration) float64 {
	return reference * h.Multiplier
}
