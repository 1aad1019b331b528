package mvrv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Signal
	}{
		{0, SignalBuy},
		{0.99, SignalBuy},
		{1.0, SignalHold},
		{2.0, SignalHold},
		{2.39, SignalHold},
		{2.4, SignalCaution},
		{3.69, SignalCaution},
		{3.7, SignalSell},
		{10, SignalSell},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestClassify_MarketScenario(t *testing.T) {
	ratio := 800e9 / 400e9
	assert.Equal(t, 2.0, ratio)
	assert.Equal(t, SignalHold, Classify(ratio))
}

func TestTimeHelpers(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2024, 3, 10, 1, 45, 30, 0, loc) // 2024-03-09 22:45:30 UTC

	assert.Equal(t, time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC), HourStart(ts))
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), DayStart(ts))
	assert.Equal(t, time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC), DayNoon(ts))
}

func TestUTXO_BTC(t *testing.T) {
	u := UTXO{ValueSats: 150_000_000}
	assert.Equal(t, 1.5, u.BTC())

	u = UTXO{ValueSats: 12_345_678_901}
	assert.Equal(t, 123.45678901, u.BTC())
}
