package mvrv

// Signal is the valuation zone a ratio falls into
type Signal string

const (
	SignalBuy        Signal = "BUY"
	SignalHold       Signal = "HOLD"
	SignalCaution    Signal = "CAUTION"
	SignalSell       Signal = "SELL"
	SignalDegenerate Signal = "DEGENERATE"
)

type threshold struct {
	min    float64
	signal Signal
}

// ladder is checked from the highest bound down
var ladder = []threshold{
	{min: 3.7, signal: SignalSell},
	{min: 2.4, signal: SignalCaution},
	{min: 1.0, signal: SignalHold},
}

// Classify maps a ratio onto the 4-zone ladder:
// BUY < 1.0 <= HOLD < 2.4 <= CAUTION < 3.7 <= SELL
func Classify(ratio float64) Signal {
	for _, t := range ladder {
		if ratio >= t.min {
			return t.signal
		}
	}
	return SignalBuy
}

// Description returns a human-readable explanation for CLI and API output
func (s Signal) Description() string {
	switch s {
	case SignalBuy:
		return "market value below realized value, historically undervalued"
	case SignalHold:
		return "fair value range"
	case SignalCaution:
		return "elevated valuation, profit taking likely"
	case SignalSell:
		return "historically overvalued"
	case SignalDegenerate:
		return "realized value unavailable, ratio not meaningful"
	default:
		return "unknown"
	}
}
