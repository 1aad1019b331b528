package mvrv

import (
	"time"

	"github.com/shopspring/decimal"
)

// SatoshisPerBTC is the number of base units in one bitcoin
const SatoshisPerBTC = 100_000_000

// Bounds of the confidence multiplier applied to a realized-value estimate
const (
	MinConfidenceMultiplier = 0.8
	MaxConfidenceMultiplier = 1.2
)

// Timeframe tags a persisted record with its aggregation window
type Timeframe string

const (
	TimeframeHourly Timeframe = "hourly"
	TimeframeDaily  Timeframe = "daily"
)

// Valid reports whether tf is a known timeframe
func (tf Timeframe) Valid() bool {
	return tf == TimeframeHourly || tf == TimeframeDaily
}

// String implements fmt.Stringer
func (tf Timeframe) String() string {
	return string(tf)
}

// PriceSource records which resolution tier produced a price
type PriceSource string

const (
	PriceSourceCache     PriceSource = "cache"
	PriceSourceStore     PriceSource = "store"
	PriceSourceProvider  PriceSource = "provider"
	PriceSourceHeuristic PriceSource = "heuristic"
	PriceSourceSpot      PriceSource = "spot"
)

// UTXO is a point-in-time sample member. Never mutated after sampling.
type UTXO struct {
	TxID        string
	OutputIndex uint32
	ValueSats   int64
	CreatedAt   time.Time
	Address     string // empty for non-standard outputs
	ScriptClass string // p2pkh, p2sh, v0_p2wpkh, v1_p2tr, ...
	Confidence  float64
}

// BTC returns the output value in bitcoin
func (u UTXO) BTC() float64 {
	return decimal.New(u.ValueSats, -8).InexactFloat64()
}

// PricePoint is a USD price at an instant
type PricePoint struct {
	At     time.Time
	Price  float64
	Source PriceSource
}

// IsHeuristic reports whether the price was estimated rather than observed
func (p PricePoint) IsHeuristic() bool {
	return p.Source == PriceSourceHeuristic
}

// MarketSnapshot is the spot market state used for market value
type MarketSnapshot struct {
	At                time.Time
	PriceUSD          float64
	CirculatingSupply float64
}

// MarketValue returns price × circulating supply
func (m MarketSnapshot) MarketValue() float64 {
	return m.PriceUSD * m.CirculatingSupply
}

// EstimationResult is the ephemeral output of one realized-value estimate
type EstimationResult struct {
	SampleSize           int
	PricedCount          int
	SkippedCount         int
	HeuristicCount       int
	RawValue             float64
	WeightedValue        float64
	AverageConfidence    float64
	ConfidenceMultiplier float64
	ScalingFactor        float64
	RealizedValue        float64
}

// Record is a persisted MVRV observation, unique per (Timestamp, Timeframe)
type Record struct {
	Timestamp     time.Time `ch:"timestamp" db:"timestamp" json:"timestamp"`
	Timeframe     Timeframe `ch:"timeframe" db:"timeframe" json:"timeframe"`
	MarketValue   float64   `ch:"market_value" db:"market_value" json:"market_value"`
	RealizedValue float64   `ch:"realized_value" db:"realized_value" json:"realized_value"`
	Ratio         float64   `ch:"ratio" db:"ratio" json:"ratio"`
	Signal        Signal    `ch:"signal" db:"signal" json:"signal"`
	Confidence    float64   `ch:"confidence" db:"confidence" json:"confidence"`

	// Degenerate is set when realized value <= 0; Ratio is then 0 and must not be trusted
	Degenerate bool `ch:"degenerate" db:"degenerate" json:"degenerate"`

	// DataPoints is the sample size (hourly) or the number of hourly rows averaged (daily)
	DataPoints int       `ch:"data_points" db:"data_points" json:"data_points"`
	UpdatedAt  time.Time `ch:"updated_at" db:"updated_at" json:"updated_at"`
}

// Key identifies a record for upsert purposes
type Key struct {
	Timestamp time.Time
	Timeframe Timeframe
}

// Key returns the composite upsert key, normalized to UTC
func (r *Record) Key() Key {
	return Key{Timestamp: r.Timestamp.UTC(), Timeframe: r.Timeframe}
}

// HourStart truncates t to the start of its UTC hour
func HourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// DayStart returns UTC midnight of t's calendar day
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayNoon returns the representative instant used for daily records
func DayNoon(t time.Time) time.Time {
	return DayStart(t).Add(12 * time.Hour)
}

// Insights summarizes a window of recent hourly records
type Insights struct {
	WindowSize     int       `json:"window_size"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	CurrentRatio   float64   `json:"current_ratio"`
	CurrentSignal  Signal    `json:"current_signal"`
	MeanRatio      float64   `json:"mean_ratio"`
	MinRatio       float64   `json:"min_ratio"`
	MaxRatio       float64   `json:"max_ratio"`
	StdDevRatio    float64   `json:"stddev_ratio"`
	Trend          string    `json:"trend"`
	MeanConfidence float64   `json:"mean_confidence"`
	DataQuality    string    `json:"data_quality"`
}
