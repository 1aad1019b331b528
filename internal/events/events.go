package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mvrv/internal/domain/mvrv"
)

// Event types
const (
	TypeRecordUpserted = "mvrv.record.upserted"
	TypeCycleCompleted = "mvrv.cycle.completed"
)

// Cycle statuses
const (
	CycleSuccess  = "success"
	CycleFallback = "fallback"
	CycleFailed   = "failed"
)

// RecordEvent is published for every persisted record.
// Dollar amounts are encoded as decimal strings.
type RecordEvent struct {
	EventID       string          `json:"event_id"`
	Type          string          `json:"type"`
	CycleID       string          `json:"cycle_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Timeframe     mvrv.Timeframe  `json:"timeframe"`
	MarketValue   decimal.Decimal `json:"market_value_usd"`
	RealizedValue decimal.Decimal `json:"realized_value_usd"`
	Ratio         decimal.Decimal `json:"ratio"`
	Signal        mvrv.Signal     `json:"signal"`
	Confidence    float64         `json:"confidence"`
	Degenerate    bool            `json:"degenerate"`
	DataPoints    int             `json:"data_points"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewRecordEvent converts a record into its wire form
func NewRecordEvent(record *mvrv.Record, cycleID string, now time.Time) RecordEvent {
	return RecordEvent{
		EventID:       uuid.NewString(),
		Type:          TypeRecordUpserted,
		CycleID:       cycleID,
		Timestamp:     record.Timestamp.UTC(),
		Timeframe:     record.Timeframe,
		MarketValue:   decimal.NewFromFloat(record.MarketValue).Round(2),
		RealizedValue: decimal.NewFromFloat(record.RealizedValue).Round(2),
		Ratio:         decimal.NewFromFloat(record.Ratio).Round(6),
		Signal:        record.Signal,
		Confidence:    record.Confidence,
		Degenerate:    record.Degenerate,
		DataPoints:    record.DataPoints,
		PublishedAt:   now.UTC(),
	}
}

// CycleEvent summarizes one scheduled or manual cycle
type CycleEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	CycleID    string    `json:"cycle_id"`
	Worker     string    `json:"worker"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}
