package mvrv

import (
	"context"
	"time"
)

// Repository persists MVRV records and historical prices.
// Writes are upserts keyed by (timestamp, timeframe) or by instant; last write wins.
type Repository interface {
	UpsertRecord(ctx context.Context, record *Record) error

	// QueryHistory returns the most recent limit records in chronological order
	QueryHistory(ctx context.Context, tf Timeframe, limit int) ([]Record, error)

	// GetLatest returns errors.ErrNotFound when no record exists
	GetLatest(ctx context.Context, tf Timeframe) (*Record, error)

	// QueryRange returns records with from <= timestamp < to, chronological
	QueryRange(ctx context.Context, tf Timeframe, from, to time.Time) ([]Record, error)

	UpsertHistoricalPrice(ctx context.Context, at time.Time, price float64) error
	UpsertHistoricalPrices(ctx context.Context, points []PricePoint) error

	// GetPriceAtOrBefore returns the latest stored price at or before at,
	// or errors.ErrNotFound.
	GetPriceAtOrBefore(ctx context.Context, at time.Time) (*PricePoint, error)
}

// PriceCache is an optional shared exact-instant price cache
type PriceCache interface {
	Get(ctx context.Context, at time.Time) (float64, bool, error)
	Set(ctx context.Context, at time.Time, price float64) error
}
