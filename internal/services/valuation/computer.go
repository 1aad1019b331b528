package valuation

import (
	"context"
	"math"
	"time"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// RecordPublisher is notified of every persisted record
type RecordPublisher interface {
	PublishRecord(ctx context.Context, record *mvrv.Record) error
}

// ComputeInput is what one MVRV observation is computed from
type ComputeInput struct {
	Timestamp     time.Time
	Timeframe     mvrv.Timeframe
	MarketValue   float64
	RealizedValue float64
	Confidence    float64
	DataPoints    int
}

// Data quality buckets
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// Trends
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
)

// Computer turns market and realized values into persisted MVRV records
type Computer struct {
	repo      mvrv.Repository
	publisher RecordPublisher // optional
	log       *logger.Logger
	now       func() time.Time
}

// NewComputer creates a computer. publisher may be nil.
func NewComputer(repo mvrv.Repository, publisher RecordPublisher) *Computer {
	return &Computer{
		repo:      repo,
		publisher: publisher,
		log:       logger.Get().With("component", "mvrv_computer"),
		now:       time.Now,
	}
}

// Compute derives the ratio and signal and upserts the record.
// A non-positive realized value yields ratio 0 with the degenerate flag; it is not an error.
func (c *Computer) Compute(ctx context.Context, in ComputeInput) (*mvrv.Record, error) {
	if !in.Timeframe.Valid() {
		return nil, errors.NewValidationError("timeframe", "unknown timeframe", in.Timeframe)
	}

	record := &mvrv.Record{
		Timestamp:     in.Timestamp.UTC(),
		Timeframe:     in.Timeframe,
		MarketValue:   in.MarketValue,
		RealizedValue: in.RealizedValue,
		Confidence:    clamp01(in.Confidence),
		DataPoints:    in.DataPoints,
		UpdatedAt:     c.now().UTC(),
	}

	if in.RealizedValue > 0 {
		record.Ratio = in.MarketValue / in.RealizedValue
		record.Signal = mvrv.Classify(record.Ratio)
	} else {
		record.Ratio = 0
		record.Degenerate = true
		record.Signal = mvrv.SignalDegenerate
		c.log.Warnw("Realized value not positive, record marked degenerate",
			"timestamp", record.Timestamp,
			"timeframe", record.Timeframe,
			"realized_value", in.RealizedValue,
			"error", errors.ErrDegenerateComputation,
		)
	}

	if err := c.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Aggregate averages the non-degenerate hourly records of day's UTC calendar date
// into a daily record stamped at noon. Returns ErrNoData when there is nothing to average.
func (c *Computer) Aggregate(ctx context.Context, day time.Time) (*mvrv.Record, error) {
	from := mvrv.DayStart(day)
	to := from.Add(24 * time.Hour)

	hourly, err := c.repo.QueryRange(ctx, mvrv.TimeframeHourly, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "query hourly records")
	}

	var sumMV, sumRV, sumRatio, sumConf float64
	n := 0
	for _, r := range hourly {
		if r.Degenerate {
			continue
		}
		sumMV += r.MarketValue
		sumRV += r.RealizedValue
		sumRatio += r.Ratio
		sumConf += r.Confidence
		n++
	}

	if n == 0 {
		return nil, errors.Wrapf(errors.ErrNoData, "no hourly records for %s", from.Format(time.DateOnly))
	}

	count := float64(n)
	ratio := sumRatio / count
	record := &mvrv.Record{
		Timestamp:     mvrv.DayNoon(from),
		Timeframe:     mvrv.TimeframeDaily,
		MarketValue:   sumMV / count,
		RealizedValue: sumRV / count,
		Ratio:         ratio,
		Signal:        mvrv.Classify(ratio),
		Confidence:    sumConf / count,
		DataPoints:    n,
		UpdatedAt:     c.now().UTC(),
	}

	if err := c.save(ctx, record); err != nil {
		return nil, err
	}

	c.log.Infow("Daily aggregate stored",
		"date", from.Format(time.DateOnly),
		"hourly_records", n,
		"skipped_degenerate", len(hourly)-n,
		"ratio", ratio,
		"signal", record.Signal,
	)
	return record, nil
}

func (c *Computer) save(ctx context.Context, record *mvrv.Record) error {
	if err := c.repo.UpsertRecord(ctx, record); err != nil {
		return errors.Wrapf(err, "upsert %s record", record.Timeframe)
	}

	metrics.RecordRecord(string(record.Timeframe), record.Ratio, record.MarketValue, record.RealizedValue, record.Confidence, record.Degenerate)

	if c.publisher != nil {
		if err := c.publisher.PublishRecord(ctx, record); err != nil {
			c.log.Warnw("Record stored but not published", "timeframe", record.Timeframe, "error", err)
		}
	}
	return nil
}

// Insights summarizes the most recent window hourly records
func (c *Computer) Insights(ctx context.Context, window int) (*mvrv.Insights, error) {
	history, err := c.repo.QueryHistory(ctx, mvrv.TimeframeHourly, window)
	if err != nil {
		return nil, errors.Wrap(err, "query hourly history")
	}

	records := make([]mvrv.Record, 0, len(history))
	for _, r := range history {
		if !r.Degenerate {
			records = append(records, r)
		}
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrNoData, "no hourly records")
	}

	current := records[len(records)-1]
	in := &mvrv.Insights{
		WindowSize:    len(records),
		From:          records[0].Timestamp,
		To:            current.Timestamp,
		CurrentRatio:  current.Ratio,
		CurrentSignal: current.Signal,
		MinRatio:      math.Inf(1),
		MaxRatio:      math.Inf(-1),
		Trend:         TrendFalling,
	}

	var sumRatio, sumConf float64
	for _, r := range records {
		sumRatio += r.Ratio
		sumConf += r.Confidence
		in.MinRatio = math.Min(in.MinRatio, r.Ratio)
		in.MaxRatio = math.Max(in.MaxRatio, r.Ratio)
	}
	count := float64(len(records))
	in.MeanRatio = sumRatio / count
	in.MeanConfidence = sumConf / count

	var variance float64
	for _, r := range records {
		d := r.Ratio - in.MeanRatio
		variance += d * d
	}
	in.StdDevRatio = math.Sqrt(variance / count)

	if len(records) > 1 && current.Ratio > records[len(records)-2].Ratio {
		in.Trend = TrendRising
	}
	in.DataQuality = QualityBucket(in.MeanConfidence)

	return in, nil
}

// QualityBucket classifies a mean confidence
func QualityBucket(confidence float64) string {
	switch {
	case confidence > 0.85:
		return QualityHigh
	case confidence > 0.70:
		return QualityMedium
	default:
		return QualityLow
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
