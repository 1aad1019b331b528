package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/repository/memory"
	"mvrv/pkg/errors"
)

type capturePublisher struct {
	records []mvrv.Record
}

func (c *capturePublisher) PublishRecord(_ context.Context, record *mvrv.Record) error {
	c.records = append(c.records, *record)
	return nil
}

var hour = time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)

func TestCompute_Ratio(t *testing.T) {
	repo := memory.NewMVRVRepository()
	pub := &capturePublisher{}
	c := NewComputer(repo, pub)

	rec, err := c.Compute(context.Background(), ComputeInput{
		Timestamp:     hour,
		Timeframe:     mvrv.TimeframeHourly,
		MarketValue:   800e9,
		RealizedValue: 400e9,
		Confidence:    0.8,
		DataPoints:    500,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Ratio)
	assert.Equal(t, mvrv.SignalHold, rec.Signal)
	assert.False(t, rec.Degenerate)

	stored, err := repo.GetLatest(context.Background(), mvrv.TimeframeHourly)
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.Ratio)
	require.Len(t, pub.records, 1)
}

func TestCompute_Degenerate(t *testing.T) {
	for _, rv := range []float64{0, -1, -4e11} {
		repo := memory.NewMVRVRepository()
		rec, err := NewComputer(repo, nil).Compute(context.Background(), ComputeInput{
			Timestamp:     hour,
			Timeframe:     mvrv.TimeframeHourly,
			MarketValue:   800e9,
			RealizedValue: rv,
		})
		require.NoError(t, err, "realized=%v", rv)
		assert.Equal(t, 0.0, rec.Ratio)
		assert.True(t, rec.Degenerate)
		assert.Equal(t, mvrv.SignalDegenerate, rec.Signal)

		records, _ := repo.Counts()
		assert.Equal(t, 1, records)
	}
}

func TestCompute_IdempotentUpsert(t *testing.T) {
	repo := memory.NewMVRVRepository()
	c := NewComputer(repo, nil)
	ctx := context.Background()

	for _, mv := range []float64{800e9, 1000e9} {
		_, err := c.Compute(ctx, ComputeInput{Timestamp: hour, Timeframe: mvrv.TimeframeHourly, MarketValue: mv, RealizedValue: 400e9})
		require.NoError(t, err)
	}

	history, err := repo.QueryHistory(ctx, mvrv.TimeframeHourly, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2.5, history[0].Ratio)
	assert.Equal(t, mvrv.SignalCaution, history[0].Signal)
}

func TestCompute_RejectsUnknownTimeframe(t *testing.T) {
	_, err := NewComputer(memory.NewMVRVRepository(), nil).Compute(context.Background(), ComputeInput{Timeframe: "weekly"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func seedHourly(t *testing.T, repo *memory.MVRVRepository, records ...mvrv.Record) {
	t.Helper()
	for i := range records {
		records[i].Timeframe = mvrv.TimeframeHourly
		require.NoError(t, repo.UpsertRecord(context.Background(), &records[i]))
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	repo := memory.NewMVRVRepository()

	seedHourly(t, repo,
		mvrv.Record{Timestamp: day, MarketValue: 900, RealizedValue: 400, Ratio: 2.25, Confidence: 0.8},
		mvrv.Record{Timestamp: day.Add(5 * time.Hour), MarketValue: 1000, RealizedValue: 500, Ratio: 2.0, Confidence: 0.7},
		mvrv.Record{Timestamp: day.Add(23 * time.Hour), MarketValue: 1100, RealizedValue: 600, Ratio: 1.75, Confidence: 0.9},
		mvrv.Record{Timestamp: day.Add(6 * time.Hour), MarketValue: 1000, Degenerate: true, Signal: mvrv.SignalDegenerate},
		// outside the day
		mvrv.Record{Timestamp: day.Add(24 * time.Hour), MarketValue: 5000, RealizedValue: 1000, Ratio: 5, Confidence: 0.1},
		mvrv.Record{Timestamp: day.Add(-time.Hour), MarketValue: 5000, RealizedValue: 1000, Ratio: 5, Confidence: 0.1},
	)

	rec, err := NewComputer(repo, nil).Aggregate(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, day.Add(12*time.Hour), rec.Timestamp)
	assert.Equal(t, mvrv.TimeframeDaily, rec.Timeframe)
	assert.InDelta(t, 1000, rec.MarketValue, 1e-9)
	assert.InDelta(t, 500, rec.RealizedValue, 1e-9)
	assert.InDelta(t, 2.0, rec.Ratio, 1e-9)
	assert.InDelta(t, 0.8, rec.Confidence, 1e-9)
	assert.Equal(t, mvrv.SignalHold, rec.Signal)
	assert.Equal(t, 3, rec.DataPoints)

	daily, err := repo.GetLatest(ctx, mvrv.TimeframeDaily)
	require.NoError(t, err)
	assert.Equal(t, rec.Timestamp, daily.Timestamp)
}

func TestAggregate_NoData(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMVRVRepository()
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	seedHourly(t, repo, mvrv.Record{Timestamp: day.Add(time.Hour), Degenerate: true, Signal: mvrv.SignalDegenerate})

	_, err := NewComputer(repo, nil).Aggregate(ctx, day)
	assert.ErrorIs(t, err, errors.ErrNoData)

	_, err = repo.GetLatest(ctx, mvrv.TimeframeDaily)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestInsights(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMVRVRepository()
	start := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	seedHourly(t, repo,
		mvrv.Record{Timestamp: start, Ratio: 1.0, Confidence: 0.9, Signal: mvrv.SignalHold},
		mvrv.Record{Timestamp: start.Add(time.Hour), Ratio: 3.0, Confidence: 0.9, Signal: mvrv.SignalCaution},
		mvrv.Record{Timestamp: start.Add(2 * time.Hour), Degenerate: true, Signal: mvrv.SignalDegenerate},
		mvrv.Record{Timestamp: start.Add(3 * time.Hour), Ratio: 2.0, Confidence: 0.9, Signal: mvrv.SignalHold},
	)

	in, err := NewComputer(repo, nil).Insights(ctx, 168)
	require.NoError(t, err)

	assert.Equal(t, 3, in.WindowSize)
	assert.Equal(t, start, in.From)
	assert.Equal(t, start.Add(3*time.Hour), in.To)
	assert.Equal(t, 2.0, in.CurrentRatio)
	assert.Equal(t, mvrv.SignalHold, in.CurrentSignal)
	assert.InDelta(t, 2.0, in.MeanRatio, 1e-9)
	assert.Equal(t, 1.0, in.MinRatio)
	assert.Equal(t, 3.0, in.MaxRatio)
	assert.InDelta(t, 0.816496580927726, in.StdDevRatio, 1e-9)
	assert.Equal(t, TrendFalling, in.Trend)
	assert.Equal(t, QualityHigh, in.DataQuality)

	_, err = NewComputer(memory.NewMVRVRepository(), nil).Insights(ctx, 168)
	assert.ErrorIs(t, err, errors.ErrNoData)
}

func TestQualityBucket(t *testing.T) {
	assert.Equal(t, QualityHigh, QualityBucket(0.86))
	assert.Equal(t, QualityMedium, QualityBucket(0.85))
	assert.Equal(t, QualityMedium, QualityBucket(0.71))
	assert.Equal(t, QualityLow, QualityBucket(0.70))
}
