package cycles

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/services/valuation"
	"mvrv/internal/workers"
	"mvrv/pkg/errors"
)

type publishedCycle struct {
	worker   string
	cycleID  string
	err      error
	fallback bool
}

type capturePublisher struct {
	cycles []publishedCycle
}

func (c *capturePublisher) PublishCycle(ctx context.Context, worker string, _ time.Duration, cycleErr error, fallback bool) error {
	c.cycles = append(c.cycles, publishedCycle{worker: worker, cycleID: errors.CycleID(ctx), err: cycleErr, fallback: fallback})
	return nil
}

type hourlyRunnerFunc func(ctx context.Context) (*valuation.CycleResult, error)

func (f hourlyRunnerFunc) RunHourly(ctx context.Context) (*valuation.CycleResult, error) {
	return f(ctx)
}

type dailyRunnerFunc func(ctx context.Context) (*mvrv.Record, error)

func (f dailyRunnerFunc) RunDaily(ctx context.Context) (*mvrv.Record, error) {
	return f(ctx)
}

func TestHourlyEstimationWorker(t *testing.T) {
	pub := &capturePublisher{}
	var seenCycle string

	w := NewHourlyEstimationWorker(hourlyRunnerFunc(func(ctx context.Context) (*valuation.CycleResult, error) {
		seenCycle = errors.CycleID(ctx)
		return &valuation.CycleResult{
			CycleID:        seenCycle,
			Record:         &mvrv.Record{Ratio: 2, Signal: mvrv.SignalHold},
			MarketFallback: true,
		}, nil
	}), pub, time.Hour)

	require.NoError(t, w.Run(context.Background()))
	assert.NotEmpty(t, seenCycle)
	require.Len(t, pub.cycles, 1)
	assert.Equal(t, "hourly_estimation", pub.cycles[0].worker)
	assert.Equal(t, seenCycle, pub.cycles[0].cycleID)
	assert.True(t, pub.cycles[0].fallback)
	assert.Equal(t, "every 1h0m0s", w.Schedule().String())
	assert.True(t, w.Enabled())
	require.NotNil(t, w.LastResult())
	assert.Equal(t, seenCycle, w.LastResult().CycleID)
}

func TestHourlyEstimationWorker_Failure(t *testing.T) {
	pub := &capturePublisher{}
	w := NewHourlyEstimationWorker(hourlyRunnerFunc(func(ctx context.Context) (*valuation.CycleResult, error) {
		return &valuation.CycleResult{}, errors.ErrNoData
	}), pub, time.Hour)

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrNoData)
	require.Len(t, pub.cycles, 1)
	assert.ErrorIs(t, pub.cycles[0].err, errors.ErrNoData)
}

func TestDailyAggregationWorker(t *testing.T) {
	schedule, err := workers.DailyAt("00:30", time.UTC)
	require.NoError(t, err)

	t.Run("aggregates", func(t *testing.T) {
		pub := &capturePublisher{}
		w := NewDailyAggregationWorker(dailyRunnerFunc(func(ctx context.Context) (*mvrv.Record, error) {
			return &mvrv.Record{Timeframe: mvrv.TimeframeDaily, Ratio: 1.5, DataPoints: 24}, nil
		}), pub, schedule, true)

		require.NoError(t, w.Run(context.Background()))
		require.Len(t, pub.cycles, 1)
		assert.Equal(t, "daily_aggregation", pub.cycles[0].worker)
	})

	t.Run("no data is not a failure", func(t *testing.T) {
		w := NewDailyAggregationWorker(dailyRunnerFunc(func(ctx context.Context) (*mvrv.Record, error) {
			return nil, errors.Wrap(errors.ErrNoData, "no hourly records")
		}), nil, schedule, true)

		assert.NoError(t, w.Run(context.Background()))
	})

	t.Run("store failure", func(t *testing.T) {
		w := NewDailyAggregationWorker(dailyRunnerFunc(func(ctx context.Context) (*mvrv.Record, error) {
			return nil, errors.ErrUnavailable
		}), nil, schedule, true)

		assert.ErrorIs(t, w.Run(context.Background()), errors.ErrUnavailable)
	})
}
