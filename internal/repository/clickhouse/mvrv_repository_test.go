package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/testsupport"
	"mvrv/pkg/errors"
)

func TestMVRVRepository_Integration(t *testing.T) {
	helper := testsupport.NewClickHouseTestHelper(t)
	repo := NewMVRVRepository(helper.Client().Conn())
	ctx := context.Background()

	require.NoError(t, repo.Migrate(ctx))

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("UpsertOverwrites", func(t *testing.T) {
		rec := &mvrv.Record{
			Timestamp: base, Timeframe: mvrv.TimeframeHourly,
			MarketValue: 800e9, RealizedValue: 400e9, Ratio: 2, Signal: mvrv.SignalHold, Confidence: 0.8,
			UpdatedAt: time.Now().Add(-time.Minute),
		}
		require.NoError(t, repo.UpsertRecord(ctx, rec))

		rec.Ratio = 2.5
		rec.Signal = mvrv.SignalCaution
		rec.UpdatedAt = time.Now()
		require.NoError(t, repo.UpsertRecord(ctx, rec))

		history, err := repo.QueryHistory(ctx, mvrv.TimeframeHourly, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, 2.5, history[0].Ratio)
		assert.Equal(t, mvrv.SignalCaution, history[0].Signal)
	})

	t.Run("RangeAndLatest", func(t *testing.T) {
		for h := 1; h <= 3; h++ {
			require.NoError(t, repo.UpsertRecord(ctx, &mvrv.Record{
				Timestamp: base.Add(time.Duration(h) * time.Hour), Timeframe: mvrv.TimeframeHourly, Ratio: float64(h),
			}))
		}

		got, err := repo.QueryRange(ctx, mvrv.TimeframeHourly, base.Add(time.Hour), base.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Len(t, got, 2)

		latest, err := repo.GetLatest(ctx, mvrv.TimeframeHourly)
		require.NoError(t, err)
		assert.Equal(t, 3.0, latest.Ratio)

		_, err = repo.GetLatest(ctx, mvrv.TimeframeDaily)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("PriceAtOrBefore", func(t *testing.T) {
		require.NoError(t, repo.UpsertHistoricalPrices(ctx, []mvrv.PricePoint{
			{At: base, Price: 67000},
			{At: base.AddDate(0, 0, 1), Price: 68000},
		}))

		p, err := repo.GetPriceAtOrBefore(ctx, base.Add(20*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 67000.0, p.Price)

		_, err = repo.GetPriceAtOrBefore(ctx, base.Add(-time.Hour))
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}
