package cycles

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/workers"
	"mvrv/pkg/errors"
)

// DailyRunner aggregates the previous day
type DailyRunner interface {
	RunDaily(ctx context.Context) (*mvrv.Record, error)
}

// DailyAggregationWorker averages yesterday's hourly records into a daily record
type DailyAggregationWorker struct {
	*workers.BaseWorker
	runner    DailyRunner
	publisher CyclePublisher
}

// NewDailyAggregationWorker creates the daily worker. publisher may be nil.
func NewDailyAggregationWorker(runner DailyRunner, publisher CyclePublisher, schedule workers.Schedule, enabled bool) *DailyAggregationWorker {
	return &DailyAggregationWorker{
		BaseWorker: workers.NewBaseWorker("daily_aggregation", schedule, enabled),
		runner:     runner,
		publisher:  publisher,
	}
}

// Run aggregates yesterday. A day without hourly records is logged, not failed.
func (w *DailyAggregationWorker) Run(ctx context.Context) error {
	ctx = errors.WithCycleID(ctx, uuid.NewString())
	start := time.Now()

	record, err := w.runner.RunDaily(ctx)

	if w.publisher != nil {
		if pubErr := w.publisher.PublishCycle(ctx, w.Name(), time.Since(start), err, false); pubErr != nil {
			w.Log().Warnw("Failed to publish cycle summary", "error", pubErr)
		}
	}

	if errors.Is(err, errors.ErrNoData) {
		w.Log().Warnw("No hourly records to aggregate", "error", err)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "daily aggregation")
	}

	w.Log().Infow("Daily aggregation completed",
		"timestamp", record.Timestamp,
		"ratio", record.Ratio,
		"signal", record.Signal,
		"hourly_records", record.DataPoints,
	)
	return nil
}
