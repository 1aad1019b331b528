package cycles

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mvrv/internal/services/valuation"
	"mvrv/internal/workers"
	"mvrv/pkg/errors"
)

// HourlyRunner runs one hourly estimation cycle
type HourlyRunner interface {
	RunHourly(ctx context.Context) (*valuation.CycleResult, error)
}

// CyclePublisher announces finished cycles
type CyclePublisher interface {
	PublishCycle(ctx context.Context, worker string, duration time.Duration, cycleErr error, fallback bool) error
}

// HourlyEstimationWorker samples UTXOs, estimates realized value and stores the hourly MVRV record
type HourlyEstimationWorker struct {
	*workers.BaseWorker
	runner    HourlyRunner
	publisher CyclePublisher

	mu         sync.RWMutex
	lastResult *valuation.CycleResult
}

// NewHourlyEstimationWorker creates the hourly worker. publisher may be nil.
func NewHourlyEstimationWorker(runner HourlyRunner, publisher CyclePublisher, interval time.Duration) *HourlyEstimationWorker {
	return &HourlyEstimationWorker{
		BaseWorker: workers.NewBaseWorker("hourly_estimation", workers.Every(interval), true),
		runner:     runner,
		publisher:  publisher,
	}
}

// Run executes one estimation cycle
func (w *HourlyEstimationWorker) Run(ctx context.Context) error {
	if errors.CycleID(ctx) == "" {
		ctx = errors.WithCycleID(ctx, uuid.NewString())
	}
	start := time.Now()

	result, err := w.runner.RunHourly(ctx)
	fallback := result != nil && result.Fallback()

	if w.publisher != nil {
		if pubErr := w.publisher.PublishCycle(ctx, w.Name(), time.Since(start), err, fallback); pubErr != nil {
			w.Log().Warnw("Failed to publish cycle summary", "error", pubErr)
		}
	}

	if err != nil {
		return errors.Wrap(err, "hourly estimation")
	}

	w.mu.Lock()
	w.lastResult = result
	w.mu.Unlock()

	w.Log().Infow("Hourly estimation completed",
		"cycle_id", result.CycleID,
		"ratio", result.Record.Ratio,
		"signal", result.Record.Signal,
		"fallback", fallback,
		"duration", time.Since(start),
	)
	return nil
}

// LastResult returns the most recent successful cycle, or nil
func (w *HourlyEstimationWorker) LastResult() *valuation.CycleResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastResult
}
