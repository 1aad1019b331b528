package bootstrap

import (
	redisclient "mvrv/internal/adapters/redis"
	"mvrv/internal/workers"
	"mvrv/internal/workers/cycles"
)

// ========================================
// Phase 6: Background Processing
// ========================================

// MustInitBackground creates the scheduler with the hourly estimation worker as its
// primary and the daily aggregation worker on a wall-clock schedule
func (c *Container) MustInitBackground() {
	sc := c.Config.Scheduler

	loc, err := sc.Location()
	if err != nil {
		c.Log.Fatalf("invalid scheduler time zone: %v", err)
	}
	daily, err := workers.DailyAt(sc.DailyAt, loc)
	if err != nil {
		c.Log.Fatalf("invalid daily schedule: %v", err)
	}

	scheduler := workers.NewScheduler(workers.Config{
		PollInterval: sc.PollInterval,
		StopTimeout:  sc.StopTimeout,
	})
	if c.Redis != nil {
		scheduler.SetLocker(redisclient.NewCycleLocker(c.Redis, c.Config.Redis.LockTTL))
	}

	c.Background.Hourly = cycles.NewHourlyEstimationWorker(c.Services.Pipeline, c.Adapters.Publisher, sc.HourlyInterval)
	c.Background.Daily = cycles.NewDailyAggregationWorker(c.Services.Pipeline, c.Adapters.Publisher, daily, sc.DailyEnabled)

	scheduler.RegisterPrimary(c.Background.Hourly)
	scheduler.RegisterWorker(c.Background.Daily)
	c.Background.WorkerScheduler = scheduler

	c.Log.Infow("✓ Scheduler initialized",
		"hourly", c.Background.Hourly.Schedule().String(),
		"daily", daily.String(),
		"daily_enabled", sc.DailyEnabled,
		"cycle_lock", c.Redis != nil,
	)
}
