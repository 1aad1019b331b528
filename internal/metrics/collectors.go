package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mvrv/internal/domain/mvrv"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// FreshnessCollector reports how old the latest persisted record of each timeframe is.
// It reads the repository at scrape time so the gauge survives process restarts.
type FreshnessCollector struct {
	log  *logger.Logger
	repo mvrv.Repository
	now  func() time.Time

	recordAge *prometheus.Desc
}

// NewFreshnessCollector creates a new freshness collector
func NewFreshnessCollector(log *logger.Logger, repo mvrv.Repository) *FreshnessCollector {
	return &FreshnessCollector{
		log:  log,
		repo: repo,
		now:  time.Now,
		recordAge: prometheus.NewDesc(
			"mvrv_latest_record_age_seconds",
			"Seconds since the latest persisted record timestamp",
			[]string{"timeframe"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *FreshnessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.recordAge
}

// Collect implements prometheus.Collector
func (c *FreshnessCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, tf := range []mvrv.Timeframe{mvrv.TimeframeHourly, mvrv.TimeframeDaily} {
		rec, err := c.repo.GetLatest(ctx, tf)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			c.log.Warnw("Failed to collect record freshness", "timeframe", tf, "error", err)
			continue
		}

		ch <- prometheus.MustNewConstMetric(
			c.recordAge,
			prometheus.GaugeValue,
			c.now().Sub(rec.Timestamp).Seconds(),
			string(tf),
		)
	}
}

// RegisterCollector registers a custom collector, ignoring duplicate registration
func RegisterCollector(collector prometheus.Collector) {
	if err := prometheus.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			logger.Get().Warnw("Failed to register collector", "error", err)
		}
	}
}
