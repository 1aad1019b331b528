package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvrv_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mvrv_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mvrv_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	SchedulerRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mvrv_scheduler_running",
			Help: "1 while the scheduler is running",
		},
	)

	// Provider metrics
	ProviderAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvrv_provider_api_calls_total",
			Help: "Total number of upstream provider API calls",
		},
		[]string{"provider", "endpoint", "status"}, // status: success|error
	)

	ProviderAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mvrv_provider_api_latency_seconds",
			Help:    "Upstream provider API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "endpoint"},
	)

	// Pipeline metrics
	PriceResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvrv_price_resolutions_total",
			Help: "Historical price resolutions by the tier that answered",
		},
		[]string{"source"}, // cache|store|provider|heuristic
	)

	SampleItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvrv_sample_items_total",
			Help: "Sampler per-item outcomes",
		},
		[]string{"kind", "outcome"}, // kind: block|tx|output, outcome: ok|skipped|failed
	)

	EstimateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mvrv_estimate",
			Help: "Latest realized-value estimation figures",
		},
		[]string{"field"}, // sample_size|scaling_factor|confidence_multiplier|average_confidence
	)

	RecordGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mvrv_record",
			Help: "Latest persisted record values per timeframe",
		},
		[]string{"timeframe", "field"}, // field: ratio|market_value|realized_value|confidence|degenerate
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvrv_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: memory|postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mvrv_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvrv_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			WorkerExecutions,
			WorkerDuration,
			WorkerLastRun,
			SchedulerRunning,
			ProviderAPICalls,
			ProviderAPILatency,
			PriceResolutions,
			SampleItems,
			EstimateGauge,
			RecordGauge,
			DBQueries,
			DBQueryDuration,
			KafkaMessages,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordSchedulerState records whether the scheduler loop is active
func RecordSchedulerState(running bool) {
	if running {
		SchedulerRunning.Set(1)
		return
	}
	SchedulerRunning.Set(0)
}

// RecordProviderCall records an upstream API call
func RecordProviderCall(provider, endpoint string, latency time.Duration, err error) {
	ProviderAPICalls.WithLabelValues(provider, endpoint, status(err)).Inc()
	ProviderAPILatency.WithLabelValues(provider, endpoint).Observe(latency.Seconds())
}

// RecordPriceResolution counts which tier resolved a price
func RecordPriceResolution(source string) {
	PriceResolutions.WithLabelValues(source).Inc()
}

// RecordSampleItem counts a sampler outcome
func RecordSampleItem(kind, outcome string) {
	SampleItems.WithLabelValues(kind, outcome).Inc()
}

// RecordEstimate publishes the latest estimation figures
func RecordEstimate(sampleSize int, scalingFactor, confidenceMultiplier, averageConfidence float64) {
	EstimateGauge.WithLabelValues("sample_size").Set(float64(sampleSize))
	EstimateGauge.WithLabelValues("scaling_factor").Set(scalingFactor)
	EstimateGauge.WithLabelValues("confidence_multiplier").Set(confidenceMultiplier)
	EstimateGauge.WithLabelValues("average_confidence").Set(averageConfidence)
}

// RecordRecord publishes the values of a persisted record
func RecordRecord(timeframe string, ratio, marketValue, realizedValue, confidence float64, degenerate bool) {
	RecordGauge.WithLabelValues(timeframe, "ratio").Set(ratio)
	RecordGauge.WithLabelValues(timeframe, "market_value").Set(marketValue)
	RecordGauge.WithLabelValues(timeframe, "realized_value").Set(realizedValue)
	RecordGauge.WithLabelValues(timeframe, "confidence").Set(confidence)

	d := 0.0
	if degenerate {
		d = 1
	}
	RecordGauge.WithLabelValues(timeframe, "degenerate").Set(d)
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced message
func RecordKafkaMessage(topic string, err error) {
	KafkaMessages.WithLabelValues(topic, status(err)).Inc()
}
