package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"mvrv/internal/domain/mvrv"
	"mvrv/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Storage       StorageConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
	Providers     ProvidersConfig
	Estimation    EstimationConfig
	Scheduler     SchedulerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"mvrv"`
	Version  string `envconfig:"APP_VERSION" default:"1.0.0"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type HTTPConfig struct {
	Port int `envconfig:"HTTP_PORT" default:"8080"`
}

// Storage backends
const (
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
)

type StorageConfig struct {
	Backend string `envconfig:"STORAGE_BACKEND" default:"memory"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"mvrv"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"mvrv"`
}

// RedisConfig configures the shared price cache and the cycle lock.
// Redis is optional: leave REDIS_HOST empty to run without it.
type RedisConfig struct {
	Host     string        `envconfig:"REDIS_HOST"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL  time.Duration `envconfig:"REDIS_CYCLE_LOCK_TTL" default:"30m"`
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig configures record publishing. Empty broker list disables it.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_RECORDS_TOPIC" default:"mvrv.records"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// ProvidersConfig holds upstream API endpoints
type ProvidersConfig struct {
	MempoolURL     string        `envconfig:"MEMPOOL_API_URL" default:"https://mempool.space/api"`
	EsploraURL     string        `envconfig:"ESPLORA_API_URL" default:"https://blockstream.info/api"`
	CoinGeckoURL   string        `envconfig:"COINGECKO_API_URL" default:"https://api.coingecko.com/api/v3"`
	CoinGeckoKey   string        `envconfig:"COINGECKO_API_KEY"`
	CoinGeckoRPM   int           `envconfig:"COINGECKO_REQUESTS_PER_MINUTE" default:"25"`
	RequestTimeout time.Duration `envconfig:"PROVIDER_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"PROVIDER_MAX_RETRIES" default:"2"`
	// RequestPause is the cooperative delay between consecutive upstream calls
	RequestPause time.Duration `envconfig:"PROVIDER_REQUEST_PAUSE" default:"150ms"`
}

// EstimationConfig holds sampling and estimation tuning values
type EstimationConfig struct {
	SampleTarget    int   `envconfig:"ESTIMATION_SAMPLE_TARGET" default:"500"`
	BlockWindow     int   `envconfig:"ESTIMATION_BLOCK_WINDOW" default:"25"`
	TxPerBlock      int   `envconfig:"ESTIMATION_TX_PER_BLOCK" default:"12"`
	DustThreshold   int64 `envconfig:"ESTIMATION_DUST_THRESHOLD_SATS" default:"1000"`
	TotalPopulation int64 `envconfig:"ESTIMATION_TOTAL_UTXO_POPULATION" default:"87500000"`

	// Sample-size adjustment bands
	SmallSampleThreshold  int     `envconfig:"ESTIMATION_SMALL_SAMPLE_THRESHOLD" default:"1000"`
	SmallSampleAdjustment float64 `envconfig:"ESTIMATION_SMALL_SAMPLE_ADJUSTMENT" default:"0.8"`
	MediumSampleThreshold int     `envconfig:"ESTIMATION_MEDIUM_SAMPLE_THRESHOLD" default:"2000"`
	MediumSampleAdjust    float64 `envconfig:"ESTIMATION_MEDIUM_SAMPLE_ADJUSTMENT" default:"0.9"`
	LargeSampleAdjustment float64 `envconfig:"ESTIMATION_LARGE_SAMPLE_ADJUSTMENT" default:"1.0"`

	// Confidence multiplier = base + avg * span
	MultiplierBase            float64 `envconfig:"ESTIMATION_MULTIPLIER_BASE" default:"0.8"`
	MultiplierSpan            float64 `envconfig:"ESTIMATION_MULTIPLIER_SPAN" default:"0.4"`
	ApplyConfidenceMultiplier bool    `envconfig:"ESTIMATION_APPLY_CONFIDENCE_MULTIPLIER" default:"false"`

	ReferencePrice             float64 `envconfig:"ESTIMATION_REFERENCE_PRICE" default:"45000"`
	HeuristicConfidencePenalty float64 `envconfig:"ESTIMATION_HEURISTIC_CONFIDENCE_PENALTY" default:"0.7"`
	PriceCacheCapacity         uint64  `envconfig:"ESTIMATION_PRICE_CACHE_CAPACITY" default:"50000"`

	BackfillDays          int           `envconfig:"ESTIMATION_BACKFILL_DAYS" default:"30"`
	BackfillBatch         int           `envconfig:"ESTIMATION_BACKFILL_BATCH" default:"100"`
	BackfillFlushInterval time.Duration `envconfig:"ESTIMATION_BACKFILL_FLUSH_INTERVAL" default:"5s"`
	InsightsWindow        int           `envconfig:"ESTIMATION_INSIGHTS_WINDOW" default:"168"`
}

type SchedulerConfig struct {
	PollInterval   time.Duration `envconfig:"SCHEDULER_POLL_INTERVAL" default:"60s"`
	HourlyInterval time.Duration `envconfig:"SCHEDULER_HOURLY_INTERVAL" default:"1h"`
	DailyAt        string        `envconfig:"SCHEDULER_DAILY_AT" default:"00:30"`
	TimeZone       string        `envconfig:"SCHEDULER_TIMEZONE" default:"UTC"`
	StopTimeout    time.Duration `envconfig:"SCHEDULER_STOP_TIMEOUT" default:"5s"`
	DailyEnabled   bool          `envconfig:"SCHEDULER_DAILY_ENABLED" default:"true"`
}

// Location resolves the configured time zone
func (c SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "time zone %q", c.TimeZone)
	}
	return loc, nil
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects tuning values that would break estimation invariants
func (c *Config) Validate() error {
	var errs errors.MultiError

	switch c.Storage.Backend {
	case BackendMemory, BackendClickHouse, BackendPostgres:
	default:
		errs.Add(errors.NewValidationError("STORAGE_BACKEND", "unknown backend", c.Storage.Backend))
	}

	e := c.Estimation
	if e.SampleTarget <= 0 {
		errs.Add(errors.NewValidationError("ESTIMATION_SAMPLE_TARGET", "must be positive", e.SampleTarget))
	}
	if e.BlockWindow <= 0 || e.TxPerBlock <= 0 {
		errs.Add(errors.NewValidationError("ESTIMATION_BLOCK_WINDOW", "block window and tx per block must be positive", e.BlockWindow))
	}
	if e.DustThreshold < 0 {
		errs.Add(errors.NewValidationError("ESTIMATION_DUST_THRESHOLD_SATS", "must not be negative", e.DustThreshold))
	}
	if e.TotalPopulation <= 0 {
		errs.Add(errors.NewValidationError("ESTIMATION_TOTAL_UTXO_POPULATION", "must be positive", e.TotalPopulation))
	}
	if e.SmallSampleThreshold > e.MediumSampleThreshold {
		errs.Add(errors.NewValidationError("ESTIMATION_SMALL_SAMPLE_THRESHOLD", "must not exceed medium threshold", e.SmallSampleThreshold))
	}
	for name, v := range map[string]float64{
		"ESTIMATION_SMALL_SAMPLE_ADJUSTMENT":  e.SmallSampleAdjustment,
		"ESTIMATION_MEDIUM_SAMPLE_ADJUSTMENT": e.MediumSampleAdjust,
		"ESTIMATION_LARGE_SAMPLE_ADJUSTMENT":  e.LargeSampleAdjustment,
	} {
		if v <= 0 || v > 1 {
			errs.Add(errors.NewValidationError(name, "must be in (0, 1]", v))
		}
	}
	if e.MultiplierSpan < 0 {
		errs.Add(errors.NewValidationError("ESTIMATION_MULTIPLIER_SPAN", "must not be negative", e.MultiplierSpan))
	}
	// 0.8+0.4 is not exactly 1.2 in float64
	const multiplierTolerance = 1e-9
	if e.MultiplierBase < mvrv.MinConfidenceMultiplier-multiplierTolerance ||
		e.MultiplierBase+e.MultiplierSpan > mvrv.MaxConfidenceMultiplier+multiplierTolerance {
		errs.Add(errors.NewValidationError("ESTIMATION_MULTIPLIER_BASE",
			fmt.Sprintf("base and base+span must stay within [%.1f, %.1f]", mvrv.MinConfidenceMultiplier, mvrv.MaxConfidenceMultiplier),
			e.MultiplierBase))
	}
	if e.HeuristicConfidencePenalty < 0 || e.HeuristicConfidencePenalty > 1 {
		errs.Add(errors.NewValidationError("ESTIMATION_HEURISTIC_CONFIDENCE_PENALTY", "must be in [0, 1]", e.HeuristicConfidencePenalty))
	}
	if e.ReferencePrice <= 0 {
		errs.Add(errors.NewValidationError("ESTIMATION_REFERENCE_PRICE", "must be positive", e.ReferencePrice))
	}

	if c.Scheduler.PollInterval <= 0 || c.Scheduler.HourlyInterval <= 0 {
		errs.Add(errors.NewValidationError("SCHEDULER_POLL_INTERVAL", "intervals must be positive", c.Scheduler.PollInterval))
	}
	if _, err := c.Scheduler.Location(); err != nil {
		errs.Add(err)
	}

	return errs.ToError()
}
