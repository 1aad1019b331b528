package bootstrap

import (
	"context"
	"time"

	chclient "mvrv/internal/adapters/clickhouse"
	"mvrv/internal/adapters/coingecko"
	"mvrv/internal/adapters/config"
	errnoop "mvrv/internal/adapters/errors/noop"
	"mvrv/internal/adapters/errors/sentry"
	"mvrv/internal/adapters/kafka"
	"mvrv/internal/adapters/mempool"
	pgclient "mvrv/internal/adapters/postgres"
	redisclient "mvrv/internal/adapters/redis"
	"mvrv/internal/api"
	"mvrv/internal/api/control"
	"mvrv/internal/api/health"
	"mvrv/internal/events"
	"mvrv/internal/metrics"
	chrepo "mvrv/internal/repository/clickhouse"
	memrepo "mvrv/internal/repository/memory"
	pgrepo "mvrv/internal/repository/postgres"
	redisrepo "mvrv/internal/repository/redis"
	"mvrv/internal/services/estimation"
	"mvrv/internal/services/pricing"
	"mvrv/internal/services/sampling"
	"mvrv/internal/services/valuation"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

const connectTimeout = 15 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env, cfg.App.Name); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the configured storage backend and optional Redis
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	var err error
	switch c.Config.Storage.Backend {
	case config.BackendPostgres:
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	case config.BackendClickHouse:
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	default:
		c.Log.Warn("Using in-memory storage, records are lost on restart")
	}

	if c.Config.Redis.Enabled() {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			// Redis only backs a cache tier and the cycle lock
			c.Log.Warnw("Redis unavailable, continuing without shared cache and cycle lock", "error", err)
			c.Redis = nil
		} else {
			c.Log.Info("✓ Redis connected")
		}
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories creates the MVRV repository for the configured backend
func (c *Container) MustInitRepositories() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	switch {
	case c.PG != nil:
		repo := pgrepo.NewMVRVRepository(c.PG.DB())
		if err := repo.Migrate(ctx); err != nil {
			c.Log.Fatalf("failed to migrate postgres schema: %v", err)
		}
		c.Repos.MVRV = repo
		c.Repos.Health = health.CheckerFunc(c.PG.Health)
	case c.CH != nil:
		repo := chrepo.NewMVRVRepository(c.CH.Conn())
		if err := repo.Migrate(ctx); err != nil {
			c.Log.Fatalf("failed to migrate clickhouse schema: %v", err)
		}
		c.Repos.MVRV = repo
		c.Repos.Health = repo
	default:
		repo := memrepo.NewMVRVRepository()
		c.Repos.MVRV = repo
		c.Repos.Health = repo
	}

	if c.Redis != nil {
		c.Repos.PriceCache = redisrepo.NewPriceCache(c.Redis.Client())
	}

	metrics.RegisterCollector(metrics.NewFreshnessCollector(c.Log, c.Repos.MVRV))
	c.Log.Infow("✓ Repositories initialized", "backend", c.Config.Storage.Backend, "shared_price_cache", c.Repos.PriceCache != nil)
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters creates upstream provider clients and the event publisher
func (c *Container) MustInitAdapters() {
	p := c.Config.Providers

	c.Adapters.Blockchain = mempool.NewClient(mempool.Config{
		MempoolURL: p.MempoolURL,
		EsploraURL: p.EsploraURL,
		Timeout:    p.RequestTimeout,
		MaxRetries: p.MaxRetries,
	})
	c.Adapters.Prices = coingecko.NewClient(coingecko.Config{
		BaseURL:           p.CoinGeckoURL,
		APIKey:            p.CoinGeckoKey,
		Timeout:           p.RequestTimeout,
		MaxRetries:        p.MaxRetries,
		RequestsPerMinute: p.CoinGeckoRPM,
	})

	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	if c.Adapters.KafkaProducer != nil {
		c.Adapters.Publisher = events.NewPublisher(c.Adapters.KafkaProducer, c.Config.Kafka.Topic)
	}

	c.Log.Info("✓ Adapters initialized")
}

// ========================================
// Phase 5: Services
// ========================================

// MustInitServices builds the estimation pipeline
func (c *Container) MustInitServices() {
	e := c.Config.Estimation

	c.Services.Resolver = pricing.NewResolver(
		pricing.ResolverConfig{
			ReferencePrice: e.ReferencePrice,
			CacheCapacity:  e.PriceCacheCapacity,
		},
		c.Repos.MVRV,
		c.Adapters.Prices,
		c.Repos.PriceCache,
		nil,
	)
	c.Services.Backfiller = pricing.NewBackfiller(
		pricing.BackfillConfig{Days: e.BackfillDays, BatchSize: e.BackfillBatch, FlushInterval: e.BackfillFlushInterval},
		c.Adapters.Prices,
		c.Repos.MVRV,
	)
	c.Services.Sampler = sampling.NewSampler(sampling.Config{
		BlockWindow:   e.BlockWindow,
		TxPerBlock:    e.TxPerBlock,
		DustThreshold: e.DustThreshold,
		RequestPause:  c.Config.Providers.RequestPause,
	}, c.Adapters.Blockchain)
	c.Services.Estimator = estimation.NewEstimator(provideEstimationConfig(e), c.Services.Resolver)
	c.Services.Computer = valuation.NewComputer(c.Repos.MVRV, c.Adapters.Publisher)
	c.Services.Pipeline = valuation.NewPipeline(valuation.PipelineDeps{
		Prices:    c.Adapters.Prices,
		Repo:      c.Repos.MVRV,
		Sampler:   c.Services.Sampler,
		Estimator: c.Services.Estimator,
		Computer:  c.Services.Computer,
		Backfill:  c.Services.Backfiller,
		Reference: c.Services.Resolver,
	}, e.SampleTarget)

	c.Log.Infow("✓ Services initialized",
		"sample_target", e.SampleTarget,
		"block_window", e.BlockWindow,
		"total_population", e.TotalPopulation,
	)
}

// ========================================
// Phase 7: Application
// ========================================

// MustInitApplication creates the HTTP server
func (c *Container) MustInitApplication() {
	checks := map[string]health.Checker{"storage": c.Repos.Health}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	c.Application.HealthHandler = health.New(c.Log, c.Config.App.Name, c.Config.App.Version, checks)

	controlHandler := control.New(
		c.Background.WorkerScheduler,
		c.Services.Computer,
		c.Repos.MVRV,
		c.Config.Estimation.InsightsWindow,
	)

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:        c.Config.HTTP.Port,
		ServiceName: c.Config.App.Name,
		Version:     c.Config.App.Version,
	}, c.Application.HealthHandler, controlHandler, c.Log)

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Name)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled() {
		log.Info("Kafka brokers not configured, record events disabled")
		return nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
	})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return producer
}

func provideEstimationConfig(e config.EstimationConfig) estimation.Config {
	return estimation.Config{
		TotalPopulation:            e.TotalPopulation,
		SmallSampleThreshold:       e.SmallSampleThreshold,
		SmallSampleAdjustment:      e.SmallSampleAdjustment,
		MediumSampleThreshold:      e.MediumSampleThreshold,
		MediumSampleAdjust:         e.MediumSampleAdjust,
		LargeSampleAdjustment:      e.LargeSampleAdjustment,
		MultiplierBase:             e.MultiplierBase,
		MultiplierSpan:             e.MultiplierSpan,
		ApplyConfidenceMultiplier:  e.ApplyConfidenceMultiplier,
		HeuristicConfidencePenalty: e.HeuristicConfidencePenalty,
	}
}
