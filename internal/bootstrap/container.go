package bootstrap

import (
	"context"
	"sync"

	chclient "mvrv/internal/adapters/clickhouse"
	"mvrv/internal/adapters/coingecko"
	"mvrv/internal/adapters/config"
	"mvrv/internal/adapters/kafka"
	"mvrv/internal/adapters/mempool"
	pgclient "mvrv/internal/adapters/postgres"
	redisclient "mvrv/internal/adapters/redis"
	"mvrv/internal/api"
	"mvrv/internal/api/health"
	"mvrv/internal/domain/mvrv"
	"mvrv/internal/events"
	"mvrv/internal/services/estimation"
	"mvrv/internal/services/pricing"
	"mvrv/internal/services/sampling"
	"mvrv/internal/services/valuation"
	"mvrv/internal/workers"
	"mvrv/internal/workers/cycles"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores). Only the configured backend is connected.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups storage
type Repositories struct {
	MVRV       mvrv.Repository
	PriceCache mvrv.PriceCache // nil without Redis
	Health     health.Checker
}

// Adapters groups upstream providers and messaging
type Adapters struct {
	Blockchain    *mempool.Client
	Prices        *coingecko.Client
	KafkaProducer *kafka.Producer // nil without brokers
	Publisher     *events.Publisher
}

// Services groups the estimation pipeline
type Services struct {
	Resolver   *pricing.Resolver
	Backfiller *pricing.Backfiller
	Sampler    *sampling.Sampler
	Estimator  *estimation.Estimator
	Computer   *valuation.Computer
	Pipeline   *valuation.Pipeline
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// Background groups the scheduler and its workers
type Background struct {
	WorkerScheduler *workers.Scheduler
	Hourly          *cycles.HourlyEstimationWorker
	Daily           *cycles.DailyAggregationWorker
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitBackground()
	c.MustInitApplication()
}

// Start starts the HTTP server and the scheduler. The scheduler runs one
// estimation cycle synchronously before Start returns.
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorw("HTTP server failed", "error", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Application.HTTPServer,
		c.Background.WorkerScheduler,
		c.Adapters.KafkaProducer,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}

// Close releases connections without the server/scheduler steps (one-shot CLI commands)
func (c *Container) Close() {
	c.Cancel()
	c.Lifecycle.Shutdown(c.WG, nil, nil, c.Adapters.KafkaProducer, c.PG, c.CH, c.Redis, c.ErrorTracker, c.Log)
}
