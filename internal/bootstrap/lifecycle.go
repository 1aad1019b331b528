package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "mvrv/internal/adapters/clickhouse"
	"mvrv/internal/adapters/kafka"
	pgclient "mvrv/internal/adapters/postgres"
	redisclient "mvrv/internal/adapters/redis"
	"mvrv/internal/api"
	"mvrv/internal/workers"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 30 * time.Second,
	}
}

// Shutdown performs coordinated cleanup in order:
// 1. No new requests accepted
// 2. Scheduler stops arming triggers (an in-flight cycle is not cancelled)
// 3. Background goroutines drain
// 4. Producer closes
// 5. Errors and logs flushed
// 6. Database connections last (an in-flight cycle may still need them)
// httpServer and workerScheduler may be nil.
func (l *Lifecycle) Shutdown(
	wg *sync.WaitGroup,
	httpServer *api.Server,
	workerScheduler *workers.Scheduler,
	kafkaProducer *kafka.Producer,
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	if httpServer != nil {
		log.Info("[1/6] Stopping HTTP server...")
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := httpServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	// ========================================
	// Step 2: Stop Scheduler
	// ========================================
	if workerScheduler != nil {
		log.Info("[2/6] Stopping scheduler...")
		if err := workerScheduler.Stop(); err != nil {
			log.Warnw("Scheduler stop incomplete", "error", err)
		} else {
			log.Info("✓ Scheduler stopped")
		}
	}

	// ========================================
	// Step 3: Wait for goroutines
	// ========================================
	log.Info("[3/6] Waiting for background goroutines...")
	l.waitForGoroutines(wg, 5*time.Second, log)

	// ========================================
	// Step 4: Close Kafka Producer
	// ========================================
	if kafkaProducer != nil {
		log.Info("[4/6] Closing Kafka producer...")
		if err := kafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 5: Flush Error Tracker and logs
	// ========================================
	log.Info("[5/6] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, errorTracker, log)
	_ = logger.Sync()

	// ========================================
	// Step 6: Close Database Connections
	// ========================================
	log.Info("[6/6] Closing database connections...")
	l.closeDatabases(pgClient, chClient, redisClient, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

// closeDatabases closes whichever connections were opened
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors errors.MultiError

	if pgClient != nil {
		dbErrors.Add(errors.Wrap(pgClient.Close(), "postgres"))
	}
	if chClient != nil {
		dbErrors.Add(errors.Wrap(chClient.Close(), "clickhouse"))
	}
	if redisClient != nil {
		dbErrors.Add(errors.Wrap(redisClient.Close(), "redis"))
	}

	if dbErrors.HasErrors() {
		log.Errorw("Database close errors", "error", dbErrors.ToError())
	} else {
		log.Info("✓ Database connections closed")
	}
}
