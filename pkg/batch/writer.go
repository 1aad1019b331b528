package batch

import (
	"context"
	"sync"
	"time"

	"mvrv/pkg/logger"
)

// FlushFunc persists one batch of items
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Writer accumulates items in memory and flushes them in batches,
// either when the buffer is full or, once started, on a timer.
type Writer[T any] struct {
	flushFunc FlushFunc[T]
	buffer    []T
	mu        sync.Mutex
	log       *logger.Logger

	maxBatchSize int
	maxAge       time.Duration
	name         string

	lastFlush time.Time
	flushed   int
	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	// finalErr is the result of the loop's last flush, read by Stop after wg.Wait
	finalErr error
}

// Config contains configuration for Writer
type Config[T any] struct {
	FlushFunc    FlushFunc[T]
	Name         string        // used in logs
	MaxBatchSize int           // Default: 500
	MaxAge       time.Duration // Default: 5s
}

// NewWriter creates a new batch writer
func NewWriter[T any](cfg Config[T]) *Writer[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}

	return &Writer[T]{
		flushFunc:    cfg.FlushFunc,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		maxBatchSize: cfg.MaxBatchSize,
		maxAge:       cfg.MaxAge,
		name:         cfg.Name,
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		log:          logger.Get().With("component", "batch_writer", "batch", cfg.Name),
	}
}

// Start begins the background flush ticker
func (w *Writer[T]) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ticker = time.NewTicker(w.maxAge)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.flushLoop(ctx)
}

// Add buffers an item, flushing synchronously when the buffer is full
func (w *Writer[T]) Add(ctx context.Context, items ...T) error {
	w.mu.Lock()
	w.buffer = append(w.buffer, items...)
	shouldFlush := len(w.buffer) >= w.maxBatchSize
	w.mu.Unlock()

	if shouldFlush {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered items
func (w *Writer[T]) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}

	batch := w.buffer
	w.buffer = make([]T, 0, w.maxBatchSize)
	w.lastFlush = time.Now()
	w.mu.Unlock()

	// Flush outside of lock to avoid blocking Add() calls
	start := time.Now()
	if err := w.flushFunc(ctx, batch); err != nil {
		w.log.Errorw("Batch flush failed", "items", len(batch), "error", err, "duration", time.Since(start))
		return err
	}

	w.mu.Lock()
	w.flushed += len(batch)
	w.mu.Unlock()

	w.log.Debugw("Batch flushed", "items", len(batch), "duration", time.Since(start))
	return nil
}

func (w *Writer[T]) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return

		case <-w.stopCh:
			w.finalFlush()
			return

		case <-w.ticker.C:
			if w.BufferSize() > 0 {
				if err := w.Flush(ctx); err != nil {
					w.log.Errorw("Periodic flush failed", "error", err)
				}
			}
		}
	}
}

func (w *Writer[T]) finalFlush() {
	if err := w.Flush(context.Background()); err != nil {
		w.log.Errorw("Final flush failed", "error", err)
		w.finalErr = err
	}
}

// Stop flushes remaining items and waits for the background loop, bounded by ctx.
// It returns the error of the final flush.
func (w *Writer[T]) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.Flush(ctx)
	}
	w.running = false
	w.mu.Unlock()

	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return w.finalErr
	case <-ctx.Done():
		w.log.Warnw("Batch writer stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the current buffer size
func (w *Writer[T]) BufferSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Flushed returns how many items have been written successfully
func (w *Writer[T]) Flushed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed
}
