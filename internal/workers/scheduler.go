package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// Lifecycle states and events
const (
	StateStopped = "stopped"
	StateRunning = "running"

	eventStart = "start"
	eventStop  = "stop"
)

// CycleLocker guards cycles across processes. ok is false when another holder has the lock.
type CycleLocker interface {
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// Config configures the scheduler loop
type Config struct {
	PollInterval time.Duration // how often pending triggers are checked
	StopTimeout  time.Duration // how long Stop waits for the loop to exit
}

// TriggerStatus describes one pending trigger
type TriggerStatus struct {
	Worker    string    `json:"worker"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Status is a snapshot of the scheduler
type Status struct {
	Running         bool            `json:"running"`
	State           string          `json:"state"`
	PendingTriggers int             `json:"pending_triggers"`
	Triggers        []TriggerStatus `json:"triggers,omitempty"`
}

type trigger struct {
	worker  Worker
	next    time.Time
	lastRun time.Time
	lastErr error
}

// Scheduler runs one primary worker immediately on start and on its schedule,
// plus any secondary workers on theirs. A single background loop polls due
// triggers; at most one cycle runs at a time, including manual updates.
type Scheduler struct {
	cfg    Config
	locker CycleLocker // optional
	log    *logger.Logger
	now    func() time.Time

	// lifecycleMu serializes Start and Stop
	lifecycleMu sync.Mutex
	// cycleMu is held for the whole duration of a cycle
	cycleMu sync.Mutex

	mu       sync.RWMutex
	machine  *fsm.FSM
	primary  Worker
	workers  []Worker
	triggers []*trigger
	stopCh   chan struct{}
	done     chan struct{}
}

// NewScheduler creates a stopped scheduler
func NewScheduler(cfg Config) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	s := &Scheduler{
		cfg: cfg,
		log: logger.Get().With("component", "scheduler"),
		now: time.Now,
	}

	s.machine = fsm.NewFSM(
		StateStopped,
		fsm.Events{
			{Name: eventStart, Src: []string{StateStopped}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.log.Infow("Scheduler state changed", "from", e.Src, "to", e.Dst)
				metrics.RecordSchedulerState(e.Dst == StateRunning)
			},
		},
	)

	return s
}

// SetLocker installs a cross-process cycle lock
func (s *Scheduler) SetLocker(locker CycleLocker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locker = locker
}

// RegisterPrimary sets the worker run on start, on its schedule and by ManualUpdate
func (s *Scheduler) RegisterPrimary(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.primary = w
	s.log.Infow("Primary worker registered", "worker", w.Name(), "schedule", w.Schedule())
}

// RegisterWorker adds a secondary scheduled worker
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "schedule", w.Schedule())
}

// Start runs one synchronous primary cycle, arms the triggers and starts the
// background loop. Starting a running scheduler only logs a warning.
// The lifecycle lock is released before the initial cycle, so Stop is never
// blocked by it for longer than StopTimeout.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if s.State() == StateRunning {
		s.lifecycleMu.Unlock()
		s.log.Warnw("Scheduler already running, start ignored")
		return nil
	}

	s.mu.Lock()
	err := s.machine.Event(ctx, eventStart)
	primary := s.primary
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()
	s.lifecycleMu.Unlock()
	if err != nil {
		return errors.Wrap(err, "start scheduler")
	}

	// cycles outlive the caller's context, only Stop ends the loop
	bg := context.WithoutCancel(ctx)

	armed := make(chan int, 1)
	go s.run(bg, primary, stopCh, done, armed)
	pending := <-armed

	s.log.Infow("Scheduler started", "pending_triggers", pending, "poll_interval", s.cfg.PollInterval)
	return nil
}

// run executes the initial cycle, arms the triggers and polls until stopCh closes.
// The number of armed triggers is sent on armed once the initial cycle is over.
func (s *Scheduler) run(ctx context.Context, primary Worker, stopCh <-chan struct{}, done chan<- struct{}, armed chan<- int) {
	defer close(done)

	if primary != nil && primary.Enabled() {
		s.log.Infow("Running initial cycle", "worker", primary.Name())
		_ = s.runCycle(ctx, primary)
	}

	pending, ok := s.arm(stopCh)
	armed <- pending
	if !ok {
		return
	}

	s.loop(ctx, stopCh)
}

// arm schedules every enabled worker. It reports false when Stop already ran.
func (s *Scheduler) arm(stopCh <-chan struct{}) (int, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-stopCh:
		return 0, false
	default:
	}

	s.triggers = s.triggers[:0]
	for _, w := range s.allWorkers() {
		if !w.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", w.Name())
			continue
		}
		s.triggers = append(s.triggers, &trigger{worker: w, next: w.Schedule().Next(now)})
	}
	return len(s.triggers), true
}

// Stop clears pending triggers and waits up to StopTimeout for the loop to exit.
// A cycle already in flight is not cancelled. Stopping a stopped scheduler only logs a warning.
func (s *Scheduler) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.State() == StateStopped {
		s.log.Warnw("Scheduler not running, stop ignored")
		return nil
	}

	s.mu.Lock()
	s.triggers = nil
	close(s.stopCh)
	done := s.done
	err := s.machine.Event(context.Background(), eventStop)
	s.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "stop scheduler")
	}

	s.log.Infow("Stopping scheduler...")

	select {
	case <-done:
		s.log.Infow("Scheduler stopped")
		return nil
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warnw("Scheduler loop did not exit in time, in-flight cycle continues", "timeout", s.cfg.StopTimeout)
		return errors.Wrapf(errors.ErrTimeout, "scheduler stop after %s", s.cfg.StopTimeout)
	}
}

// ManualUpdate runs the primary worker now, waiting for any cycle in progress
func (s *Scheduler) ManualUpdate(ctx context.Context) error {
	s.mu.RLock()
	primary := s.primary
	s.mu.RUnlock()

	if primary == nil {
		return errors.Wrap(errors.ErrInvalidInput, "no primary worker registered")
	}
	return s.runCycle(ctx, primary)
}

// RunWorker runs a registered worker by name now
func (s *Scheduler) RunWorker(ctx context.Context, name string) error {
	for _, w := range s.allWorkersLocked() {
		if w.Name() == name {
			return s.runCycle(ctx, w)
		}
	}
	return errors.Wrapf(errors.ErrNotFound, "worker %s", name)
}

// State returns the lifecycle state
func (s *Scheduler) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.Current()
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	return s.State() == StateRunning
}

// Status returns the lifecycle state and pending triggers
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:         s.machine.Is(StateRunning),
		State:           s.machine.Current(),
		PendingTriggers: len(s.triggers),
	}
	for _, t := range s.triggers {
		ts := TriggerStatus{
			Worker:   t.worker.Name(),
			Schedule: t.worker.Schedule().String(),
			NextRun:  t.next,
			LastRun:  t.lastRun,
		}
		if t.lastErr != nil {
			ts.LastError = t.lastErr.Error()
		}
		st.Triggers = append(st.Triggers, ts)
	}
	return st
}

// Workers returns the registered workers, primary first
func (s *Scheduler) Workers() []Worker {
	return s.allWorkersLocked()
}

func (s *Scheduler) allWorkersLocked() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allWorkers()
}

// allWorkers must be called with mu held
func (s *Scheduler) allWorkers() []Worker {
	all := make([]Worker, 0, len(s.workers)+1)
	if s.primary != nil {
		all = append(all, s.primary)
	}
	return append(all, s.workers...)
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.runDue(ctx, stopCh)
		}
	}
}

// runDue runs every trigger whose next run has passed
func (s *Scheduler) runDue(ctx context.Context, stopCh <-chan struct{}) {
	now := s.now()

	s.mu.RLock()
	due := make([]*trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		if !t.next.After(now) {
			due = append(due, t)
		}
	}
	s.mu.RUnlock()

	for _, t := range due {
		select {
		case <-stopCh:
			return
		default:
		}

		err := s.runCycle(ctx, t.worker)

		finished := s.now()
		s.mu.Lock()
		next := t.worker.Schedule().Next(t.next)
		if !next.After(finished) {
			// missed runs collapse into one
			next = t.worker.Schedule().Next(finished)
		}
		t.next = next
		t.lastRun = finished
		t.lastErr = err
		s.mu.Unlock()
	}
}

// runCycle executes one worker iteration under the cycle lock. Panics and errors are
// logged and returned, never propagated to the loop.
func (s *Scheduler) runCycle(ctx context.Context, w Worker) (err error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.RLock()
	locker := s.locker
	s.mu.RUnlock()

	if locker != nil {
		release, ok, lockErr := locker.TryLock(ctx, w.Name())
		switch {
		case lockErr != nil:
			s.log.Warnw("Cycle lock unavailable, running without it", "worker", w.Name(), "error", lockErr)
		case !ok:
			s.log.Infow("Cycle held by another instance, skipping", "worker", w.Name())
			return nil
		default:
			defer release()
		}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrInternal, "worker %s panicked: %v", w.Name(), r)
			s.log.Errorw("Worker panicked", "worker", w.Name(), "panic", fmt.Sprint(r), "error", err)
		}

		duration := time.Since(start)
		metrics.RecordWorkerExecution(w.Name(), duration, err)
		if hr, ok := w.(healthRecorder); ok {
			if err != nil {
				hr.RecordError(err, duration)
			} else {
				hr.RecordRun(duration)
			}
		}
	}()

	if err = w.Run(ctx); err != nil {
		s.log.Errorw("Worker execution failed",
			"worker", w.Name(),
			"error", err,
			"duration", time.Since(start),
		)
		return err
	}

	s.log.Debugw("Worker execution completed",
		"worker", w.Name(),
		"duration", time.Since(start),
	)
	return nil
}
