// Package scheduler drives the generation pipeline: a periodic tick checks
// the store for pending work and invokes the processor at most once.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/courseq/internal/domain"
)

// Result is the opaque payload a processor returns from one invocation. The
// only contract is that a non-success response surfaces as the tick's error.
type Result struct {
	Detail string
}

// Processor consumes one queued job end to end. It claims work itself
// through the store, so concurrent invocations cannot double-process.
type Processor interface {
	Process(ctx context.Context) (Result, error)
}

// JobStore is the slice of storage the scheduler needs.
type JobStore interface {
	HasPendingWork(ctx context.Context) (bool, error)
}

// Signals is the optional advisory ready-list mirror (Redis). Nil disables it.
type Signals interface {
	Pop(ctx context.Context) (string, error)
	Depth(ctx context.Context) (int64, error)
	Flush(ctx context.Context) error
}

type Action string

const (
	// ActionIdle means no queued work existed; the processor was not touched.
	ActionIdle Action = "idle"
	// ActionProcessed means the processor was invoked exactly once.
	ActionProcessed Action = "processed"
)

// TickResult is the outcome of one tick.
type TickResult struct {
	Action Action
	Result Result
}

type Config struct {
	// Interval between ticks.
	Interval time.Duration
	// ProcessorTimeout bounds one processor invocation. A timeout is a
	// failed tick, never a terminal job failure.
	ProcessorTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:         15 * time.Second,
		ProcessorTimeout: 10 * time.Minute,
	}
}

// Scheduler holds no job state between ticks; each tick is independent and
// safe to overlap with another tick's in-flight invocation. The store's
// atomic claim is what prevents duplicate processing, not the scheduler.
type Scheduler struct {
	store   JobStore
	proc    Processor
	signals Signals
	cfg     Config
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	lastTickAt time.Time
	tickCount  int64
}

func New(store JobStore, proc Processor, signals Signals, cfg Config, log *zap.SugaredLogger) *Scheduler {
	return NewWithContext(context.Background(), store, proc, signals, cfg, log)
}

// NewWithContext builds a scheduler whose loop stops when ctx is cancelled.
func NewWithContext(ctx context.Context, store JobStore, proc Processor, signals Signals, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ProcessorTimeout <= 0 {
		cfg.ProcessorTimeout = DefaultConfig().ProcessorTimeout
	}
	loopCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		store:   store,
		proc:    proc,
		signals: signals,
		cfg:     cfg,
		log:     log,
		ctx:     loopCtx,
		cancel:  cancel,
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Infow("scheduler started", "interval", s.cfg.Interval)
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Infow("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tickTime := <-ticker.C:
			s.mu.Lock()
			s.lastTickAt = tickTime
			s.tickCount++
			tick := s.tickCount
			s.mu.Unlock()

			res, err := s.Tick(s.ctx)
			if err != nil {
				// A failed tick leaves every job queued; the next tick
				// is the retry.
				s.log.Warnw("tick failed", "tick", tick, "error", err)
				continue
			}
			if res.Action == ActionProcessed {
				s.log.Infow("tick processed", "tick", tick, "detail", res.Result.Detail)
			}
		}
	}
}

// Tick runs one scheduling decision. Exported so an external trigger (a
// webhook, a test) can drive the scheduler deterministically.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	pending, err := s.store.HasPendingWork(ctx)
	if err != nil {
		return TickResult{}, errors.Wrap(err, "check pending work")
	}
	if !pending {
		s.reconcileSignals(ctx)
		return TickResult{Action: ActionIdle}, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessorTimeout)
	defer cancel()

	res, err := s.proc.Process(pctx)
	if err != nil {
		return TickResult{}, domain.ProcessorErr(err, "processor invocation failed")
	}

	if s.signals != nil {
		if _, err := s.signals.Pop(ctx); err != nil {
			s.log.Warnw("ready-signal pop failed", "error", err)
		}
	}
	return TickResult{Action: ActionProcessed, Result: res}, nil
}

// reconcileSignals clears advisory signals that outlived their jobs. The DB
// already said no work is pending, so anything left in the list is stale.
func (s *Scheduler) reconcileSignals(ctx context.Context) {
	if s.signals == nil {
		return
	}
	depth, err := s.signals.Depth(ctx)
	if err != nil {
		s.log.Warnw("ready-signal depth failed", "error", err)
		return
	}
	if depth == 0 {
		return
	}
	if err := s.signals.Flush(ctx); err != nil {
		s.log.Warnw("ready-signal flush failed", "error", err)
		return
	}
	s.log.Debugw("flushed stale ready signals", "count", depth)
}

// Stats reports loop counters for inspection endpoints.
func (s *Scheduler) Stats() (lastTickAt time.Time, ticks int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTickAt, s.tickCount
}
