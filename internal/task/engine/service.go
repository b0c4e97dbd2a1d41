package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vampouille/georchestra/internal/eventbus"
	"github.com/Vampouille/georchestra/internal/observability/metrics"
	rtsup "github.com/Vampouille/georchestra/internal/runtime/supervisor"
	"github.com/Vampouille/georchestra/internal/task"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// Service is a bounded worker pool with a priority-ordered backlog.
//
// Workers are spawned lazily up to MaxWorkers and retire after IdleTimeout
// once the pool is above MinWorkers. Queued executions are dequeued in
// priority order, then submission order.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	hooks   Hooks
	metrics *metrics.Collector

	queue   *backlog
	wake    chan struct{}
	sup     *rtsup.Supervisor
	running bool

	live      int
	busy      int
	workerSeq int

	hmu     sync.Mutex
	history []HistoryItem

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	removed   atomic.Uint64
}

type Option func(*Service)

func WithHooks(h Hooks) Option { return func(s *Service) { s.hooks = h } }

func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		bus:   bus,
		queue: newBacklog(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetHooks replaces the execution hooks. Executions already running keep
// the hooks they started with.
func (s *Service) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Supervisor returns the pool's worker supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Config returns the effective configuration (defaults applied).
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "taskengine"))),
		// a failing task must not take the pool down
		rtsup.WithCancelOnError(false),
	)
	s.wake = make(chan struct{}, cfg.MaxWorkers)
	s.running = true
	for s.live < cfg.MinWorkers {
		s.spawnLocked()
	}
	s.mu.Unlock()

	s.log.Info("task engine started",
		logx.Int("min_workers", cfg.MinWorkers),
		logx.Int("max_workers", cfg.MaxWorkers),
		logx.Duration("idle_timeout", cfg.IdleTimeout),
	)
}

// Stop cancels running executions and every queued future, then waits for
// workers to exit or ctx to end.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	sup := s.sup
	pending := s.queue.drain()
	s.mu.Unlock()

	for _, e := range pending {
		if e.future.Cancel() {
			s.cancelled.Add(1)
		}
	}

	err := sup.Stop(ctx)

	s.mu.Lock()
	if s.sup == sup {
		s.sup = nil
	}
	s.publishPoolLocked()
	s.mu.Unlock()

	if ctx.Err() != nil {
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
		return
	}
	if err != nil {
		s.log.Warn("task engine stopped with error", logx.Err(err))
		return
	}
	s.log.Info("task engine stopped", logx.Int("cancelled_queued", len(pending)))
}

// Submit queues t for execution and returns its execution handle.
func (s *Service) Submit(t task.Task) (*Future, error) {
	if t == nil || t.Metadata() == nil {
		return nil, ErrNilTask
	}
	f := newFuture(time.Now())

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.queue.push(t, f)
	idle := s.live - s.busy
	if s.live < s.cfg.MinWorkers || (idle < s.queue.len() && s.live < s.cfg.MaxWorkers) {
		s.spawnLocked()
	}
	s.publishPoolLocked()
	wake := s.wake
	s.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}

	s.submitted.Add(1)
	s.metrics.Submitted(t.Metadata().Priority().String())
	return f, nil
}

// Remove drops that exact task instance from the backlog if it has not
// started yet. Its future is left untouched.
func (s *Service) Remove(t task.Task) bool {
	if t == nil {
		return false
	}
	s.mu.Lock()
	_, ok := s.queue.remove(t)
	s.publishPoolLocked()
	s.mu.Unlock()
	if ok {
		s.removed.Add(1)
	}
	return ok
}

// Purge drops cancelled and finished entries from the backlog and returns
// how many were dropped.
func (s *Service) Purge() int {
	s.mu.Lock()
	n := s.queue.purge()
	s.publishPoolLocked()
	s.mu.Unlock()
	if n > 0 {
		s.removed.Add(uint64(n))
	}
	return n
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:     s.running,
		MinWorkers:  s.cfg.MinWorkers,
		MaxWorkers:  s.cfg.MaxWorkers,
		IdleTimeout: s.cfg.IdleTimeout,
		Workers:     s.live,
		Busy:        s.busy,
		Backlog:     s.queue.len(),
	}
	s.mu.Unlock()

	snap.Submitted = s.submitted.Load()
	snap.Completed = s.completed.Load()
	snap.Failed = s.failed.Load()
	snap.Cancelled = s.cancelled.Load()
	snap.Removed = s.removed.Load()

	s.hmu.Lock()
	snap.History = make([]HistoryItem, len(s.history))
	copy(snap.History, s.history)
	s.hmu.Unlock()
	return snap
}

func (s *Service) spawnLocked() {
	s.live++
	s.workerSeq++
	name := fmt.Sprintf("%s-worker.%d", s.cfg.ThreadName, s.workerSeq)
	s.sup.Go0(name, func(ctx context.Context) {
		s.worker(ctx, name)
	})
}

func (s *Service) publishPoolLocked() {
	s.metrics.SetPool(s.queue.len(), s.live, s.busy)
}

func (s *Service) record(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if n := s.cfg.HistorySize; len(s.history) > n {
		s.history = s.history[len(s.history)-n:]
	}
	s.hmu.Unlock()
}
