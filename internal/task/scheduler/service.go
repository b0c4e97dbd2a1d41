package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Vampouille/georchestra/internal/eventbus"
	"github.com/Vampouille/georchestra/internal/observability/metrics"
	"github.com/Vampouille/georchestra/internal/task"
	"github.com/Vampouille/georchestra/internal/task/engine"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// Service is the task manager. All exported methods are safe for concurrent
// use and serialize on one mutex.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	bus     eventbus.Bus
	pool    Pool
	metrics *metrics.Collector

	seq       uint64
	ready     *readyQueue
	paused    map[string]task.Task
	running   map[string]task.Task
	cancelled []task.Task
	completed []task.Task

	parser    cron.Parser
	c         *cron.Cron
	loc       *time.Location
	cleanupID cron.EntryID
	periodic  []*periodicDef
}

type Option func(*Service)

func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

// New creates the manager and installs its hooks on pool.
func New(cfg Config, pool Pool, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		cfg:     cfg.withDefaults(),
		log:     log,
		bus:     bus,
		pool:    pool,
		ready:   newReadyQueue(),
		paused:  map[string]task.Task{},
		running: map[string]task.Task{},
		parser:  specParser,
	}
	for _, o := range opts {
		o(s)
	}
	pool.SetHooks(engine.Hooks{OnStart: s.onStart, OnFinish: s.onFinish})
	return s
}

func (c Config) withDefaults() Config {
	if c.Expiry <= 0 {
		c.Expiry = DefaultExpiry
	}
	return c
}

// Apply updates housekeeping settings. A timezone change restarts cron.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	if s.c == nil {
		return
	}
	if strings.TrimSpace(prev.Timezone) != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
		return
	}
	if prev.CleanupSchedule != cfg.CleanupSchedule {
		s.registerCleanupLocked()
	}
}

// Start starts housekeeping cron.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startCronLocked()
	s.log.Info("task manager started",
		logx.String("tz", s.loc.String()),
		logx.Duration("expiry", s.cfg.Expiry),
		logx.String("cleanup", s.cfg.CleanupSchedule),
		logx.Int("periodic", len(s.periodic)),
	)
}

// Stop stops housekeeping cron. Tasks are left to the pool.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("task manager stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) startCronLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.cleanupID = 0
	s.registerCleanupLocked()
	for _, d := range s.periodic {
		d.entryID = 0
		if err := s.addPeriodicCronLocked(d); err != nil {
			s.log.Error("periodic register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	if s.c != nil {
		s.c.Stop()
	}
	s.startCronLocked()
	s.log.Info("task manager cron restarted", logx.String("tz", s.loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) registerCleanupLocked() {
	if s.c == nil {
		return
	}
	if s.cleanupID != 0 {
		s.c.Remove(s.cleanupID)
		s.cleanupID = 0
	}
	raw := strings.TrimSpace(s.cfg.CleanupSchedule)
	if raw == "" {
		return
	}
	ps, err := ParseSchedule(raw)
	if err != nil {
		s.log.Error("cleanup schedule invalid", logx.String("spec", raw), logx.Err(err))
		return
	}
	id, err := s.c.AddFunc(ps.CronSpec(), func() {
		s.mu.Lock()
		window := s.cfg.Expiry
		s.mu.Unlock()
		s.CleanExpiredTasks(window)
	})
	if err != nil {
		s.log.Error("cleanup schedule register failed", logx.String("spec", ps.CronSpec()), logx.Err(err))
		return
	}
	s.cleanupID = id
}
