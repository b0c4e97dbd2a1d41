// Package app wires the task manager, its collaborators and the operator
// surfaces, and runs them under one supervisor.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Vampouille/georchestra/internal/eventbus"
	"github.com/Vampouille/georchestra/internal/observability/admin"
	"github.com/Vampouille/georchestra/internal/observability/metrics"
	"github.com/Vampouille/georchestra/internal/storage"
	"github.com/Vampouille/georchestra/internal/task"
	"github.com/Vampouille/georchestra/internal/task/engine"
	"github.com/Vampouille/georchestra/internal/task/scheduler"
	"github.com/Vampouille/georchestra/internal/tokensweep"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// TokenSweepJob is the periodic job name of the expired token clean.
const TokenSweepJob = "token-sweep"

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	reg     *prometheus.Registry
	metrics *metrics.Collector

	store  storage.Store
	engine *engine.Service
	sched  *scheduler.Service
	admin  *admin.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineSvc := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus, engine.WithMetrics(m))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, engineSvc, log.With(logx.String("comp", "taskmanager")), bus, scheduler.WithMetrics(m))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	adminCfg, err := mapAdminConfig(cfg)
	if err != nil {
		return nil, err
	}
	adminSvc := admin.New(adminCfg, admin.Deps{
		Gatherer: reg,
		Metrics:  m,
		Tasks:    schedSvc,
		Pool:     engineSvc,
	}, log.With(logx.String("comp", "admin")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		reg:     reg,
		metrics: m,
		store:   store,
		engine:  engineSvc,
		sched:   schedSvc,
		admin:   adminSvc,
	}
	if err := a.applyTokenSweep(cfg); err != nil {
		_ = a.closeStore()
		return nil, err
	}
	return a, nil
}

// Scheduler is the task manager: the single entry point for submitting and
// administering tasks.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Engine() *engine.Service { return a.engine }

// Store returns the token store, nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

func (a *App) Registry() *prometheus.Registry { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// applyTokenSweep registers, replaces or removes the token sweep job.
func (a *App) applyTokenSweep(cfg *Config) error {
	ss, err := mapTokenSweepConfig(cfg)
	if err != nil {
		return err
	}
	if !ss.Enabled || a.store == nil {
		if a.sched.RemovePeriodic(TokenSweepJob) {
			a.log.Info("token sweep disabled")
		}
		return nil
	}
	sweep := tokensweep.New(a.store, ss.Delay, ss.DeletesPerSec, a.log.With(logx.String("comp", "tokensweep")))
	if err := a.sched.AddPeriodic(TokenSweepJob, ss.Schedule, task.PriorityLow, sweep.Run); err != nil {
		return fmt.Errorf("token_sweep: %w", err)
	}
	a.log.Info("token sweep scheduled",
		logx.String("schedule", ss.Schedule),
		logx.Duration("delay", ss.Delay),
		logx.Any("deletes_per_sec", ss.DeletesPerSec),
	)
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error { return validate(cfg) })

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	if a.admin.Enabled() {
		a.admin.Start(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		a.logEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// logEvents keeps a debug trail of the task lifecycle.
func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
			switch d := e.Data.(type) {
			case task.Info:
				fields = append(fields, logx.String("uuid", d.UUID), logx.String("state", d.State.String()))
			case engine.TaskEvent:
				fields = append(fields, logx.String("uuid", d.UUID), logx.String("worker", d.Worker))
			}
			a.log.Debug("event", fields...)
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies a validated reload. Logging, scheduler housekeeping,
// the token sweep job and the admin server change live; the worker pool and
// the store need a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *Config) {
	sections, attrs := SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	if slices.Contains(sections, "task_engine") {
		a.log.Warn("task_engine config changed; restart required for changes to take effect")
	}
	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLoggingConfig(next))

	if sc, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	if slices.Contains(sections, "token_sweep") {
		if err := a.applyTokenSweep(next); err != nil {
			a.log.Warn("invalid token_sweep config; keeping previous", logx.Err(err))
		}
	}

	if ac, err := mapAdminConfig(next); err != nil {
		a.log.Warn("invalid admin config; keeping previous", logx.Err(err))
	} else {
		a.admin.Reconfigure(ctx, ac)
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		err := a.closeStore()
		_ = a.logs.Close()
		return err
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// The scheduler stops first so no periodic job is submitted to a stopping pool.
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "admin", time.Second, func(c context.Context) error { a.admin.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeStore() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and by the caller's deadline.
// fn must honor its context; a step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}
