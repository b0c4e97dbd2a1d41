package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/Vampouille/georchestra/internal/config"
	"github.com/Vampouille/georchestra/internal/observability/admin"
	"github.com/Vampouille/georchestra/internal/task/engine"
	"github.com/Vampouille/georchestra/internal/task/scheduler"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

func mapLoggingConfig(cfg *Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alert: logx.AlertConfig{
			Enabled:    l.Alert.Enabled,
			MinLevel:   l.Alert.MinLevel,
			RatePerSec: l.Alert.RatePerSec,
		},
	}
}

// mapTaskEngineConfig leaves zero values to the engine defaults.
func mapTaskEngineConfig(cfg *Config) (engine.Config, error) {
	te := cfg.TaskEngine
	idle, err := te.IdleTimeoutDuration()
	if err != nil {
		return engine.Config{}, err
	}
	if te.MinThreads < 0 || te.MaxExtractions < 0 || te.HistorySize < 0 {
		return engine.Config{}, fmt.Errorf("task_engine: negative sizes are not allowed")
	}
	return engine.Config{
		MinWorkers:  te.MinThreads,
		MaxWorkers:  te.MaxExtractions,
		IdleTimeout: idle,
		HistorySize: te.HistorySize,
		ThreadName:  strings.TrimSpace(te.ThreadName),
	}, nil
}

func mapSchedulerConfig(cfg *Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	expiry, err := sc.ExpiryDuration()
	if err != nil {
		return scheduler.Config{}, err
	}
	if expiry == 0 {
		expiry = scheduler.DefaultExpiry
	}
	cleanup := strings.TrimSpace(sc.CleanupSchedule)
	switch {
	case sc.CleanupDisabled():
		cleanup = ""
	case cleanup == "":
		cleanup = config.DefaultCleanupSchedule
	default:
		if _, err := scheduler.ParseSchedule(cleanup); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.cleanup_schedule: %w", err)
		}
	}
	return scheduler.Config{
		Expiry:          expiry,
		CleanupSchedule: cleanup,
		Timezone:        strings.TrimSpace(sc.Timezone),
	}, nil
}

type sweepSettings struct {
	Enabled       bool
	Schedule      string
	Delay         time.Duration
	DeletesPerSec float64
}

func mapTokenSweepConfig(cfg *Config) (sweepSettings, error) {
	ts := cfg.TokenSweep
	if ts == nil || !ts.Enabled {
		return sweepSettings{}, nil
	}
	schedule := strings.TrimSpace(ts.Schedule)
	if schedule == "" {
		schedule = config.DefaultSweepSchedule
	}
	if _, err := scheduler.ParseSchedule(schedule); err != nil {
		return sweepSettings{}, fmt.Errorf("token_sweep.schedule: %w", err)
	}
	delay, err := ts.DelayDuration()
	if err != nil {
		return sweepSettings{}, err
	}
	return sweepSettings{Enabled: true, Schedule: schedule, Delay: delay, DeletesPerSec: ts.DeletesPerSec}, nil
}

func mapAdminConfig(cfg *Config) (admin.Config, error) {
	ac := cfg.Admin
	to, err := ac.Timeouts()
	if err != nil {
		return admin.Config{}, err
	}
	addr := strings.TrimSpace(ac.Addr)
	if addr == "" {
		addr = config.DefaultAdminAddr
	}
	return admin.Config{
		Enabled:       ac.Enabled,
		Addr:          addr,
		PprofPrefix:   strings.TrimSpace(ac.PprofPrefix),
		Token:         strings.TrimSpace(ac.Token),
		AllowInsecure: ac.AllowInsecure,
		ReadTimeout:   to.Read,
		WriteTimeout:  to.Write,
		IdleTimeout:   to.Idle,
	}, nil
}

// validate checks everything the reload path maps.
func validate(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTokenSweepConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAdminConfig(cfg); err != nil {
		return err
	}
	_, _, err := mapStorageConfig(cfg)
	return err
}
