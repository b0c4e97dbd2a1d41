package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// Defaults shared by the validator and the app mapping.
const (
	DefaultCleanupSchedule = "@every 10m"
	DefaultSweepSchedule   = "@every 1h"
	DefaultSweepDelay      = 24 * time.Hour
	DefaultAdminAddr       = "127.0.0.1:6060"
)

// CleanupDisabled reports whether the expiry sweep is switched off.
func (s SchedulerConfig) CleanupDisabled() bool {
	v := strings.ToLower(strings.TrimSpace(s.CleanupSchedule))
	return v == "off" || v == "none" || v == "disabled"
}

// Validate rejects configs the app cannot map. It does not touch the
// filesystem or the network.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if !logx.ValidLevel(c.Logging.Alert.MinLevel) {
		errs = append(errs, fmt.Errorf("logging.alert.min_level: unknown level %q", c.Logging.Alert.MinLevel))
	}

	te := c.TaskEngine
	if te.MaxExtractions < 0 {
		errs = append(errs, fmt.Errorf("task_engine.max_extractions must be >= 0"))
	}
	if te.MinThreads < 0 {
		errs = append(errs, fmt.Errorf("task_engine.min_threads must be >= 0"))
	}
	if te.MaxExtractions > 0 && te.MinThreads > te.MaxExtractions {
		errs = append(errs, fmt.Errorf("task_engine.min_threads (%d) exceeds max_extractions (%d)", te.MinThreads, te.MaxExtractions))
	}
	if te.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("task_engine.history_size must be >= 0"))
	}
	for _, f := range c.durationFields() {
		if _, err := f.value(); err != nil {
			errs = append(errs, err)
		}
	}

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}

	storageOn := false
	if s := c.Storage; s != nil {
		switch d := strings.ToLower(strings.TrimSpace(s.Driver)); d {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			storageOn = true
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", d))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
	}

	if ts := c.TokenSweep; ts != nil {
		if ts.DeletesPerSec < 0 {
			errs = append(errs, fmt.Errorf("token_sweep.deletes_per_sec must be >= 0"))
		}
		if ts.Enabled && !storageOn {
			errs = append(errs, fmt.Errorf("token_sweep.enabled requires a storage driver"))
		}
	}

	errs = append(errs, c.Admin.validate()...)
	return errors.Join(errs...)
}

func (a AdminConfig) validate() []error {
	var errs []error
	if p := strings.TrimSpace(a.PprofPrefix); p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("admin.pprof_prefix must start with '/'"))
	}
	if !a.Enabled {
		return errs
	}
	addr := strings.TrimSpace(a.Addr)
	if addr == "" {
		addr = DefaultAdminAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return append(errs, fmt.Errorf("admin.addr: %w", err))
	}
	if !IsLoopbackHost(host) && strings.TrimSpace(a.Token) == "" && !a.AllowInsecure {
		errs = append(errs, fmt.Errorf("admin.addr %q is not loopback; set admin.token or admin.allow_insecure", addr))
	}
	return errs
}

// IsLoopbackHost reports whether host only accepts local connections.
// An empty host binds every interface and is not loopback.
func IsLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
