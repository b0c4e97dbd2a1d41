package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Fallbacks for duration fields that have a config-level default. Fields
// without one report 0 when unset and leave the default to their consumer.
const (
	DefaultBusyTimeout       = time.Second
	DefaultAdminReadTimeout  = 10 * time.Second
	DefaultAdminIdleTimeout  = 60 * time.Second
	defaultAdminWriteTimeout = 0 // long CPU profiles need an unbounded write
)

var errNegativeDuration = errors.New("must not be negative")

// DurationError reports a duration field that does not hold a usable Go
// duration string.
type DurationError struct {
	Field string
	Value string
	Err   error
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("%s: bad duration %q: %v", e.Field, e.Value, e.Err)
}

func (e *DurationError) Unwrap() error { return e.Err }

// durationField is one duration string of the config addressed by its
// dotted path. An unset or zero value resolves to fallback.
type durationField struct {
	path     string
	raw      string
	fallback time.Duration
}

func (f durationField) value() (time.Duration, error) {
	s := strings.TrimSpace(f.raw)
	if s == "" {
		return f.fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &DurationError{Field: f.path, Value: f.raw, Err: err}
	}
	if d < 0 {
		return 0, &DurationError{Field: f.path, Value: f.raw, Err: errNegativeDuration}
	}
	if d == 0 {
		return f.fallback, nil
	}
	return d, nil
}

func (te TaskEngineConfig) idleTimeout() durationField {
	return durationField{path: "task_engine.idle_timeout", raw: te.IdleTimeout}
}

// IdleTimeoutDuration is 0 when unset so the engine default applies.
func (te TaskEngineConfig) IdleTimeoutDuration() (time.Duration, error) {
	return te.idleTimeout().value()
}

func (s SchedulerConfig) expiry() durationField {
	return durationField{path: "scheduler.expiry", raw: s.Expiry}
}

// ExpiryDuration is 0 when unset so the scheduler default applies.
func (s SchedulerConfig) ExpiryDuration() (time.Duration, error) {
	return s.expiry().value()
}

func (s StorageConfig) busyTimeout() durationField {
	return durationField{path: "storage.busy_timeout", raw: s.BusyTimeout, fallback: DefaultBusyTimeout}
}

func (s StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return s.busyTimeout().value()
}

func (ts TokenSweepConfig) delay() durationField {
	return durationField{path: "token_sweep.delay", raw: ts.Delay, fallback: DefaultSweepDelay}
}

// DelayDuration is the token lifetime the sweep compares against.
func (ts TokenSweepConfig) DelayDuration() (time.Duration, error) {
	return ts.delay().value()
}

// AdminTimeouts are the resolved HTTP server timeouts of the admin section.
type AdminTimeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

func (a AdminConfig) timeoutFields() [3]durationField {
	return [3]durationField{
		{path: "admin.read_timeout", raw: a.ReadTimeout, fallback: DefaultAdminReadTimeout},
		{path: "admin.write_timeout", raw: a.WriteTimeout, fallback: defaultAdminWriteTimeout},
		{path: "admin.idle_timeout", raw: a.IdleTimeout, fallback: DefaultAdminIdleTimeout},
	}
}

// Timeouts resolves the admin server timeouts. The first bad field wins.
func (a AdminConfig) Timeouts() (AdminTimeouts, error) {
	var out [3]time.Duration
	for i, f := range a.timeoutFields() {
		d, err := f.value()
		if err != nil {
			return AdminTimeouts{}, err
		}
		out[i] = d
	}
	return AdminTimeouts{Read: out[0], Write: out[1], Idle: out[2]}, nil
}

// durationFields lists every duration string present in c.
func (c *Config) durationFields() []durationField {
	fields := []durationField{c.TaskEngine.idleTimeout(), c.Scheduler.expiry()}
	if c.Storage != nil {
		fields = append(fields, c.Storage.busyTimeout())
	}
	if c.TokenSweep != nil {
		fields = append(fields, c.TokenSweep.delay())
	}
	at := c.Admin.timeoutFields()
	return append(fields, at[:]...)
}
