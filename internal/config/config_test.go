package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
task_engine:
  max_extractions: 4
  min_threads: 1
  idle_timeout: 30s
scheduler:
  expiry: 12h
  cleanup_schedule: "@every 5m"
  timezone: UTC
storage:
  driver: sqlite
  path: ./tokens.db
token_sweep:
  enabled: true
  delay: 48h
  deletes_per_sec: 50
admin:
  enabled: true
  addr: 127.0.0.1:6061
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.TaskEngine.MaxExtractions)
	assert.Equal(t, "30s", cfg.TaskEngine.IdleTimeout)
	assert.Equal(t, "@every 5m", cfg.Scheduler.CleanupSchedule)
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	require.NotNil(t, cfg.TokenSweep)
	assert.InDelta(t, 50.0, cfg.TokenSweep.DeletesPerSec, 0.001)
	assert.Same(t, cfg, m.Get())
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"unknown json field", "c.json", `{"task_engine":{"workers":2}}`, "unknown field"},
		{"unknown yaml field", "c.yml", "scheduler:\n  enabled: true\n", "unknown field"},
		{"trailing data", "c.json", `{} {}`, "trailing data"},
		{"bad yaml", "c.yaml", "logging: [", "parse yaml"},
		{"duplicate yaml key", "c.yaml", "scheduler:\n  expiry: 1h\n  expiry: 2h\n", "scheduler.expiry: line 3: duplicate key"},
		{"composite yaml key", "c.yaml", "admin:\n  ? [a, b]\n  : 1\n", "admin: line 2: mapping keys must be plain scalars"},
		{"merge key", "c.yaml", "base: &b {level: info}\nlogging:\n  <<: *b\n", "logging: line 3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.file, []byte(tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDecodeYAMLShapes(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("empty.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)

	cfg, err = Decode("alias.yaml", []byte("logging:\n  level: &lv warn\n  alert:\n    min_level: *lv\ntask_engine:\n  max_extractions: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Alert.MinLevel)
	assert.Equal(t, 3, cfg.TaskEngine.MaxExtractions)

	cfg, err = Decode("plain.json", []byte(`{"scheduler":{"expiry":"1h"}}`))
	require.NoError(t, err)
	assert.Equal(t, "1h", cfg.Scheduler.Expiry)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty is valid", Config{}, ""},
		{"bad log level", Config{Logging: LoggingConfig{Level: "loud"}}, "logging.level"},
		{"min above max", Config{TaskEngine: TaskEngineConfig{MaxExtractions: 1, MinThreads: 2}}, "exceeds max_extractions"},
		{"bad idle timeout", Config{TaskEngine: TaskEngineConfig{IdleTimeout: "soon"}}, "task_engine.idle_timeout"},
		{"negative expiry", Config{Scheduler: SchedulerConfig{Expiry: "-1h"}}, "scheduler.expiry"},
		{"bad timezone", Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, "scheduler.timezone"},
		{"sqlite without path", Config{Storage: &StorageConfig{Driver: "sqlite"}}, "storage.path is required"},
		{"unknown driver", Config{Storage: &StorageConfig{Driver: "redis"}}, "unknown storage.driver"},
		{"sweep without storage", Config{TokenSweep: &TokenSweepConfig{Enabled: true}}, "requires a storage driver"},
		{"admin public without token", Config{Admin: AdminConfig{Enabled: true, Addr: "0.0.0.0:6060"}}, "not loopback"},
		{"admin public with token", Config{Admin: AdminConfig{Enabled: true, Addr: ":6060", Token: "s3cret"}}, ""},
		{"admin insecure allowed", Config{Admin: AdminConfig{Enabled: true, Addr: ":6060", AllowInsecure: true}}, ""},
		{"admin bad prefix", Config{Admin: AdminConfig{PprofPrefix: "debug"}}, "pprof_prefix"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCleanupDisabled(t *testing.T) {
	t.Parallel()
	assert.True(t, SchedulerConfig{CleanupSchedule: " OFF "}.CleanupDisabled())
	assert.False(t, SchedulerConfig{}.CleanupDisabled())
	assert.False(t, SchedulerConfig{CleanupSchedule: "@every 1m"}.CleanupDisabled())
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := &Config{Admin: AdminConfig{Enabled: true, Token: "a"}}
	next := &Config{
		Admin:     AdminConfig{Enabled: true, Token: "b"},
		Scheduler: SchedulerConfig{Expiry: "1h"},
		Storage:   &StorageConfig{Driver: "file"},
	}
	changed, attrs := SummarizeConfigChange(old, next)
	assert.Equal(t, []string{"scheduler", "storage"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(old, &Config{Admin: AdminConfig{Enabled: true}})
	assert.Equal(t, []string{"admin"}, changed)

	changed, attrs = SummarizeConfigChange(nil, &Config{})
	assert.Empty(t, changed)
	assert.Empty(t, attrs)
}

func TestSectionDurations(t *testing.T) {
	t.Parallel()

	idle, err := TaskEngineConfig{}.IdleTimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, idle, "unset leaves the engine default")

	expiry, err := SchedulerConfig{Expiry: " 2m "}.ExpiryDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, expiry)

	busy, err := StorageConfig{BusyTimeout: "0s"}.BusyTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, DefaultBusyTimeout, busy, "zero falls back")

	delay, err := TokenSweepConfig{}.DelayDuration()
	require.NoError(t, err)
	assert.Equal(t, DefaultSweepDelay, delay)

	to, err := AdminConfig{IdleTimeout: "90s"}.Timeouts()
	require.NoError(t, err)
	assert.Equal(t, AdminTimeouts{Read: DefaultAdminReadTimeout, Write: 0, Idle: 90 * time.Second}, to)

	_, err = AdminConfig{WriteTimeout: "-5s"}.Timeouts()
	var de *DurationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "admin.write_timeout", de.Field)
	assert.ErrorIs(t, err, errNegativeDuration)

	_, err = TokenSweepConfig{Delay: "a day"}.DelayDuration()
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "token_sweep.delay", de.Field)
	assert.Contains(t, err.Error(), `bad duration "a day"`)
}

func TestValidateReportsEveryBadDuration(t *testing.T) {
	t.Parallel()
	cfg := Config{
		TaskEngine: TaskEngineConfig{IdleTimeout: "x"},
		Storage:    &StorageConfig{Driver: "sqlite", Path: "t.db", BusyTimeout: "-1s"},
		Admin:      AdminConfig{ReadTimeout: "y"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"task_engine.idle_timeout", "storage.busy_timeout", "admin.read_timeout"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"scheduler":{"expiry":"1h"}}`)
	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// The watcher needs a moment to register; rewrite until a reload arrives.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			assert.Equal(t, "2h", cfg.Scheduler.Expiry)
			assert.Equal(t, "2h", m.Get().Scheduler.Expiry)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(`{"scheduler":{"expiry":"2h"}}`), 0o600))
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestWatchRejectsInvalidReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{}`)
	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	m.reload(context.Background())
	require.NoError(t, os.WriteFile(path, []byte(`{"task_engine":{"min_threads":-1}}`), 0o600))
	m.reload(context.Background())
	assert.Equal(t, 0, m.Get().TaskEngine.MinThreads)

	m.SetValidator(func(context.Context, *Config) error { return assert.AnError })
	require.NoError(t, os.WriteFile(path, []byte(`{"task_engine":{"min_threads":1}}`), 0o600))
	m.reload(context.Background())
	assert.Equal(t, 0, m.Get().TaskEngine.MinThreads)

	m.SetValidator(nil)
	m.reload(context.Background())
	assert.Equal(t, 1, m.Get().TaskEngine.MinThreads)
}
