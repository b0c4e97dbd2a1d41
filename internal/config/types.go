package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// TaskEngine sizes the priority worker pool. It is read once at startup;
	// changes on reload are reported but need a restart.
	TaskEngine TaskEngineConfig `json:"task_engine"`

	// Scheduler controls the task manager housekeeping (expiry sweep and
	// the timezone used by periodic jobs).
	Scheduler SchedulerConfig `json:"scheduler"`

	Storage    *StorageConfig    `json:"storage,omitempty"`
	TokenSweep *TokenSweepConfig `json:"token_sweep,omitempty"`
	Admin      AdminConfig       `json:"admin,omitempty"`
}

// TaskEngineConfig controls the priority worker pool.
//
// Defaults (when fields are omitted/zero):
//   - max_extractions: 2
//   - min_threads: 0 (workers start on demand)
//   - idle_timeout: "5s"
//   - history_size: 200
//   - thread_name: "extractor"
type TaskEngineConfig struct {
	MaxExtractions int    `json:"max_extractions,omitempty"`
	MinThreads     int    `json:"min_threads,omitempty"`
	IdleTimeout    string `json:"idle_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	ThreadName     string `json:"thread_name,omitempty"`
}

// SchedulerConfig controls finished-task retention.
//
// Expiry is how long COMPLETED and CANCELLED tasks stay visible (default "24h").
// CleanupSchedule is a cron spec or "@every <duration>" (default "@every 10m");
// set it to "off" to disable the sweep.
type SchedulerConfig struct {
	Expiry          string `json:"expiry,omitempty"`
	CleanupSchedule string `json:"cleanup_schedule,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

// StorageConfig controls the user token store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/tokens.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TokenSweepConfig schedules the expired token clean job on the task manager.
// It needs a storage section; without one the job is not registered.
type TokenSweepConfig struct {
	Enabled       bool    `json:"enabled"`
	Schedule      string  `json:"schedule,omitempty"` // default: "@every 1h"
	Delay         string  `json:"delay,omitempty"`    // token lifetime, default: "24h"
	DeletesPerSec float64 `json:"deletes_per_sec,omitempty"`
}

// AdminConfig controls the optional admin HTTP server (health, metrics,
// task queue snapshot and pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`         // default: "127.0.0.1:6060"
	PprofPrefix   string `json:"pprof_prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`        // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /debug/pprof/profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert mirrors WARN+ lines to stderr in a compact form.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
