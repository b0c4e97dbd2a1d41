package engine

import (
	"time"

	"github.com/Vampouille/georchestra/internal/task"
)

// Config controls the priority worker pool.
//
// The app layer maps config.task_engine into this struct once at startup;
// the pool does not resize while running.
type Config struct {
	// MinWorkers is the pool floor. Workers up to this count never retire.
	// Zero lets the pool drain to no workers between bursts.
	MinWorkers int
	// MaxWorkers bounds the number of simultaneously running tasks.
	MaxWorkers int
	// IdleTimeout retires workers above MinWorkers that had no work for this long.
	IdleTimeout time.Duration

	HistorySize int

	// ThreadName prefixes worker goroutine names: "<ThreadName>-worker.<n>".
	ThreadName string
}

const (
	defaultMaxWorkers  = 2
	defaultIdleTimeout = 5 * time.Second
	defaultHistorySize = 200
	defaultThreadName  = "extractor"
)

func (c Config) withDefaults() Config {
	if c.MinWorkers < 0 {
		c.MinWorkers = 0
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	if c.ThreadName == "" {
		c.ThreadName = defaultThreadName
	}
	return c
}

// Hooks are called on the worker goroutine around each execution.
//
// OnStart runs after the execution handle switched to running and before
// Task.Run. OnFinish runs after Task.Run returned (err is the run error, or
// the recovered panic). Neither is called for executions cancelled before
// they started. The pool lock is never held while a hook runs.
type Hooks struct {
	OnStart  func(t task.Task)
	OnFinish func(t task.Task, err error)
}

// Outcome of one execution.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

type HistoryItem struct {
	UUID       string        `json:"uuid"`
	Name       string        `json:"name,omitempty"`
	Priority   task.Priority `json:"priority"`
	Worker     string        `json:"worker"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
}

// TaskEvent is emitted on the event bus for execution lifecycle events.
type TaskEvent struct {
	UUID       string        `json:"uuid"`
	Name       string        `json:"name"`
	Priority   string        `json:"priority"`
	Worker     string        `json:"worker"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running     bool          `json:"running"`
	MinWorkers  int           `json:"min_workers"`
	MaxWorkers  int           `json:"max_workers"`
	IdleTimeout time.Duration `json:"idle_timeout"`

	Workers int `json:"workers"`
	Busy    int `json:"busy"`
	Backlog int `json:"backlog"`

	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Removed   uint64 `json:"removed"`

	History []HistoryItem `json:"history,omitempty"`
}
