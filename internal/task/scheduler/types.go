package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Vampouille/georchestra/internal/task"
	"github.com/Vampouille/georchestra/internal/task/engine"
)

// Config controls housekeeping. The administrative protocol itself has no
// settings.
type Config struct {
	// Expiry is the retention window for COMPLETED and CANCELLED entries.
	Expiry time.Duration
	// CleanupSchedule triggers CleanExpiredTasks(Expiry). Empty disables it.
	CleanupSchedule string
	Timezone        string // IANA TZ, e.g. "Europe/Paris"
}

const (
	DefaultExpiry          = 24 * time.Hour
	DefaultCleanupSchedule = "@every 10m"
)

// Pool is the worker pool the manager hands tasks to. *engine.Service
// implements it.
type Pool interface {
	Submit(t task.Task) (*engine.Future, error)
	Remove(t task.Task) bool
	Purge() int
	SetHooks(h engine.Hooks)
}

// Collection names used in Counts and metrics labels.
const (
	CollectionReady     = "ready"
	CollectionRunning   = "running"
	CollectionPaused    = "paused"
	CollectionCancelled = "cancelled"
	CollectionCompleted = "completed"
)

// Counts holds the size of every collection.
type Counts struct {
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Paused    int `json:"paused"`
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
}

func (c Counts) byName() map[string]int {
	return map[string]int{
		CollectionReady:     c.Ready,
		CollectionRunning:   c.Running,
		CollectionPaused:    c.Paused,
		CollectionCancelled: c.Cancelled,
		CollectionCompleted: c.Completed,
	}
}

type periodicDef struct {
	name     string
	spec     string // cron expression or "@every <d>"
	priority task.Priority
	job      task.RunFunc
	entryID  cron.EntryID
	lastUUID string
	skipped  uint64
	fired    uint64
}

type ScheduleInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Priority task.Priority `json:"priority"`
	Next     time.Time     `json:"next"`
	Prev     time.Time     `json:"prev"`
	Fired    uint64        `json:"fired"`
	Skipped  uint64        `json:"skipped"`
}
