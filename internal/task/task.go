package task

import (
	"context"
	"errors"
	"strings"
)

// Task is a schedulable unit of work.
//
// Run must return promptly once ctx is cancelled; that is the only way a
// running task can be interrupted. Clone returns a new instance for the same
// logical task: same uuid and payload, independent metadata, no handle.
type Task interface {
	Run(ctx context.Context) error
	Metadata() *Metadata
	Clone() Task
}

// Compare orders tasks for execution: priority first, then submission
// sequence, then uuid so that the order is total.
func Compare(a, b Task) int {
	ma, mb := a.Metadata(), b.Metadata()
	pa, pb := ma.Priority(), mb.Priority()
	if pa != pb {
		if pa < pb {
			return -1
		}
		return 1
	}
	sa, sb := ma.Seq(), mb.Seq()
	if sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	return strings.Compare(ma.UUID(), mb.UUID())
}

// Less reports whether a runs before b.
func Less(a, b Task) bool { return Compare(a, b) < 0 }

// RunFunc is the payload of a Func task.
type RunFunc func(ctx context.Context) error

// Func adapts a function into a Task.
type Func struct {
	meta *Metadata
	fn   RunFunc
}

var ErrNilRun = errors.New("task run func is nil")

// NewFunc returns a WAITING task with a fresh uuid.
func NewFunc(name string, p Priority, fn RunFunc) *Func {
	return &Func{meta: NewMetadata(name, p), fn: fn}
}

func (f *Func) Run(ctx context.Context) error {
	if f.fn == nil {
		return ErrNilRun
	}
	return f.fn(ctx)
}

func (f *Func) Metadata() *Metadata { return f.meta }

func (f *Func) Clone() Task {
	return &Func{meta: f.meta.Copy(), fn: f.fn}
}
