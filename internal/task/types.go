package task

import (
	"fmt"
	"strings"
)

// Priority orders tasks for execution. Lower values run first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// DefaultPriority is applied to tasks created without an explicit priority.
const DefaultPriority = PriorityMedium

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

func (p Priority) Valid() bool { return p >= PriorityHigh && p <= PriorityLow }

// ParsePriority accepts HIGH, MEDIUM or LOW (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return PriorityHigh, nil
	case "MEDIUM", "":
		return PriorityMedium, nil
	case "LOW":
		return PriorityLow, nil
	default:
		return 0, fmt.Errorf("invalid priority %q", s)
	}
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// State is the lifecycle state of a task.
//
// RUNNING is only ever observed on tasks the worker pool has dequeued; the
// manager never keeps a RUNNING task in its ready, paused or cancelled sets.
type State int

const (
	StateWaiting State = iota
	StateRunning
	StatePaused
	StateCancelled
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateCancelled:
		return "CANCELLED"
	case StateCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether s is COMPLETED or CANCELLED.
func (s State) IsTerminal() bool { return s == StateCompleted || s == StateCancelled }

func ParseState(s string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WAITING":
		return StateWaiting, nil
	case "RUNNING":
		return StateRunning, nil
	case "PAUSED":
		return StatePaused, nil
	case "CANCELLED", "CANCELED":
		return StateCancelled, nil
	case "COMPLETED":
		return StateCompleted, nil
	default:
		return 0, fmt.Errorf("invalid state %q", s)
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Handle is the live reference to a task's queued or in-flight execution.
//
// Done reports true once the execution finished or was cancelled.
// Cancel returns true if this call cancelled the execution; a running
// execution is interrupted through its context (best-effort).
type Handle interface {
	Done() bool
	Cancelled() bool
	Cancel() bool
}
