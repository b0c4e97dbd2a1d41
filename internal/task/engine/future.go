package engine

import (
	"context"
	"sync"
	"time"
)

type futureState int

const (
	futurePending futureState = iota
	futureRunning
	futureFinished
	futureCancelled
)

// Future is the execution handle returned by Submit. It implements task.Handle.
//
// Done reports true once the execution finished or was cancelled. Cancelling
// a running execution cancels its context; the task decides how fast it stops.
type Future struct {
	mu        sync.Mutex
	state     futureState
	err       error
	cancelRun context.CancelFunc
	done      chan struct{}

	enqueuedAt time.Time
}

func newFuture(now time.Time) *Future {
	return &Future{done: make(chan struct{}), enqueuedAt: now}
}

func (f *Future) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureFinished || f.state == futureCancelled
}

func (f *Future) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureCancelled
}

// Running reports whether a worker picked up the execution and it has not
// finished or been cancelled yet.
func (f *Future) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == futureRunning
}

// Cancel moves a pending or running execution to cancelled. It returns false
// when the execution already finished or was already cancelled.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case futurePending:
	case futureRunning:
		if f.cancelRun != nil {
			f.cancelRun()
		}
	default:
		return false
	}
	f.state = futureCancelled
	f.err = ErrCanceled
	close(f.done)
	return true
}

// Wait blocks until the execution is done or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the run error, ErrCanceled for cancelled executions, or nil.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// DoneCh is closed once Done reports true.
func (f *Future) DoneCh() <-chan struct{} { return f.done }

func (f *Future) start(cancel context.CancelFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != futurePending {
		return false
	}
	f.state = futureRunning
	f.cancelRun = cancel
	return true
}

func (f *Future) finish(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != futureRunning {
		return
	}
	f.state = futureFinished
	f.err = err
	f.cancelRun = nil
	close(f.done)
}
