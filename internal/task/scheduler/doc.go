// Package scheduler is the task manager layered on top of the priority
// worker pool.
//
// It owns the ready queue, the paused map and the cancelled history, and it
// implements the administrative protocol (submit, reprioritize, pause,
// resume, cancel, reorder, expire, query) under a single mutex. Changing the
// ordering of a queued task never mutates it in place: the old execution
// handle is cancelled and a clone with the same uuid is submitted instead.
//
// The service also runs a small cron for housekeeping (expiry of finished
// entries) and for periodic jobs submitted through the same pool.
package scheduler
