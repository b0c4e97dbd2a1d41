// Package task defines the unit of work handled by the worker pool and the
// manager: the Task contract, its execution metadata and the ordering used by
// every priority queue in the module.
//
// A logical task keeps its uuid for its whole life. Whenever its ordering key
// or its scheduling status must change while queued, the manager swaps the
// instance for a Clone carrying a fresh metadata record.
package task
