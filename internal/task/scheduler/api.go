package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Vampouille/georchestra/internal/eventbus"
	"github.com/Vampouille/georchestra/internal/task"
	"github.com/Vampouille/georchestra/internal/task/engine"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

var (
	ErrDuplicateTask = errors.New("task uuid already live")
	// ErrTaskFinished rejects an instance the manager already holds as
	// COMPLETED or CANCELLED. Submit a Clone to run it again.
	ErrTaskFinished = errors.New("task instance already finished")
)

// Submit marks t WAITING, queues it and hands it to the pool. After a nil
// return FindTask(uuid) finds it until it starts, is paused away or is
// cancelled. If the pool rejects t nothing is recorded.
//
// At most one live instance exists per uuid. A uuid that is still live is
// refused, and so is an instance kept in the history.
func (s *Service) Submit(t task.Task) error {
	if t == nil || t.Metadata() == nil {
		return engine.ErrNilTask
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	uuid := t.Metadata().UUID()
	if s.liveLocked(uuid) {
		return fmt.Errorf("submit %s: %w", uuid, ErrDuplicateTask)
	}
	if s.historyHoldsLocked(t) {
		return fmt.Errorf("submit %s: %w", uuid, ErrTaskFinished)
	}
	if err := s.submitLocked(t); err != nil {
		return err
	}
	s.publishCountsLocked()
	return nil
}

// historyHoldsLocked reports whether that exact instance sits in completed
// or cancelled.
func (s *Service) historyHoldsLocked(t task.Task) bool {
	for _, list := range [][]task.Task{s.completed, s.cancelled} {
		for _, h := range list {
			if h == t {
				return true
			}
		}
	}
	return false
}

func (s *Service) submitLocked(t task.Task) error {
	md := t.Metadata()
	s.seq++
	md.SetSeq(s.seq)
	md.SetWaiting()
	s.ready.push(t)

	f, err := s.pool.Submit(t)
	if err != nil {
		s.ready.remove(md.UUID())
		return fmt.Errorf("submit %s: %w", md.UUID(), err)
	}
	md.SetHandle(f)
	s.publishLocked(eventbus.TaskSubmitted, t)
	s.log.Debug("task submitted", logx.String("uuid", md.UUID()), logx.String("name", md.Name()), logx.String("priority", md.Priority().String()))
	return nil
}

// UpdatePriority changes the priority of a WAITING or PAUSED task.
//
// A waiting task is replaced: its execution is cancelled and a clone with the
// new priority is submitted. A paused task is updated in place. Anything
// else is ignored.
func (s *Service) UpdatePriority(uuid string, p task.Priority) {
	if !p.Valid() {
		s.log.Warn("invalid priority ignored", logx.String("uuid", uuid), logx.Int("priority", int(p)))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishCountsLocked()

	if t := s.ready.get(uuid); t != nil && t.Metadata().Live() && !s.claimStartedLocked(t) {
		s.ready.remove(uuid)
		t.Metadata().SetPriority(p)
		clone := t.Clone()
		s.retireLocked(t)
		s.pool.Purge()
		if err := s.submitLocked(clone); err != nil {
			s.dropLocked(clone, err)
			return
		}
		s.publishLocked(eventbus.TaskReprioritized, clone)
		return
	}
	if t, ok := s.paused[uuid]; ok {
		t.Metadata().SetPriority(p)
		s.publishLocked(eventbus.TaskReprioritized, t)
	}
}

// UpdateAllPriorities replaces the order of every WAITING task.
//
// Tasks listed in order are reset to MEDIUM and resubmitted exactly in list
// order. Waiting tasks missing from order are cancelled. Unknown uuids in
// order are ignored.
func (s *Service) UpdateAllPriorities(order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishCountsLocked()

	s.pool.Purge()

	pos := make(map[string]int, len(order))
	for i, uuid := range order {
		if _, dup := pos[uuid]; !dup {
			pos[uuid] = i
		}
	}

	var keep, drop []task.Task
	for _, t := range s.ready.drain() {
		if s.claimStartedLocked(t) {
			continue
		}
		if _, ok := pos[t.Metadata().UUID()]; ok {
			keep = append(keep, t)
		} else {
			drop = append(drop, t)
		}
	}
	sort.SliceStable(keep, func(i, j int) bool {
		return pos[keep[i].Metadata().UUID()] < pos[keep[j].Metadata().UUID()]
	})

	for _, t := range drop {
		s.cancelProcessLocked(t)
	}
	for _, t := range keep {
		clone := t.Clone()
		clone.Metadata().SetPriority(task.PriorityMedium)
		s.retireLocked(t)
		if err := s.submitLocked(clone); err != nil {
			s.dropLocked(clone, err)
		}
	}
	s.pool.Purge()

	s.bus.Publish(eventbus.Event{Type: eventbus.TasksReordered, Data: order})
	s.log.Info("tasks reordered", logx.Int("kept", len(keep)), logx.Int("cancelled", len(drop)))
}

// RemoveTask cancels a WAITING task. Paused tasks are not considered.
func (s *Service) RemoveTask(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ready.remove(uuid)
	if !ok {
		return
	}
	s.cancelProcessLocked(t)
	s.publishCountsLocked()
}

// UpdateStatus moves a task to CANCELLED, PAUSED or WAITING. RUNNING and
// COMPLETED cannot be requested. Only CANCELLED applies to a running task.
func (s *Service) UpdateStatus(uuid string, st task.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishCountsLocked()

	switch st {
	case task.StateCancelled:
		s.cancelLocked(uuid)
	case task.StatePaused:
		s.pauseLocked(uuid)
	case task.StateWaiting:
		s.resumeLocked(uuid)
	default:
		s.log.Warn("illegal target state ignored", logx.String("uuid", uuid), logx.String("state", st.String()))
	}
}

// FindTask returns the live WAITING or PAUSED instance, or nil.
func (s *Service) FindTask(uuid string) task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(uuid)
}

func (s *Service) findLocked(uuid string) task.Task {
	if t := s.ready.get(uuid); t != nil {
		return t
	}
	if t, ok := s.paused[uuid]; ok {
		return t
	}
	return nil
}

// CleanExpiredTasks drops COMPLETED and CANCELLED entries whose last state
// change is at least window old. It returns how many were dropped.
func (s *Service) CleanExpiredTasks(window time.Duration) int {
	now := task.NowFunc()
	expired := func(t task.Task) bool {
		return now.Sub(t.Metadata().StateChangeTime()) >= window
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	s.completed, n = prune(s.completed, expired)
	var m int
	s.cancelled, m = prune(s.cancelled, expired)
	if n+m == 0 {
		return 0
	}
	s.publishCountsLocked()
	s.bus.Publish(eventbus.Event{Type: eventbus.TasksExpired, Data: n + m})
	s.log.Debug("expired tasks cleaned", logx.Int("completed", n), logx.Int("cancelled", m), logx.Duration("window", window))
	return n + m
}

func prune(list []task.Task, drop func(task.Task) bool) ([]task.Task, int) {
	kept := list[:0]
	for _, t := range list {
		if !drop(t) {
			kept = append(kept, t)
		}
	}
	n := len(list) - len(kept)
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	return kept, n
}

// cancelLocked cancels a WAITING, PAUSED or RUNNING task and reports
// whether its execution handle took the cancellation. A running task has
// its context cancelled; it is recorded CANCELLED right away and its finish
// hook is then ignored.
func (s *Service) cancelLocked(uuid string) bool {
	if t, ok := s.ready.remove(uuid); ok {
		return s.cancelProcessLocked(t)
	}
	if t, ok := s.paused[uuid]; ok {
		delete(s.paused, uuid)
		return s.cancelProcessLocked(t)
	}
	if t, ok := s.running[uuid]; ok {
		delete(s.running, uuid)
		return s.cancelProcessLocked(t)
	}
	return false
}

// cancelProcessLocked marks t CANCELLED, records it and cancels its
// execution. t must already be out of ready, paused and running.
func (s *Service) cancelProcessLocked(t task.Task) bool {
	md := t.Metadata()
	md.SetCancelled()
	s.cancelled = append(s.cancelled, t)
	ok := false
	if h := md.Handle(); h != nil {
		ok = h.Cancel()
	}
	s.pool.Remove(t)
	s.publishLocked(eventbus.TaskCancelled, t)
	s.log.Debug("task cancelled", logx.String("uuid", md.UUID()), logx.Bool("handle_cancelled", ok))
	return ok
}

// pauseLocked replaces a WAITING task that has not started with a PAUSED
// clone. Started tasks cannot be paused.
func (s *Service) pauseLocked(uuid string) {
	t := s.ready.get(uuid)
	if t == nil || !t.Metadata().Live() || s.claimStartedLocked(t) {
		return
	}
	s.ready.remove(uuid)
	t.Metadata().SetPaused()
	clone := t.Clone()
	s.retireLocked(t)
	s.pool.Purge()
	s.paused[uuid] = clone
	s.publishLocked(eventbus.TaskPaused, clone)
}

// resumeLocked resubmits a PAUSED task.
func (s *Service) resumeLocked(uuid string) {
	t, ok := s.paused[uuid]
	if !ok {
		return
	}
	delete(s.paused, uuid)
	if err := s.submitLocked(t); err != nil {
		t.Metadata().SetPaused()
		s.paused[uuid] = t
		s.log.Error("resume failed, task stays paused", logx.String("uuid", uuid), logx.Err(err))
		return
	}
	s.publishLocked(eventbus.TaskResumed, t)
}

// retireLocked cancels the execution of an instance that is being replaced
// and takes it out of the pool backlog.
func (s *Service) retireLocked(t task.Task) {
	if h := t.Metadata().Handle(); h != nil {
		h.Cancel()
	}
	s.pool.Remove(t)
}

// dropLocked records a replacement clone the pool refused as CANCELLED so
// that no WAITING task is left outside the ready queue.
func (s *Service) dropLocked(t task.Task, err error) {
	t.Metadata().SetCancelled()
	s.cancelled = append(s.cancelled, t)
	s.log.Error("resubmit failed, task cancelled", logx.String("uuid", t.Metadata().UUID()), logx.Err(err))
}

func (s *Service) publishLocked(typ string, t task.Task) {
	s.bus.Publish(eventbus.Event{Type: typ, Data: t.Metadata().Info()})
}
