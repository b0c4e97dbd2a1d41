package scheduler

import (
	"github.com/Vampouille/georchestra/internal/task"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// onStart moves the exact instance the pool picked up from ready to running.
// An instance that is no longer in ready was paused, cancelled or replaced
// by a clone in the meantime; its execution is already cancelled.
func (s *Service) onStart(t task.Task) {
	md := t.Metadata()
	uuid := md.UUID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.get(uuid) != t {
		s.log.Debug("stale start ignored", logx.String("uuid", uuid))
		return
	}
	s.ready.remove(uuid)
	md.SetRunning()
	s.running[uuid] = t
	s.publishCountsLocked()
}

// onFinish moves a running instance to the completed history. An instance
// cancelled while running has already left running and is skipped.
func (s *Service) onFinish(t task.Task, err error) {
	md := t.Metadata()
	uuid := md.UUID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[uuid] != t {
		return
	}
	delete(s.running, uuid)
	if h := md.Handle(); h != nil && h.Cancelled() {
		md.SetCancelled()
		s.cancelled = append(s.cancelled, t)
	} else {
		md.SetCompleted(err)
		s.completed = append(s.completed, t)
	}
	s.publishCountsLocked()
}

// claimStartedLocked moves an instance whose execution already started to
// running ahead of its start hook. t may already be out of ready. It
// reports whether t was claimed.
func (s *Service) claimStartedLocked(t task.Task) bool {
	r, ok := t.Metadata().Handle().(interface{ Running() bool })
	if !ok || !r.Running() {
		return false
	}
	uuid := t.Metadata().UUID()
	s.ready.remove(uuid)
	t.Metadata().SetRunning()
	s.running[uuid] = t
	return true
}
