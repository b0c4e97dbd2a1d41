package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Vampouille/georchestra/internal/eventbus"
	"github.com/Vampouille/georchestra/internal/task"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

func (s *Service) worker(ctx context.Context, name string) {
	s.mu.Lock()
	idleTimeout := s.cfg.IdleTimeout
	wake := s.wake
	s.mu.Unlock()

	s.log.Debug("worker started", logx.String("worker", name))
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		if e, ok := s.next(); ok {
			s.execute(ctx, name, e)
			s.mu.Lock()
			s.busy--
			s.publishPoolLocked()
			s.mu.Unlock()
			continue
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(idleTimeout)

		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.live--
			s.publishPoolLocked()
			s.mu.Unlock()
			return
		case <-wake:
		case <-idle.C:
			if s.retire() {
				s.log.Debug("worker retired", logx.String("worker", name))
				return
			}
		}
	}
}

// next pops the highest priority entry that was not cancelled while queued.
func (s *Service) next() (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, false
	}
	for {
		e, ok := s.queue.pop()
		if !ok {
			return nil, false
		}
		if e.future.Done() {
			continue
		}
		s.busy++
		s.publishPoolLocked()
		return e, true
	}
}

// retire reports whether the calling idle worker may exit. The backlog is
// re-checked under the lock so a concurrent Submit never loses its worker.
func (s *Service) retire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live <= s.cfg.MinWorkers || s.queue.len() > 0 {
		return false
	}
	s.live--
	s.publishPoolLocked()
	return true
}

func (s *Service) execute(ctx context.Context, worker string, e *entry) {
	t, f := e.task, e.future
	md := t.Metadata()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !f.start(cancel) {
		// cancelled between dequeue and start
		return
	}

	start := time.Now()
	queueDelay := start.Sub(f.enqueuedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}
	ev := TaskEvent{
		UUID:       md.UUID(),
		Name:       md.Name(),
		Priority:   md.Priority().String(),
		Worker:     worker,
		Started:    start,
		QueueDelay: queueDelay,
	}

	s.mu.Lock()
	hooks := s.hooks
	s.mu.Unlock()
	if hooks.OnStart != nil {
		hooks.OnStart(t)
	}
	s.log.Debug("task.started", logx.String("task", ev.Name), logx.String("uuid", ev.UUID), logx.String("worker", worker), logx.Duration("queue_delay", queueDelay))
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, Time: start, Data: ev})

	err := s.run(runCtx, t)
	f.finish(err)

	ev.Duration = time.Since(start)
	outcome := OutcomeCompleted
	evType := eventbus.TaskFinished
	switch {
	case f.Cancelled():
		outcome = OutcomeCancelled
		evType = eventbus.TaskCancelled
		s.cancelled.Add(1)
	case err != nil:
		outcome = OutcomeFailed
		evType = eventbus.TaskFailed
		s.failed.Add(1)
	default:
		s.completed.Add(1)
	}
	if err != nil {
		ev.Error = err.Error()
	}

	if hooks.OnFinish != nil {
		hooks.OnFinish(t, err)
	}

	switch outcome {
	case OutcomeFailed:
		s.log.Warn("task.failed", logx.String("task", ev.Name), logx.String("uuid", ev.UUID), logx.Err(err), logx.Duration("dur", ev.Duration))
	case OutcomeCancelled:
		s.log.Info("task.cancelled", logx.String("task", ev.Name), logx.String("uuid", ev.UUID), logx.Duration("dur", ev.Duration))
	default:
		if ev.Duration >= 750*time.Millisecond {
			s.log.Info("task.completed", logx.String("task", ev.Name), logx.String("uuid", ev.UUID), logx.Duration("dur", ev.Duration))
		} else {
			s.log.Debug("task.completed", logx.String("task", ev.Name), logx.String("uuid", ev.UUID), logx.Duration("dur", ev.Duration))
		}
	}
	s.bus.Publish(eventbus.Event{Type: evType, Time: time.Now(), Data: ev})
	s.metrics.Executed(outcome, ev.Priority, ev.Duration)
	s.record(HistoryItem{
		UUID:       ev.UUID,
		Name:       ev.Name,
		Priority:   md.Priority(),
		Worker:     worker,
		Started:    start,
		QueueDelay: queueDelay,
		Duration:   ev.Duration,
		Outcome:    outcome,
		Error:      ev.Error,
	})
}

// run guards against task panics so one bad task cannot kill its worker.
func (s *Service) run(ctx context.Context, t task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task.panic", logx.String("uuid", t.Metadata().UUID()), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}
