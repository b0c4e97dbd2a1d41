package scheduler

import (
	"sort"

	"github.com/Vampouille/georchestra/internal/task"
)

// GetTaskQueue returns value snapshots of every tracked task: ready in
// execution order, then running, paused, cancelled and completed.
// Changing the returned values never affects live state.
func (s *Service) GetTaskQueue() []task.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Info, 0, s.countsLocked().total())
	for _, t := range s.ready.sorted() {
		out = append(out, t.Metadata().Info())
	}
	out = appendBySeq(out, s.running)
	out = appendBySeq(out, s.paused)
	for _, t := range s.cancelled {
		out = append(out, t.Metadata().Info())
	}
	for _, t := range s.completed {
		out = append(out, t.Metadata().Info())
	}
	return out
}

func appendBySeq(out []task.Info, m map[string]task.Task) []task.Info {
	start := len(out)
	for _, t := range m {
		out = append(out, t.Metadata().Info())
	}
	part := out[start:]
	sort.Slice(part, func(i, j int) bool { return part[i].Seq < part[j].Seq })
	return out
}

func (s *Service) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked()
}

func (s *Service) countsLocked() Counts {
	return Counts{
		Ready:     s.ready.len(),
		Running:   len(s.running),
		Paused:    len(s.paused),
		Cancelled: len(s.cancelled),
		Completed: len(s.completed),
	}
}

func (c Counts) total() int {
	return c.Ready + c.Running + c.Paused + c.Cancelled + c.Completed
}

func (s *Service) publishCountsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetCollections(s.countsLocked().byName())
}

// Schedules lists periodic jobs with their next and previous trigger times.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduleInfo, 0, len(s.periodic))
	for _, d := range s.periodic {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Priority: d.priority, Fired: d.fired, Skipped: d.skipped}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out = append(out, it)
	}
	return out
}
