package engine

import (
	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/Vampouille/georchestra/internal/task"
)

// entry is one queued execution. The ordering key is captured at enqueue
// time so that later metadata changes can never corrupt the heap.
type entry struct {
	task   task.Task
	future *Future

	priority task.Priority
	seq      uint64 // submission sequence carried by the task metadata
	order    uint64 // pool insertion order, breaks remaining ties
}

func compareEntries(a, b interface{}) int {
	ea, eb := a.(*entry), b.(*entry)
	switch {
	case ea.priority != eb.priority:
		if ea.priority < eb.priority {
			return -1
		}
		return 1
	case ea.seq != eb.seq:
		if ea.seq < eb.seq {
			return -1
		}
		return 1
	case ea.order < eb.order:
		return -1
	case ea.order > eb.order:
		return 1
	}
	return 0
}

// backlog is the priority-ordered queue of not yet started executions.
// It is not safe for concurrent use; the Service lock guards it.
type backlog struct {
	pq    *priorityqueue.Queue
	order uint64
}

func newBacklog() *backlog {
	return &backlog{pq: priorityqueue.NewWith(compareEntries)}
}

func (b *backlog) push(t task.Task, f *Future) *entry {
	b.order++
	md := t.Metadata()
	e := &entry{task: t, future: f, priority: md.Priority(), seq: md.Seq(), order: b.order}
	b.pq.Enqueue(e)
	return e
}

func (b *backlog) pop() (*entry, bool) {
	v, ok := b.pq.Dequeue()
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (b *backlog) len() int { return b.pq.Size() }

// filter keeps the entries for which keep returns true and returns the rest.
func (b *backlog) filter(keep func(*entry) bool) []*entry {
	if b.pq.Empty() {
		return nil
	}
	vals := b.pq.Values()
	var dropped []*entry
	kept := make([]*entry, 0, len(vals))
	for _, v := range vals {
		e := v.(*entry)
		if keep(e) {
			kept = append(kept, e)
		} else {
			dropped = append(dropped, e)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	b.pq.Clear()
	for _, e := range kept {
		b.pq.Enqueue(e)
	}
	return dropped
}

// remove drops the entry holding exactly this task instance.
func (b *backlog) remove(t task.Task) (*entry, bool) {
	found := false
	dropped := b.filter(func(e *entry) bool {
		if !found && e.task == t {
			found = true
			return false
		}
		return true
	})
	if len(dropped) == 0 {
		return nil, false
	}
	return dropped[0], true
}

// purge drops entries whose future is already done or cancelled.
func (b *backlog) purge() int {
	return len(b.filter(func(e *entry) bool { return !e.future.Done() }))
}

func (b *backlog) drain() []*entry {
	out := make([]*entry, 0, b.pq.Size())
	for {
		e, ok := b.pop()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}
