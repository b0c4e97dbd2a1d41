package scheduler

import (
	"sort"

	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/Vampouille/georchestra/internal/task"
)

// readyQueue holds WAITING tasks in execution order with an index by uuid.
//
// Tasks inside must not have their priority or seq changed; callers remove
// first and mutate after. Not safe for concurrent use.
type readyQueue struct {
	pq    *priorityqueue.Queue
	index map[string]task.Task
}

func newReadyQueue() *readyQueue {
	return &readyQueue{
		pq: priorityqueue.NewWith(func(a, b interface{}) int {
			return task.Compare(a.(task.Task), b.(task.Task))
		}),
		index: map[string]task.Task{},
	}
}

func (q *readyQueue) push(t task.Task) {
	q.pq.Enqueue(t)
	q.index[t.Metadata().UUID()] = t
}

func (q *readyQueue) get(uuid string) task.Task { return q.index[uuid] }

func (q *readyQueue) len() int { return len(q.index) }

// remove drops the task with this uuid and returns it.
func (q *readyQueue) remove(uuid string) (task.Task, bool) {
	t, ok := q.index[uuid]
	if !ok {
		return nil, false
	}
	delete(q.index, uuid)
	vals := q.pq.Values()
	q.pq.Clear()
	for _, v := range vals {
		if v.(task.Task) != t {
			q.pq.Enqueue(v)
		}
	}
	return t, true
}

// drain empties the queue and returns its tasks in execution order.
func (q *readyQueue) drain() []task.Task {
	out := make([]task.Task, 0, q.pq.Size())
	for {
		v, ok := q.pq.Dequeue()
		if !ok {
			break
		}
		out = append(out, v.(task.Task))
	}
	q.index = map[string]task.Task{}
	return out
}

// sorted returns the tasks in execution order without modifying the queue.
func (q *readyQueue) sorted() []task.Task {
	vals := q.pq.Values()
	out := make([]task.Task, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.(task.Task))
	}
	sort.Slice(out, func(i, j int) bool { return task.Less(out[i], out[j]) })
	return out
}
