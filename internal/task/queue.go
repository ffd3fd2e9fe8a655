package task

import (
	"container/list"
	"sync"
)

// Queue is a FIFO of runnable tasks plus the Set tracking every task
// spawned onto it. It is the C4 "task queue" paired with its owning C3
// "task set".
type Queue struct {
	mu   sync.Mutex
	runq *list.List // of Runnable
	set  *Set
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue {
	return &Queue{runq: list.New(), set: NewSet()}
}

// schedule implements the scheduling callback passed to each task's
// header: append a runnable to the back of the FIFO.
func (q *Queue) schedule(r Runnable) {
	q.mu.Lock()
	q.runq.PushBack(r)
	q.mu.Unlock()
}

// Spawn allocates a task cell for future, registers it with the queue's
// task set, and immediately enqueues a runnable for it (ref count starts at
// 2: the join handle and the initial runnable; membership in the task set
// is not counted, see Set.bind).
//
// If the queue has been shut down, future is dropped immediately (never
// polled) and the returned handle resolves to ErrCancelled on first Poll.
func Spawn[T any](q *Queue, future PollFn[T]) *JoinHandle[T] {
	h, c := allocate(future, q.schedule, nil)
	if !q.set.bind(h) {
		c.shutdown()
		return newJoinHandle(h, c)
	}
	h.set(flagScheduled) // keep header.wake's "is a runnable already queued" check honest
	h.incref()           // second reference: the initial runnable
	q.schedule(Runnable{h: h})
	return newJoinHandle(h, c)
}

// Next pops and returns the next runnable task, if any.
func (q *Queue) Next() (Runnable, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.runq.Front()
	if front == nil {
		return Runnable{}, false
	}
	q.runq.Remove(front)
	return front.Value.(Runnable), true
}

// Runnable returns the number of runnables currently queued.
func (q *Queue) Runnable() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runq.Len()
}

// Shutdown cancels every task registered in the queue's set and empties
// the run queue. New spawns after Shutdown return immediately-cancelled
// handles.
func (q *Queue) Shutdown() {
	q.set.Shutdown()
	q.mu.Lock()
	q.runq.Init()
	q.mu.Unlock()
}

// Set returns the queue's underlying task set, mainly for tests that want
// to assert on live-task counts.
func (q *Queue) Set() *Set { return q.set }
