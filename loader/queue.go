package loader

import "sync/atomic"

// workQueue is a bounded FIFO with task accounting: put marks an item
// outstanding and taskDone acknowledges it, so the consumer can tell an
// empty queue apart from in-flight work that has not finished yet.
type workQueue[T any] struct {
	ch          chan T
	outstanding atomic.Int64
}

func newWorkQueue[T any](capacity int) *workQueue[T] {
	return &workQueue[T]{ch: make(chan T, capacity)}
}

// put enqueues v, blocking while the queue is full.
func (q *workQueue[T]) put(v T) {
	q.outstanding.Add(1)
	q.ch <- v
}

// get dequeues, blocking while the queue is empty.
func (q *workQueue[T]) get() T {
	return <-q.ch
}

// tryPut enqueues without blocking, reporting whether there was room.
func (q *workQueue[T]) tryPut(v T) bool {
	select {
	case q.ch <- v:
		q.outstanding.Add(1)
		return true
	default:
		return false
	}
}

// tryGet dequeues without blocking.
func (q *workQueue[T]) tryGet() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// taskDone acknowledges one previously dequeued item.
func (q *workQueue[T]) taskDone() {
	q.outstanding.Add(-1)
}

// pending returns the number of items put but not yet acknowledged,
// counting both queued and in-flight work.
func (q *workQueue[T]) pending() int64 {
	return q.outstanding.Load()
}

// drain discards and acknowledges everything currently queued, returning the
// number of items dropped. In-flight items are not waited for.
func (q *workQueue[T]) drain() int {
	n := 0
	for {
		if _, ok := q.tryGet(); !ok {
			return n
		}
		q.taskDone()
		n++
	}
}
