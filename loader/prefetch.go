package loader

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// groupMsg travels through the index-group queue. A stop message tells
// exactly one worker to exit; each worker consumes exactly one.
type groupMsg struct {
	stop  bool
	group IndexGroup
}

// fetchResult travels through the result queue: either an assembled batch or
// a captured failure. Errors cross the worker boundary as values, never as
// panics.
type fetchResult struct {
	batch *Batch
	err   error
}

// prefetchEngine hides fetch and transform latency behind a pool of workers
// feeding a bounded result queue. Workers pull index groups, assemble
// batches and push results; the consumer polls results, refilling the group
// queue one-for-one. The two queues are the only shared mutable state, and
// the scheduler is touched exclusively from the consumer side.
type prefetchEngine struct {
	sched    *batchScheduler
	assemble func(IndexGroup) (*Batch, error)

	groups  *workQueue[groupMsg]
	results *workQueue[fetchResult]

	workers  int
	live     atomic.Int64
	wg       sync.WaitGroup
	waitTime time.Duration

	shuffleEachEpoch bool
	infinite         bool
	finished         bool
}

func newPrefetchEngine(sched *batchScheduler, assemble func(IndexGroup) (*Batch, error),
	workers, queueSize int, waitTime time.Duration, shuffleEachEpoch, infinite bool) *prefetchEngine {

	e := &prefetchEngine{
		sched:            sched,
		assemble:         assemble,
		groups:           newWorkQueue[groupMsg](queueSize),
		results:          newWorkQueue[fetchResult](queueSize),
		workers:          workers,
		waitTime:         waitTime,
		shuffleEachEpoch: shuffleEachEpoch,
		infinite:         infinite,
	}
	e.fill()
	e.live.Store(int64(workers))
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// fill primes the index-group queue with up to its capacity of groups,
// stopping early when the epoch is shorter than the queue.
func (e *prefetchEngine) fill() {
	for i := 0; i < cap(e.groups.ch); i++ {
		g, ok := e.sched.next()
		if !ok {
			break
		}
		e.groups.put(groupMsg{group: g})
	}
}

// refillOne feeds the next group of the epoch into the queue, if any remain.
func (e *prefetchEngine) refillOne() {
	if g, ok := e.sched.next(); ok {
		e.groups.put(groupMsg{group: g})
	}
}

func (e *prefetchEngine) worker() {
	defer e.wg.Done()
	defer e.live.Add(-1)
	for {
		msg := e.groups.get()
		if msg.stop {
			e.groups.taskDone()
			return
		}
		batch, err := e.assembleSafely(msg.group)
		e.results.put(fetchResult{batch: batch, err: err})
		e.groups.taskDone()
	}
}

// assembleSafely converts panics in the fetch/transform path into fatal
// errors with a stack, so a crashing worker surfaces in the consumer instead
// of killing the process from a goroutine.
func (e *prefetchEngine) assembleSafely(g IndexGroup) (batch *Batch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("prefetch worker panic: %v", r)
		}
	}()
	return e.assemble(g)
}

// step returns the next assembled batch. Recoverable fetch failures are
// logged and skipped. At the end of an epoch the scheduler is rebuilt and
// the queue refilled; a non-infinite engine then reports io.EOF. When every
// worker has died, step fails with ErrAllWorkersDead rather than hanging.
func (e *prefetchEngine) step() (*Batch, error) {
	for {
		if e.live.Load() == 0 {
			return nil, ErrAllWorkersDead
		}
		res, ok := e.results.tryGet()
		if !ok && e.groups.pending() == 0 {
			// Workers push their result before acknowledging the group, so
			// with no outstanding work any remaining batch is already in the
			// result queue; re-check once before declaring the epoch over.
			if res, ok = e.results.tryGet(); !ok {
				e.sched.rebuildEpoch(e.shuffleEachEpoch)
				e.fill()
				if !e.infinite {
					return nil, io.EOF
				}
				continue
			}
		}
		if !ok {
			time.Sleep(e.waitTime)
			continue
		}
		e.results.taskDone()
		if res.err != nil {
			if IsRecoverableFetch(res.err) {
				klog.Warningf("loader: sample missing or corrupt, skipping minibatch: %v", res.err)
				continue
			}
			return nil, res.err
		}
		e.refillOne()
		return res.batch, nil
	}
}

// reset drains both queues, waits until no work is in flight, rebuilds the
// epoch through the supplied callback and primes the queue again. Used when
// parameters changed and workers must not race the rebuild.
func (e *prefetchEngine) reset(rebuild func()) {
	for {
		e.groups.drain()
		if e.groups.pending() == 0 {
			break
		}
		// Workers are mid-assembly; keep the result queue moving so they
		// cannot block on a full queue.
		e.results.drain()
		time.Sleep(e.waitTime)
	}
	e.results.drain()
	rebuild()
	e.fill()
}

// finish stops the pool: one stop message per worker, then waits for every
// worker to exit. Safe to call once at teardown; subsequent calls are no-ops.
func (e *prefetchEngine) finish() {
	if e.finished {
		return
	}
	e.finished = true
	sent := 0
	for sent < e.workers && e.live.Load() > 0 {
		if e.groups.tryPut(groupMsg{stop: true}) {
			sent++
			continue
		}
		// Queue full of unclaimed work; drain results so a worker blocked
		// on a full result queue can make room.
		e.results.drain()
		time.Sleep(e.waitTime)
	}
	for e.live.Load() > 0 {
		e.results.drain()
		time.Sleep(e.waitTime)
	}
	e.wg.Wait()
	e.groups.drain()
	e.results.drain()
}
