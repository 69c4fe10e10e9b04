// Package vthread implements the virtual-thread executor from section
// 4.5: a bounded pool of platform threads cooperatively multiplexing an
// unbounded (capped) set of virtual tasks, with blocking tasks segregated
// onto a separate OS-thread pool so they cannot starve cooperative work.
package vthread

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pyferris/pyferris/pkg/pferrors"
)

// State is a VirtualTask's lifecycle state.
type State string

const (
	Runnable   State = "runnable"
	Running    State = "running"
	Terminated State = "terminated"
)

// VirtualTask is a cooperative unit of work scheduled over the bounded
// platform-thread pool.
type VirtualTask struct {
	ID         int64
	Priority   uint8
	IsBlocking bool
	Run        func() (any, error)

	state  atomic.Value // State
	result any
	err    error
	done   chan struct{}
	seq    int64
}

func newVirtualTask(id int64, seq int64, priority uint8, blocking bool, run func() (any, error)) *VirtualTask {
	t := &VirtualTask{ID: id, seq: seq, Priority: priority, IsBlocking: blocking, Run: run, done: make(chan struct{})}
	t.state.Store(Runnable)
	return t
}

func (t *VirtualTask) setState(s State) { t.state.Store(s) }

// State returns the task's current lifecycle state.
func (t *VirtualTask) State() State { return t.state.Load().(State) }

// runqueue is a per-platform-thread priority queue of runnable tasks
// (lower Priority value first, FIFO within a priority level).
type runqueue struct {
	mu    sync.Mutex
	heap  taskHeap
	cond  *sync.Cond
	closed bool
}

func newRunqueue() *runqueue {
	rq := &runqueue{}
	rq.cond = sync.NewCond(&rq.mu)
	return rq
}

func (rq *runqueue) push(t *VirtualTask) {
	rq.mu.Lock()
	heap.Push(&rq.heap, t)
	rq.mu.Unlock()
	rq.cond.Signal()
}

func (rq *runqueue) pop() (*VirtualTask, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	for rq.heap.Len() == 0 && !rq.closed {
		rq.cond.Wait()
	}
	if rq.heap.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&rq.heap).(*VirtualTask), true
}

// popWait blocks for at most d waiting for work, then gives up so the
// caller can re-check sibling runqueues and the injector. Used by idle
// platform workers instead of an unbounded pop so cross-queue stealing
// doesn't stall behind one empty local queue.
func (rq *runqueue) popWait(d time.Duration) (*VirtualTask, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.heap.Len() == 0 && !rq.closed {
		timer := time.AfterFunc(d, rq.cond.Broadcast)
		rq.cond.Wait()
		timer.Stop()
	}
	if rq.heap.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&rq.heap).(*VirtualTask), true
}

func (rq *runqueue) closedAndEmpty() bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.closed && rq.heap.Len() == 0
}

func (rq *runqueue) len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.heap.Len()
}

// localQueueOverflow bounds how deep a platform thread's local runqueue is
// allowed to get before new submissions spill to the shared injector,
// mirroring the local-run-queue-plus-global-overflow split described in
// section 4.5.
const localQueueOverflow = 8

func (rq *runqueue) close() {
	rq.mu.Lock()
	rq.closed = true
	rq.mu.Unlock()
	rq.cond.Broadcast()
}

type taskHeap []*VirtualTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*VirtualTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Stats reports executor-wide totals, per get_stats in section 4.5.
type Stats struct {
	Created         int64
	Active          int64
	Completed       int64
	PlatformThreads int
}

// Executor is the virtual-thread executor: non-blocking submissions are
// assigned round-robin to a platform thread's local runqueue, spilling to
// the shared injector once a local runqueue backs up past
// localQueueOverflow. An idle platform worker drains its own local queue
// first, then steals from siblings, then drains the injector. Blocking
// tasks are routed to a dedicated pool instead.
type Executor struct {
	maxVirtual  int64
	injector    *runqueue
	platform    []*runqueue
	blocking    chan *VirtualTask

	nextID atomic.Int64
	seq    atomic.Int64
	rrNext atomic.Int64

	created   atomic.Int64
	active    atomic.Int64
	completed atomic.Int64

	mu      sync.Mutex
	tasks   map[int64]*VirtualTask
	started bool
	stopped atomic.Bool

	wg sync.WaitGroup
}

// New builds an Executor with maxPlatformThreads cooperative threads and
// maxBlockingThreads dedicated blocking-task threads, capped at
// maxVirtualThreads total outstanding virtual tasks.
func New(maxVirtualThreads, maxPlatformThreads, maxBlockingThreads int) *Executor {
	if maxPlatformThreads <= 0 {
		maxPlatformThreads = 1
	}
	if maxBlockingThreads <= 0 {
		maxBlockingThreads = 1
	}
	if maxVirtualThreads <= 0 {
		maxVirtualThreads = 1_000_000
	}
	e := &Executor{
		maxVirtual: int64(maxVirtualThreads),
		injector:   newRunqueue(),
		platform:   make([]*runqueue, maxPlatformThreads),
		blocking:   make(chan *VirtualTask, maxBlockingThreads*4),
		tasks:      make(map[int64]*VirtualTask),
	}
	for i := range e.platform {
		e.platform[i] = newRunqueue()
	}
	for i := 0; i < maxBlockingThreads; i++ {
		e.wg.Add(1)
		go e.runBlockingWorker()
	}
	return e
}

// Start launches the cooperative platform-thread workers. Idempotent.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	for i := range e.platform {
		i := i
		e.wg.Add(1)
		go e.runPlatformWorker(i)
	}
}

// Submit enqueues a virtual task and returns its ID. Blocking tasks are
// routed to the dedicated blocking pool so they never occupy a
// cooperative platform thread. Non-blocking tasks are assigned round-robin
// to a platform thread's local runqueue; a platform worker with an empty
// local queue steals from its siblings and then from the global injector
// before idling. Fails with ShutdownError after Shutdown.
func (e *Executor) Submit(run func() (any, error), priority uint8, isBlocking bool) (int64, error) {
	if e.created.Load()-e.completed.Load() >= e.maxVirtual {
		return 0, fmt.Errorf("vthread: at capacity (%d virtual threads)", e.maxVirtual)
	}

	id := e.nextID.Add(1)
	seq := e.seq.Add(1)
	t := newVirtualTask(id, seq, priority, isBlocking, run)

	// Holding mu across the stopped check and the blocking-channel send
	// keeps this atomic with Shutdown's close(e.blocking), so a racing
	// Submit can never send on an already-closed channel.
	e.mu.Lock()
	if e.stopped.Load() {
		e.mu.Unlock()
		return 0, pferrors.New(pferrors.KindShutdown, "vthread.submit", fmt.Errorf("executor is shut down"))
	}
	e.tasks[id] = t
	e.created.Add(1)
	e.active.Add(1)
	if isBlocking {
		e.blocking <- t
		e.mu.Unlock()
	} else {
		e.mu.Unlock()
		target := int(uint64(e.rrNext.Add(1)) % uint64(len(e.platform)))
		if e.platform[target].len() >= localQueueOverflow {
			e.injector.push(t)
		} else {
			e.platform[target].push(t)
		}
	}
	return id, nil
}

// Join blocks until task id reaches Terminated, then returns its result
// or re-raises its captured error.
func (e *Executor) Join(id int64) (any, error) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vthread: unknown task %d", id)
	}
	<-t.done
	return t.result, t.err
}

// GetStats returns executor-wide totals.
func (e *Executor) GetStats() Stats {
	return Stats{
		Created:         e.created.Load(),
		Active:          e.active.Load(),
		Completed:       e.completed.Load(),
		PlatformThreads: len(e.platform),
	}
}

// Shutdown stops accepting new submissions and closes worker runqueues
// once drained.
func (e *Executor) Shutdown() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	close(e.blocking)
	e.mu.Unlock()
	e.injector.close()
	for _, rq := range e.platform {
		rq.close()
	}
	e.wg.Wait()
}

func (e *Executor) finish(t *VirtualTask, result any, err error) {
	t.result = result
	t.err = err
	t.setState(Terminated)
	e.active.Add(-1)
	e.completed.Add(1)
	close(t.done)
}

func (e *Executor) runTask(t *VirtualTask) {
	t.setState(Running)
	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("vthread task panic: %v", r)
			}
		}()
		return t.Run()
	}()
	e.finish(t, result, err)
}

func (e *Executor) runPlatformWorker(id int) {
	defer e.wg.Done()
	local := e.platform[id]
	const maxBackoff = 50 * time.Millisecond
	backoff := time.Millisecond
	for {
		// Highest-priority local work first; steal from a sibling's
		// local runqueue next, then fall back to the global injection
		// queue once every local runqueue is empty.
		if t, ok := tryPop(local); ok {
			e.runTask(t)
			backoff = time.Millisecond
			continue
		}
		if t, ok := e.stealFromPeers(id); ok {
			e.runTask(t)
			backoff = time.Millisecond
			continue
		}
		if t, ok := tryPop(e.injector); ok {
			e.runTask(t)
			backoff = time.Millisecond
			continue
		}
		if e.allQueuesClosedAndEmpty() {
			return
		}
		if t, ok := local.popWait(backoff); ok {
			e.runTask(t)
			backoff = time.Millisecond
			continue
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// stealFromPeers scans every other platform thread's local runqueue for
// runnable work, giving an idle worker something to do while a sibling's
// queue is backed up instead of blocking on its own empty queue.
func (e *Executor) stealFromPeers(id int) (*VirtualTask, bool) {
	for i, rq := range e.platform {
		if i == id {
			continue
		}
		if t, ok := tryPop(rq); ok {
			return t, true
		}
	}
	return nil, false
}

func (e *Executor) allQueuesClosedAndEmpty() bool {
	if !e.injector.closedAndEmpty() {
		return false
	}
	for _, rq := range e.platform {
		if !rq.closedAndEmpty() {
			return false
		}
	}
	return true
}

// tryPop pops without blocking when the runqueue is empty.
func tryPop(rq *runqueue) (*VirtualTask, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.heap.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&rq.heap).(*VirtualTask), true
}

func (e *Executor) runBlockingWorker() {
	defer e.wg.Done()
	for t := range e.blocking {
		e.runTask(t)
	}
}
