// Package executor implements the task executor from section 4.3: a
// fixed-size worker pool with submit/map/shutdown and per-task futures.
package executor

import (
	"fmt"
	"sync"

	"github.com/pyferris/pyferris/pkg/pferrors"
)

// Future resolves to a task's result or error once it reaches a terminal
// state. Result blocks until that happens.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Result blocks until the task is terminal and returns its outcome. A
// failing task's error is wrapped as pferrors.KindTaskFailure.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.result, f.err
}

// Executor owns a fixed-size worker pool and a submission queue.
type Executor struct {
	tasks chan func()

	mu       sync.RWMutex
	active   bool
	wg       sync.WaitGroup
	shutdown sync.Once
}

// New starts an Executor with the given number of workers.
func New(workers int, queueSize int) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	e := &Executor{
		tasks:  make(chan func(), queueSize),
		active: true,
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for task := range e.tasks {
		task()
	}
}

// IsActive reports whether Shutdown has not yet been called.
func (e *Executor) IsActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Submit enqueues f for execution and returns a Future for its result.
// One task's panic or error never aborts sibling tasks. Fails immediately
// with ShutdownError if the executor has been shut down.
func (e *Executor) Submit(f func() (any, error)) (*Future, error) {
	// The active check and the channel send must stay atomic with
	// Shutdown's close(e.tasks): holding the read lock across both keeps
	// Shutdown's write lock (which flips active and closes the channel)
	// from running in between, so a racing Submit can never send on a
	// closed channel.
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.active {
		return nil, pferrors.New(pferrors.KindShutdown, "submit", fmt.Errorf("executor is shut down"))
	}

	future := newFuture()
	e.tasks <- func() {
		result, err := runCaptured(f)
		if err != nil {
			err = pferrors.New(pferrors.KindTaskFailure, "submit", err)
		}
		future.complete(result, err)
	}
	return future, nil
}

// runCaptured converts a panicking callable into a TaskFailure-shaped
// error instead of crashing the worker goroutine.
func runCaptured(f func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

// Map applies f to each item, preserving input order, and blocks until
// every call completes.
func (e *Executor) Map(f func(any) (any, error), items []any) ([]any, error) {
	futures := make([]*Future, len(items))
	for i, item := range items {
		item := item
		fut, err := e.Submit(func() (any, error) { return f(item) })
		if err != nil {
			return nil, err
		}
		futures[i] = fut
	}

	out := make([]any, len(items))
	for i, fut := range futures {
		r, err := fut.Result()
		if err != nil {
			return nil, fmt.Errorf("executor map at index %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// Shutdown rejects new submissions; if wait is true it blocks until every
// outstanding task terminates. Idempotent.
func (e *Executor) Shutdown(wait bool) {
	e.shutdown.Do(func() {
		e.mu.Lock()
		e.active = false
		close(e.tasks)
		e.mu.Unlock()
	})
	if wait {
		e.wg.Wait()
	}
}
