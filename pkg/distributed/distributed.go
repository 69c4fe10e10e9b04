// Package distributed implements the distributed executor from section
// 4.8: it routes tasks to cluster nodes chosen by a load-balancer policy
// and runs them through a Dispatcher, with timeout waits and re-dispatch
// on node failure. It does not use a local executor; every task goes
// through the Dispatcher.
package distributed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pyferris/pyferris/pkg/loadbalancer"
	"github.com/pyferris/pyferris/pkg/pferrors"
	"github.com/pyferris/pyferris/pkg/types"
)

// Dispatcher runs a task's callable on the given node. Production wiring
// plugs in a real RPC/transport client; tests use a stub.
type Dispatcher interface {
	Dispatch(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error)
}

// NodeSource supplies the current candidate node set (typically
// cluster.Coordinator.Nodes).
type NodeSource func() []*types.ClusterNode

type dispatchState struct {
	done   chan struct{}
	result any
	err    error
}

// Executor routes tasks to cluster nodes and re-dispatches on failure,
// making at most maxRedispatch dispatch attempts per task in total before
// surfacing AllRetriesExhausted.
type Executor struct {
	nodes      NodeSource
	policy     loadbalancer.Policy
	dispatcher Dispatcher
	maxRedisp  int
	log        *slog.Logger

	mu    sync.Mutex
	tasks map[string]*dispatchState

	nextSeq atomic.Int64
}

// New builds a distributed Executor.
func New(nodes NodeSource, policy loadbalancer.Policy, dispatcher Dispatcher, maxRedispatch int, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if maxRedispatch <= 0 {
		maxRedispatch = 1
	}
	return &Executor{
		nodes:      nodes,
		policy:     policy,
		dispatcher: dispatcher,
		maxRedisp:  maxRedispatch,
		log:        log,
		tasks:      make(map[string]*dispatchState),
	}
}

// Submit selects a node for task and dispatches it asynchronously,
// returning the task's ID immediately.
func (e *Executor) Submit(task *types.Task, req *types.ResourceRequirement) (string, error) {
	state := &dispatchState{done: make(chan struct{})}
	e.mu.Lock()
	e.tasks[task.ID] = state
	e.mu.Unlock()

	go e.run(task, req, state)
	return task.ID, nil
}

func (e *Executor) run(task *types.Task, req *types.ResourceRequirement, state *dispatchState) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRedisp; attempt++ {
		node, err := e.policy.Select(e.nodes(), req)
		if err != nil {
			lastErr = err
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result, err := e.dispatcher.Dispatch(ctx, node, task)
		cancel()
		if err == nil {
			state.result = result
			close(state.done)
			return
		}

		lastErr = err
		e.log.Warn("distributed: dispatch failed, considering re-dispatch", "task_id", task.ID, "node", node.ID, "attempt", attempt, "error", err)
	}

	state.err = pferrors.New(pferrors.KindAllRetriesExhausted, "distributed.submit", lastErr).WithAttempts(e.maxRedisp)
	close(state.done)
}

// GetResult waits up to timeout for task id to reach a terminal state.
func (e *Executor) GetResult(id string, timeout time.Duration) (any, error) {
	e.mu.Lock()
	state, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("distributed: unknown task %s", id)
	}

	select {
	case <-state.done:
		return state.result, state.err
	case <-time.After(timeout):
		return nil, pferrors.New(pferrors.KindTimeout, "distributed.get_result", fmt.Errorf("timed out after %s", timeout))
	}
}

// WaitForAll waits up to timeout for every id in ids to reach a terminal
// state, returning results in the same order as ids.
func (e *Executor) WaitForAll(ids []string, timeout time.Duration) ([]any, error) {
	deadline := time.Now().Add(timeout)
	results := make([]any, len(ids))
	for i, id := range ids {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		result, err := e.GetResult(id, remaining)
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}
