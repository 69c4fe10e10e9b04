package distributed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyferris/pyferris/pkg/loadbalancer"
	"github.com/pyferris/pyferris/pkg/pferrors"
	"github.com/pyferris/pyferris/pkg/types"
)

type stubDispatcher struct {
	fn func(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error)
}

func (s *stubDispatcher) Dispatch(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error) {
	return s.fn(ctx, node, task)
}

func oneActiveNode() NodeSource {
	return func() []*types.ClusterNode {
		return []*types.ClusterNode{{ID: "n1", Status: types.NodeActive}}
	}
}

func TestSubmitAndGetResultSucceeds(t *testing.T) {
	disp := &stubDispatcher{fn: func(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error) {
		return "ok", nil
	}}
	e := New(oneActiveNode(), loadbalancer.NewRoundRobin(), disp, 3, nil)

	task := types.NewTask(func() (any, error) { return nil, nil })
	id, err := e.Submit(task, nil)
	require.NoError(t, err)

	result, err := e.GetResult(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestRedispatchOnFailureEventuallySucceeds(t *testing.T) {
	var calls atomic.Int64
	disp := &stubDispatcher{fn: func(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error) {
		n := calls.Add(1)
		if n < 3 {
			return nil, errors.New("node unreachable")
		}
		return "recovered", nil
	}}
	e := New(oneActiveNode(), loadbalancer.NewRoundRobin(), disp, 5, nil)

	task := types.NewTask(func() (any, error) { return nil, nil })
	id, err := e.Submit(task, nil)
	require.NoError(t, err)

	result, err := e.GetResult(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, int64(3), calls.Load())
}

func TestRedispatchExhaustionSurfacesAllRetriesExhausted(t *testing.T) {
	disp := &stubDispatcher{fn: func(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error) {
		return nil, errors.New("always down")
	}}
	e := New(oneActiveNode(), loadbalancer.NewRoundRobin(), disp, 3, nil)

	task := types.NewTask(func() (any, error) { return nil, nil })
	id, err := e.Submit(task, nil)
	require.NoError(t, err)

	_, err = e.GetResult(id, time.Second)
	require.Error(t, err)
	assert.True(t, pferrors.Is(err, pferrors.KindAllRetriesExhausted))
}

func TestGetResultTimesOut(t *testing.T) {
	disp := &stubDispatcher{fn: func(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	}}
	e := New(oneActiveNode(), loadbalancer.NewRoundRobin(), disp, 1, nil)

	task := types.NewTask(func() (any, error) { return nil, nil })
	id, err := e.Submit(task, nil)
	require.NoError(t, err)

	_, err = e.GetResult(id, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, pferrors.Is(err, pferrors.KindTimeout))
}

func TestWaitForAllReturnsOrderedResults(t *testing.T) {
	disp := &stubDispatcher{fn: func(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error) {
		return task.ID, nil
	}}
	e := New(oneActiveNode(), loadbalancer.NewRoundRobin(), disp, 1, nil)

	tasks := []*types.Task{types.NewTask(func() (any, error) { return nil, nil }), types.NewTask(func() (any, error) { return nil, nil })}
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		id, err := e.Submit(task, nil)
		require.NoError(t, err)
		ids[i] = id
	}

	results, err := e.WaitForAll(ids, time.Second)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0])
	assert.Equal(t, ids[1], results[1])
}

func TestNoEligibleNodeIsRetriedThenExhausted(t *testing.T) {
	empty := func() []*types.ClusterNode { return nil }
	disp := &stubDispatcher{fn: func(ctx context.Context, node *types.ClusterNode, task *types.Task) (any, error) {
		return nil, nil
	}}
	e := New(empty, loadbalancer.NewRoundRobin(), disp, 2, nil)

	task := types.NewTask(func() (any, error) { return nil, nil })
	id, err := e.Submit(task, nil)
	require.NoError(t, err)

	_, err = e.GetResult(id, time.Second)
	require.Error(t, err)
	assert.True(t, pferrors.Is(err, pferrors.KindAllRetriesExhausted))
}
