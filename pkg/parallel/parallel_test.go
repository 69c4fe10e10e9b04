package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyferris/pyferris/pkg/pferrors"
)

func TestMapEvenDoubling(t *testing.T) {
	e := New(4, 0)
	xs := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	out, err := Map(e, func(x int) (int, error) { return x * 2, nil }, xs)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}, out)
}

func TestMapPreservesLengthAndMapping(t *testing.T) {
	e := New(3, 0)
	xs := make([]int, 537)
	for i := range xs {
		xs[i] = i
	}

	out, err := Map(e, func(x int) (int, error) { return x + 1, nil }, xs)
	require.NoError(t, err)
	require.Len(t, out, len(xs))
	for i, v := range out {
		assert.Equal(t, xs[i]+1, v)
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	e := New(4, 0)
	xs := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	out, err := Filter(e, func(x int) (bool, error) { return x%2 == 0, nil }, xs)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6, 8, 10}, out)
}

func TestReduceAssociative(t *testing.T) {
	e := New(4, 10)
	xs := make([]int, 1000)
	sum := 0
	for i := range xs {
		xs[i] = i
		sum += i
	}

	result, err := Reduce(e, func(a, b int) (int, error) { return a + b, nil }, xs, nil)
	require.NoError(t, err)
	assert.Equal(t, sum, result)
}

func TestReduceWithInitializerSeedsOnlyFirstChunk(t *testing.T) {
	e := New(4, 2)
	xs := []int{1, 1, 1, 1}
	init := 100

	// sum = init + sum(xs) if init only seeds chunk 0
	result, err := Reduce(e, func(a, b int) (int, error) { return a + b, nil }, xs, &init)
	require.NoError(t, err)
	assert.Equal(t, 104, result)
}

func TestStarMap(t *testing.T) {
	e := New(2, 0)
	args := [][]int{{1, 2}, {3, 4}, {5, 6}}

	out, err := StarMap(e, func(a []int) (int, error) { return a[0] + a[1], nil }, args)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 11}, out)
}

func TestMapSurfacesCallableError(t *testing.T) {
	e := New(2, 0)
	xs := []int{1, 2, 3}
	boom := errors.New("boom")

	_, err := Map(e, func(x int) (int, error) {
		if x == 2 {
			return 0, boom
		}
		return x, nil
	}, xs)
	assert.ErrorIs(t, err, boom)
}

func TestResourceExhaustedHalvesChunkAndRetries(t *testing.T) {
	e := New(2, 4)
	xs := []int{0, 1, 2, 3, 4, 5, 6, 7}
	var tripped atomic.Bool

	out, err := Map(e, func(x int) (int, error) {
		// Exactly one call anywhere trips the OOM-class error, forcing
		// the engine to halve the chunk size and retry the whole
		// operation once; every call on the retried pass succeeds.
		if tripped.CompareAndSwap(false, true) {
			return 0, pferrors.New(pferrors.KindResourceExhausted, "map", errors.New("oom"))
		}
		return x, nil
	}, xs)
	require.NoError(t, err)
	assert.Equal(t, xs, out)
}

func TestAdaptiveChunkSizeFormula(t *testing.T) {
	e := New(4, 0)
	assert.Equal(t, 2, e.chunkSizeFor(10))     // n<1000: max(1, n/W)
	assert.Equal(t, 625, e.chunkSizeFor(5000)) // n<10000: max(100, n/(2W))
	assert.Equal(t, 3125, e.chunkSizeFor(50000)) // else: max(500, n/(4W))
}
