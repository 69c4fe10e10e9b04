package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateDeallocateReuse(t *testing.T) {
	p := New(64, 2)

	b1, err := p.Allocate()
	require.NoError(t, err)
	assert.Len(t, b1.Data, 64)

	b2, err := p.Allocate()
	require.NoError(t, err)

	_, err = p.Allocate()
	assert.Error(t, err, "third allocation should fail at cap")

	b1.Release()
	b3, err := p.Allocate()
	require.NoError(t, err)
	assert.Same(t, b1, b3)

	b2.Release()
	b3.Release()
}

func TestStatsInvariant(t *testing.T) {
	p := New(16, 4)
	var blocks []*Block
	for i := 0; i < 4; i++ {
		b, err := p.Allocate()
		require.NoError(t, err)
		blocks = append(blocks, b)
	}

	stats := p.Stats()
	assert.Equal(t, 4, stats.Allocated)
	assert.Equal(t, 0, stats.Available)
	assert.LessOrEqual(t, stats.Allocated+stats.Available, stats.MaxBlocks)

	for _, b := range blocks {
		b.Release()
	}
	stats = p.Stats()
	assert.Equal(t, 0, stats.Allocated)
	assert.Equal(t, 4, stats.Available)
}
