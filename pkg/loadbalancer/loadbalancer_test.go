package loadbalancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyferris/pyferris/pkg/pferrors"
	"github.com/pyferris/pyferris/pkg/types"
)

func node(id string, load, capacity float64, status types.NodeStatus) *types.ClusterNode {
	return &types.ClusterNode{ID: id, Load: load, Capacity: capacity, Status: status}
}

func TestRoundRobinCyclesActiveNodes(t *testing.T) {
	nodes := []*types.ClusterNode{
		node("a", 0, 1, types.NodeActive),
		node("b", 0, 1, types.NodeActive),
		node("c", 0, 1, types.NodeActive),
	}
	p := NewRoundRobin()
	var order []string
	for i := 0; i < 6; i++ {
		n, err := p.Select(nodes, nil)
		require.NoError(t, err)
		order = append(order, n.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order)
}

func TestRoundRobinSkipsInactiveNodes(t *testing.T) {
	nodes := []*types.ClusterNode{
		node("a", 0, 1, types.NodeFailed),
		node("b", 0, 1, types.NodeActive),
	}
	p := NewRoundRobin()
	n, err := p.Select(nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", n.ID)
}

func TestRoundRobinNoEligibleNode(t *testing.T) {
	nodes := []*types.ClusterNode{node("a", 0, 1, types.NodeFailed)}
	p := NewRoundRobin()
	_, err := p.Select(nodes, nil)
	require.Error(t, err)
	assert.True(t, pferrors.Is(err, pferrors.KindNoEligibleNode))
}

func TestLeastLoadedPicksSmallestLoad(t *testing.T) {
	nodes := []*types.ClusterNode{
		node("a", 0.8, 1, types.NodeActive),
		node("b", 0.2, 1, types.NodeActive),
		node("c", 0.5, 1, types.NodeActive),
	}
	p := NewLeastLoaded()
	n, err := p.Select(nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", n.ID)
}

func TestLeastLoadedBreaksTiesByID(t *testing.T) {
	nodes := []*types.ClusterNode{
		node("z", 0.5, 1, types.NodeActive),
		node("a", 0.5, 1, types.NodeActive),
	}
	p := NewLeastLoaded()
	n, err := p.Select(nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", n.ID)
}

func TestWeightedFavorsHigherWeight(t *testing.T) {
	nodes := []*types.ClusterNode{
		node("heavy", 0, 100, types.NodeActive),
		node("light", 0, 1, types.NodeActive),
	}
	p := NewWeighted()
	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		n, err := p.Select(nodes, nil)
		require.NoError(t, err)
		counts[n.ID]++
	}
	assert.Greater(t, counts["heavy"], counts["light"])
}

func TestCapabilityFiltersIneligibleNodes(t *testing.T) {
	small := node("small", 0.1, 1, types.NodeActive)
	small.Capabilities = types.Capabilities{CPUCores: 2, MemoryGB: 4}
	big := node("big", 0.1, 1, types.NodeActive)
	big.Capabilities = types.Capabilities{CPUCores: 16, MemoryGB: 64, Features: []string{"avx2"}}

	p := NewCapability()
	req := &types.ResourceRequirement{CPUCores: 8, MemoryGB: 32, RequiredCaps: []string{"avx2"}}

	n, err := p.Select([]*types.ClusterNode{small, big}, req)
	require.NoError(t, err)
	assert.Equal(t, "big", n.ID)
}

func TestCapabilityFiltersOnGPUCount(t *testing.T) {
	noGPU := node("no-gpu", 0.1, 1, types.NodeActive)
	noGPU.Capabilities = types.Capabilities{CPUCores: 16, MemoryGB: 64}
	withGPU := node("with-gpu", 0.1, 1, types.NodeActive)
	withGPU.Capabilities = types.Capabilities{CPUCores: 16, MemoryGB: 64, NvidiaGPU: 2}

	p := NewCapability()
	req := &types.ResourceRequirement{CPUCores: 8, MemoryGB: 32, GPUs: 1}

	n, err := p.Select([]*types.ClusterNode{noGPU, withGPU}, req)
	require.NoError(t, err)
	assert.Equal(t, "with-gpu", n.ID)
}

func TestCapabilityNoEligibleNode(t *testing.T) {
	small := node("small", 0, 1, types.NodeActive)
	small.Capabilities = types.Capabilities{CPUCores: 1, MemoryGB: 1}

	p := NewCapability()
	req := &types.ResourceRequirement{CPUCores: 8, MemoryGB: 32}

	_, err := p.Select([]*types.ClusterNode{small}, req)
	require.Error(t, err)
	assert.True(t, pferrors.Is(err, pferrors.KindNoEligibleNode))
}
