// Package loadbalancer implements the node selection policies from
// section 4.7: round-robin, least-loaded, capacity-weighted, and
// capability-filtered selection over a cluster's active nodes.
package loadbalancer

import (
	"math/rand"
	"sync"

	"github.com/pyferris/pyferris/pkg/pferrors"
	"github.com/pyferris/pyferris/pkg/types"
)

// Policy selects one node from candidates to run a task with the given
// resource requirement (nil if the task has none).
type Policy interface {
	Select(candidates []*types.ClusterNode, req *types.ResourceRequirement) (*types.ClusterNode, error)
}

func activeOnly(nodes []*types.ClusterNode) []*types.ClusterNode {
	out := make([]*types.ClusterNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Status == types.NodeActive {
			out = append(out, n)
		}
	}
	return out
}

// RoundRobin cycles through active nodes in the order they were last
// observed, ignoring load.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

// NewRoundRobin builds a RoundRobin policy.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

// Select returns the next active node in rotation.
func (p *RoundRobin) Select(candidates []*types.ClusterNode, _ *types.ResourceRequirement) (*types.ClusterNode, error) {
	active := activeOnly(candidates)
	if len(active) == 0 {
		return nil, pferrors.New(pferrors.KindNoEligibleNode, "loadbalancer.roundrobin", pferrors.ErrNoEligibleNode)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node := active[p.next%len(active)]
	p.next++
	return node, nil
}

// LeastLoaded picks the active node with the smallest Load, breaking
// ties by ID for determinism.
type LeastLoaded struct{}

// NewLeastLoaded builds a LeastLoaded policy.
func NewLeastLoaded() *LeastLoaded { return &LeastLoaded{} }

// Select returns the active node with the smallest reported load.
func (p *LeastLoaded) Select(candidates []*types.ClusterNode, _ *types.ResourceRequirement) (*types.ClusterNode, error) {
	active := activeOnly(candidates)
	if len(active) == 0 {
		return nil, pferrors.New(pferrors.KindNoEligibleNode, "loadbalancer.leastloaded", pferrors.ErrNoEligibleNode)
	}
	return pickLeastLoaded(active), nil
}

func pickLeastLoaded(nodes []*types.ClusterNode) *types.ClusterNode {
	best := nodes[0]
	for _, n := range nodes[1:] {
		if n.Load < best.Load || (n.Load == best.Load && n.ID < best.ID) {
			best = n
		}
	}
	return best
}

// Weighted selects among active nodes with probability proportional to
// capacity / (1 + load).
type Weighted struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeighted builds a Weighted policy with its own random source.
func NewWeighted() *Weighted {
	return &Weighted{rng: rand.New(rand.NewSource(1))}
}

// Select draws a node with probability proportional to its weight.
func (p *Weighted) Select(candidates []*types.ClusterNode, _ *types.ResourceRequirement) (*types.ClusterNode, error) {
	active := activeOnly(candidates)
	if len(active) == 0 {
		return nil, pferrors.New(pferrors.KindNoEligibleNode, "loadbalancer.weighted", pferrors.ErrNoEligibleNode)
	}

	weights := make([]float64, len(active))
	total := 0.0
	for i, n := range active {
		w := n.Capacity / (1 + n.Load)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if total <= 0 {
		return active[p.rng.Intn(len(active))], nil
	}

	target := p.rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if target <= cumulative {
			return active[i], nil
		}
	}
	return active[len(active)-1], nil
}

// Capability filters candidates to those meeting req, then applies
// LeastLoaded among the survivors.
type Capability struct {
	fallback *LeastLoaded
}

// NewCapability builds a Capability policy.
func NewCapability() *Capability {
	return &Capability{fallback: NewLeastLoaded()}
}

// Select filters to nodes meeting req's cpu/memory/feature requirements,
// then picks the least-loaded survivor.
func (p *Capability) Select(candidates []*types.ClusterNode, req *types.ResourceRequirement) (*types.ClusterNode, error) {
	active := activeOnly(candidates)
	if req == nil {
		return p.fallback.Select(active, req)
	}

	eligible := make([]*types.ClusterNode, 0, len(active))
	for _, n := range active {
		if n.MeetsRequirement(req) {
			eligible = append(eligible, n)
		}
	}
	if len(eligible) == 0 {
		return nil, pferrors.New(pferrors.KindNoEligibleNode, "loadbalancer.capability", pferrors.ErrNoEligibleNode)
	}
	return pickLeastLoaded(eligible), nil
}
