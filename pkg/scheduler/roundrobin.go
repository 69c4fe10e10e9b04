package scheduler

import (
	"sync"

	"github.com/pyferris/pyferris/pkg/types"
)

// RoundRobinScheduler assigns task i to worker i mod W.
type RoundRobinScheduler struct {
	workers int
}

// NewRoundRobinScheduler builds a scheduler with the given worker count.
func NewRoundRobinScheduler(workers int) *RoundRobinScheduler {
	if workers <= 0 {
		workers = 1
	}
	return &RoundRobinScheduler{workers: workers}
}

// Execute dispatches tasks across workers in round-robin order and
// returns outcomes in input order.
func (s *RoundRobinScheduler) Execute(tasks []*types.Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	buckets := make([][]int, s.workers)
	for i := range tasks {
		w := i % s.workers
		buckets[w] = append(buckets[w], i)
	}

	var wg sync.WaitGroup
	for _, indices := range buckets {
		if len(indices) == 0 {
			continue
		}
		indices := indices
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, i := range indices {
				outcomes[i] = runTask(tasks[i])
			}
		}()
	}
	wg.Wait()
	return outcomes
}

// Shutdown is a no-op: RoundRobinScheduler holds no background workers
// between Execute calls.
func (s *RoundRobinScheduler) Shutdown() {}
