package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/pyferris/pyferris/pkg/types"
)

// Tunables for adaptive scheduling. The exact up/down thresholds are not
// specified by spec.md section 9 ("Open questions"); these are the
// documented defaults DESIGN.md records.
const (
	ScaleUpThroughputDelta = 0.10 // grow if throughput improved by >=10%
)

// AdaptiveScheduler starts at MinWorkers and scales toward MaxWorkers as
// measured throughput improves and work remains queued. Execute dispatches
// a fixed batch, so there is no standing pool to shrink on an idle timer:
// growth is rate-limited via golang.org/x/time/rate (section 4.4), and
// shrinking back toward minWorkers happens implicitly as the shared work
// queue drains and the extra goroutines spawned by growth return.
type AdaptiveScheduler struct {
	minWorkers, maxWorkers int
	limiter                *rate.Limiter

	mu           sync.Mutex
	activeCount  int
}

// NewAdaptiveScheduler builds a scheduler that grows between minWorkers
// and maxWorkers, adjusting at most once per cooldown.
func NewAdaptiveScheduler(minWorkers, maxWorkers int, cooldown time.Duration) *AdaptiveScheduler {
	if minWorkers <= 0 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	return &AdaptiveScheduler{
		minWorkers:  minWorkers,
		maxWorkers:  maxWorkers,
		limiter:     rate.NewLimiter(rate.Every(cooldown), 1),
		activeCount: minWorkers,
	}
}

// ActiveWorkers reports how many workers the most recent Execute has
// started (minWorkers plus any growth). It is not decremented as workers
// exit after the queue drains.
func (s *AdaptiveScheduler) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCount
}

// Execute runs tasks against a work queue drained by a pool that grows
// toward maxWorkers while throughput is improving and shrinks back toward
// minWorkers once the queue goes idle.
func (s *AdaptiveScheduler) Execute(tasks []*types.Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))

	indices := make(chan int, len(tasks))
	for i := range tasks {
		indices <- i
	}
	close(indices)

	var completed atomic.Int64
	var liveWorkers atomic.Int64
	done := make(chan struct{})

	spawn := func() {
		liveWorkers.Add(1)
		go func() {
			defer liveWorkers.Add(-1)
			for i := range indices {
				outcomes[i] = runTask(tasks[i])
				completed.Add(1)
			}
		}()
	}

	s.mu.Lock()
	s.activeCount = s.minWorkers
	for i := 0; i < s.minWorkers; i++ {
		spawn()
	}
	s.mu.Unlock()

	var monitorWg sync.WaitGroup
	monitorWg.Add(1)
	go func() {
		defer monitorWg.Done()
		s.monitorAndScale(&completed, len(tasks), spawn, done)
	}()

	// Wait for all queued work to be claimed and finished.
	for int(completed.Load()) < len(tasks) && len(tasks) > 0 {
		time.Sleep(time.Millisecond)
	}
	close(done)
	monitorWg.Wait()

	return outcomes
}

// monitorAndScale measures completions-per-tick and grows the pool while
// throughput keeps improving and there is a queue to drain; it never
// shrinks below minWorkers (shrinking happens naturally: workers exit
// once the channel is drained).
func (s *AdaptiveScheduler) monitorAndScale(completed *atomic.Int64, total int, spawn func(), done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastCompleted int64
	var lastThroughput float64

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			now := completed.Load()
			throughput := float64(now - lastCompleted)
			lastCompleted = now

			if int(now) >= total {
				return
			}

			improving := lastThroughput == 0 || throughput >= lastThroughput*(1+ScaleUpThroughputDelta)
			lastThroughput = throughput

			s.mu.Lock()
			canGrow := s.activeCount < s.maxWorkers
			s.mu.Unlock()

			if improving && canGrow && s.limiter.Allow() {
				s.mu.Lock()
				s.activeCount++
				s.mu.Unlock()
				spawn()
			}
		}
	}
}

// Shutdown is a no-op: AdaptiveScheduler holds no background workers
// between Execute calls.
func (s *AdaptiveScheduler) Shutdown() {}
