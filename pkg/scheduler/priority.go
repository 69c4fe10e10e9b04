package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pyferris/pyferris/pkg/types"
)

// priorityItem is one entry in the priority runqueue: effective priority
// (lower = more urgent), FIFO sequence number for tie-breaking, and the
// task's index into the caller's slice.
type priorityItem struct {
	effective int
	seq       int
	index     int
	submitted time.Time
}

// priorityHeap is a container/heap of priorityItem, ordered by effective
// priority then FIFO sequence.
type priorityHeap []*priorityItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].effective != h[j].effective {
		return h[i].effective < h[j].effective
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)        { *h = append(*h, x.(*priorityItem)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityScheduler dispatches tasks by ascending priority (0 highest),
// FIFO within a priority level, with periodic aging to bound starvation
// of low-priority tasks.
type PriorityScheduler struct {
	workers       int
	agingInterval time.Duration
}

// NewPriorityScheduler builds a scheduler with the given worker count and
// aging interval (how often a still-queued task's effective priority is
// decremented by one).
func NewPriorityScheduler(workers int, agingInterval time.Duration) *PriorityScheduler {
	if workers <= 0 {
		workers = 1
	}
	if agingInterval <= 0 {
		agingInterval = 2 * time.Second
	}
	return &PriorityScheduler{workers: workers, agingInterval: agingInterval}
}

// Execute runs tasks to completion, highest-priority-first with FIFO
// tie-breaking, aging low-priority tasks while they wait.
func (s *PriorityScheduler) Execute(tasks []*types.Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))

	var mu sync.Mutex
	h := &priorityHeap{}
	heap.Init(h)
	for i, t := range tasks {
		heap.Push(h, &priorityItem{
			effective: int(t.Priority),
			seq:       i,
			index:     i,
			submitted: time.Now(),
		})
	}

	stopAging := make(chan struct{})
	var agingWg sync.WaitGroup
	agingWg.Add(1)
	go func() {
		defer agingWg.Done()
		ticker := time.NewTicker(s.agingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopAging:
				return
			case <-ticker.C:
				mu.Lock()
				for _, item := range *h {
					if item.effective > 0 {
						item.effective--
					}
				}
				heap.Init(h)
				mu.Unlock()
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				if h.Len() == 0 {
					mu.Unlock()
					return
				}
				item := heap.Pop(h).(*priorityItem)
				mu.Unlock()

				outcomes[item.index] = runTask(tasks[item.index])
			}
		}()
	}
	wg.Wait()
	close(stopAging)
	agingWg.Wait()

	return outcomes
}

// Shutdown is a no-op: PriorityScheduler holds no background workers
// between Execute calls.
func (s *PriorityScheduler) Shutdown() {}
