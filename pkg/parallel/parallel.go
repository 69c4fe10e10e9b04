// Package parallel implements the parallel operations engine from
// section 4.2: map/filter/reduce/starmap over adaptively-chunked input,
// executed across a worker pool with order preserved.
package parallel

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pyferris/pyferris/pkg/pferrors"
)

// Engine runs map/filter/reduce/starmap over a configurable number of
// workers, with adaptive chunking and a bounded results cache.
type Engine struct {
	Workers   int
	ChunkSize int // 0 = auto per chunkSizeFor

	mu         sync.Mutex
	chunkCache map[cacheKey]int
	order      []cacheKey // FIFO eviction order, bounded at 100 entries
}

type cacheKey struct {
	n      int
	opKind string
}

// resultsCacheCap bounds the (n, op_kind) -> chunk-size memo per section
// 4.2 ("bounded cache of ~100 entries to avoid unbounded growth").
const resultsCacheCap = 100

// New builds an Engine. workers <= 0 defaults to runtime.NumCPU().
func New(workers, chunkSize int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		Workers:    workers,
		ChunkSize:  chunkSize,
		chunkCache: make(map[cacheKey]int),
	}
}

// chunkSizeFor implements section 4.2's adaptive chunking formula.
func (e *Engine) chunkSizeFor(n int) int {
	if e.ChunkSize > 0 {
		return e.ChunkSize
	}
	w := e.Workers
	if w < 1 {
		w = 1
	}
	switch {
	case n < 1000:
		return max(1, n/w)
	case n < 10_000:
		return max(100, n/(2*w))
	default:
		return max(500, n/(4*w))
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// chunkRange is a contiguous [start, end) index range of the input.
type chunkRange struct{ start, end int }

func chunksFor(n, size int) []chunkRange {
	if size <= 0 {
		size = n
	}
	var chunks []chunkRange
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, chunkRange{start, end})
	}
	return chunks
}

// runChunked partitions [0, n) into chunks and calls processChunk for
// each, collecting per-chunk results into a slice ordered by chunk index.
// On a ResourceExhausted-kind failure with a chunk size above the floor,
// the chunk size is halved once and the whole operation retried before
// surfacing the error, per section 4.2's failure recovery rule.
func runChunked[R any](e *Engine, n int, opKind string, processChunk func(chunkRange) (R, error)) ([]R, error) {
	size := e.memoizedChunkSize(n, opKind)
	results, err := attemptChunked(e, n, size, processChunk)
	if err != nil && pferrors.Is(err, pferrors.KindResourceExhausted) && size > 1 {
		results, err = attemptChunked(e, n, size/2, processChunk)
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// memoizedChunkSize returns the chunk size for (n, opKind), computing and
// caching it on first use (bounded, FIFO-evicted per resultsCacheCap).
func (e *Engine) memoizedChunkSize(n int, opKind string) int {
	key := cacheKey{n, opKind}

	e.mu.Lock()
	if size, ok := e.chunkCache[key]; ok {
		e.mu.Unlock()
		return size
	}
	e.mu.Unlock()

	size := e.chunkSizeFor(n)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.chunkCache[key]; !exists {
		e.order = append(e.order, key)
		if len(e.order) > resultsCacheCap {
			oldest := e.order[0]
			e.order = e.order[1:]
			delete(e.chunkCache, oldest)
		}
	}
	e.chunkCache[key] = size
	return size
}

func attemptChunked[R any](e *Engine, n, size int, processChunk func(chunkRange) (R, error)) ([]R, error) {
	chunks := chunksFor(n, size)
	results := make([]R, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.Workers)
	for i, c := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c chunkRange) {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := processChunk(c)
			results[i] = r
			errs[i] = err
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Map applies f to every element of xs, preserving order: result[i] ==
// f(xs[i]).
func Map[T, R any](e *Engine, f func(T) (R, error), xs []T) ([]R, error) {
	n := len(xs)
	chunkResults, err := runChunked(e, n, "map", func(c chunkRange) ([]R, error) {
		out := make([]R, c.end-c.start)
		for i := c.start; i < c.end; i++ {
			r, err := f(xs[i])
			if err != nil {
				return nil, fmt.Errorf("parallel map at index %d: %w", i, err)
			}
			out[i-c.start] = r
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, n)
	for _, cr := range chunkResults {
		out = append(out, cr...)
	}
	return out, nil
}

// Filter returns the subsequence of xs for which p is true, in original
// order.
func Filter[T any](e *Engine, p func(T) (bool, error), xs []T) ([]T, error) {
	n := len(xs)
	chunkResults, err := runChunked(e, n, "filter", func(c chunkRange) ([]T, error) {
		var out []T
		for i := c.start; i < c.end; i++ {
			ok, err := p(xs[i])
			if err != nil {
				return nil, fmt.Errorf("parallel filter at index %d: %w", i, err)
			}
			if ok {
				out = append(out, xs[i])
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for _, cr := range chunkResults {
		out = append(out, cr...)
	}
	return out, nil
}

// StarMap applies f to each tuple in args, preserving order.
func StarMap[T, R any](e *Engine, f func([]T) (R, error), args [][]T) ([]R, error) {
	n := len(args)
	chunkResults, err := runChunked(e, n, "starmap", func(c chunkRange) ([]R, error) {
		out := make([]R, c.end-c.start)
		for i := c.start; i < c.end; i++ {
			r, err := f(args[i])
			if err != nil {
				return nil, fmt.Errorf("parallel starmap at index %d: %w", i, err)
			}
			out[i-c.start] = r
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, n)
	for _, cr := range chunkResults {
		out = append(out, cr...)
	}
	return out, nil
}

// Reduce combines xs with op, which must be associative. Each chunk is
// reduced locally — init seeds only the first chunk — then the
// per-chunk results are combined left-to-right in chunk order, per
// section 4.2 and the Open Question resolution in DESIGN.md.
func Reduce[T any](e *Engine, op func(T, T) (T, error), xs []T, init *T) (T, error) {
	var zero T
	n := len(xs)
	if n == 0 {
		if init != nil {
			return *init, nil
		}
		return zero, fmt.Errorf("parallel reduce: empty input with no initializer")
	}

	size := e.chunkSizeFor(n)
	chunks := chunksFor(n, size)

	localReduce := func(c chunkRange, seed *T) (T, error) {
		var acc T
		start := c.start
		if seed != nil {
			acc = *seed
		} else {
			acc = xs[start]
			start++
		}
		for i := start; i < c.end; i++ {
			var err error
			acc, err = op(acc, xs[i])
			if err != nil {
				return zero, fmt.Errorf("parallel reduce at index %d: %w", i, err)
			}
		}
		return acc, nil
	}

	results := make([]T, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.Workers)
	for i, c := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c chunkRange) {
			defer wg.Done()
			defer func() { <-sem }()
			var seed *T
			if i == 0 {
				seed = init
			}
			r, err := localReduce(c, seed)
			results[i] = r
			errs[i] = err
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return zero, err
		}
	}

	acc := results[0]
	for i := 1; i < len(results); i++ {
		var err error
		acc, err = op(acc, results[i])
		if err != nil {
			return zero, fmt.Errorf("parallel reduce combining chunk %d: %w", i, err)
		}
	}
	return acc, nil
}

