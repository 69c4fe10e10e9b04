// Package pool implements the fixed-size memory pool from section 4.1: a
// free list of equally-sized blocks guarded by a single lock, contention
// amortised by block reuse per section 5.
package pool

import (
	"fmt"
	"sync"
)

// Block is an allocated unit from the pool. It carries the buffer plus a
// back-reference so Deallocate can be called without re-threading the
// owning pool through every caller.
type Block struct {
	Data []byte
	pool *Pool
}

// Release returns the block to its owning pool's free list.
func (b *Block) Release() {
	b.pool.Deallocate(b)
}

// Pool is a fixed block-size allocator with an optional cap on the total
// number of blocks ever allocated.
type Pool struct {
	mu        sync.Mutex
	blockSize int
	maxBlocks int // 0 = unbounded
	free      []*Block
	allocated int
}

// New builds a pool of blockSize-byte blocks, capped at maxBlocks total
// (0 for unbounded).
func New(blockSize, maxBlocks int) *Pool {
	return &Pool{blockSize: blockSize, maxBlocks: maxBlocks}
}

// Allocate returns a block from the free list if one exists, else
// allocates a new one if under the cap. Returns an error if the pool is
// at capacity with an empty free list.
func (p *Pool) Allocate() (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		return b, nil
	}

	if p.maxBlocks > 0 && p.allocated >= p.maxBlocks {
		return nil, fmt.Errorf("pool: at capacity (%d blocks)", p.maxBlocks)
	}

	p.allocated++
	return &Block{Data: make([]byte, p.blockSize), pool: p}, nil
}

// Deallocate returns block to the free list. Blocks are not zeroed on
// return, per section 4.1.
func (p *Pool) Deallocate(block *Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, block)
}

// Stats reports the pool's current allocation counters. Allocated is the
// count of blocks outstanding (not on the free list); Available is the
// free-list size. When MaxBlocks is non-zero, Allocated + Available never
// exceeds it; MaxBlocks 0 means unbounded.
type Stats struct {
	Allocated int
	Available int
	MaxBlocks int
}

// Stats returns a snapshot of pool utilization.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Allocated: p.allocated - len(p.free),
		Available: len(p.free),
		MaxBlocks: p.maxBlocks,
	}
}
