// Package stopworld implements the stop-the-world rendezvous primitive
// §5 requires around every colored-region and recoloring operation: other
// CPUs park on a barrier before any page-table or SMMU modification
// begins, and are released only after TLB/SMMU invalidation completes.
package stopworld

import (
	"context"
	"sync"
)

// Barrier coordinates one initiating CPU against cpuCount-1 parked
// followers, generation-counted so it can be reused across repeated
// stop-the-world episodes (one per cell-create/destroy/enable call).
type Barrier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	cpuCount int
	parked   int
	gen      int
}

// New returns a Barrier sized for cpuCount physical CPUs: Release blocks
// until cpuCount-1 of them have called Park.
func New(cpuCount int) *Barrier {
	b := &Barrier{cpuCount: cpuCount}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Park blocks the calling goroutine, standing in for one non-initiating
// CPU, until the current stop-the-world episode's Release call completes.
// It returns early with ctx.Err() if ctx is canceled before that happens.
func (b *Barrier) Park(ctx context.Context) error {
	b.mu.Lock()
	gen := b.gen
	b.parked++
	b.cond.Broadcast()
	for b.gen == gen {
		if ctx.Err() != nil {
			b.parked--
			b.mu.Unlock()
			return ctx.Err()
		}
		b.cond.Wait()
	}
	b.mu.Unlock()
	return nil
}

// Release blocks until cpuCount-1 followers have called Park, then runs
// invalidate (the caller's TLB/SMMU invalidation), and only then wakes
// every parked follower and starts the next generation. invalidate is
// guaranteed to have returned before any Park call observes the release
// (§5, §8 testable property 8).
func (b *Barrier) Release(invalidate func()) {
	b.mu.Lock()
	for b.parked < b.cpuCount-1 {
		b.cond.Wait()
	}
	b.mu.Unlock()

	invalidate()

	b.mu.Lock()
	b.parked = 0
	b.gen++
	b.cond.Broadcast()
	b.mu.Unlock()
}
