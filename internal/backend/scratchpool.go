package backend

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ScratchPool represents the cpuCount per-CPU temporary mapping windows
// DCACHE and the recoloring engine's streaming copy install scratch
// mappings into (§4.3, §4.5, §5). It is distinct from HVBackend's
// poolSem, which gates the page-table-node-backing pages PagingCreate
// itself consumes to install any mapping at all; ScratchPool instead
// gates which CPU's window a caller may be actively using, so two
// concurrent DCACHE calls can never alias the same virtual window.
//
// Grounded on the same golang.org/x/sync/semaphore.Weighted shape
// HVBackend.poolSem already uses (a teacher dependency, google-gvisor's
// go.mod) for a bounded-concurrent-resource problem, here sized to
// cpuCount instead of an arbitrary page count: each unit of weight is one
// CPU's window, not a fungible resource count, so Claim also tracks which
// cpu indices are currently held to make a double-claim of the same index
// fail loudly instead of silently succeeding within the semaphore's
// unrelated total-weight budget.
type ScratchPool struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	claimed map[int]bool
}

// NewScratchPool returns a ScratchPool sized for cpuCount physical CPUs.
func NewScratchPool(cpuCount int) *ScratchPool {
	return &ScratchPool{
		sem:     semaphore.NewWeighted(int64(cpuCount)),
		claimed: make(map[int]bool),
	}
}

// ScratchWindow is the claim handle returned by Claim; Release must be
// called exactly once to give the window back.
type ScratchWindow struct {
	pool *ScratchPool
	cpu  int
}

// Claim blocks while all cpuCount windows are held (or until ctx is
// canceled), then marks cpu's window held. If cpu's window is already
// held it returns an error at once instead of waiting for it. The caller
// must call Release on the returned window once its scratch mapping has
// been torn down.
func (p *ScratchPool) Claim(ctx context.Context, cpu int) (*ScratchWindow, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("backend: scratch window for cpu %d: %w", cpu, err)
	}
	p.mu.Lock()
	if p.claimed[cpu] {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, fmt.Errorf("backend: scratch window for cpu %d already claimed", cpu)
	}
	p.claimed[cpu] = true
	p.mu.Unlock()
	return &ScratchWindow{pool: p, cpu: cpu}, nil
}

// Release returns w's window to the pool. Releasing a nil window is a
// no-op, so callers can defer Release unconditionally after a guarded
// Claim.
func (w *ScratchWindow) Release() {
	if w == nil {
		return
	}
	w.pool.mu.Lock()
	delete(w.pool.claimed, w.cpu)
	w.pool.mu.Unlock()
	w.pool.sem.Release(1)
}
