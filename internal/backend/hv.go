package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/rntmancuso/jailhouse-rt/internal/capability"
	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// window is one HV-scratch virtual-to-physical association installed by
// PagingCreate.
type window struct {
	phys uint64
	size uint64
}

// HVBackend is the hypervisor's own raw page-table and pool-page surface:
// the per-CPU temporary mapping window used by DCACHE and the recoloring
// engine's streaming copy, plus the node-backing page pool consumed by
// PagingCreate/PagingDestroy themselves (§4.3, §6).
//
// Grounded on the TEMPORARY_MAPPING_BASE-indexed window established in
// manage_colored_regions' DCACHE case and on colored_copy's scratch
// mapping, both in
// original_source/hypervisor/arch/arm-common/coloring.c. The count of
// node-backing pool pages checked out is gated with a
// golang.org/x/sync/semaphore.Weighted (poolSem; per-CPU windows are
// gated separately by ScratchPool)
// rather than a hand-rolled counter, since it is a teacher dependency
// (google-gvisor go.mod) already expressing exactly this
// bounded-concurrent-resource shape.
type HVBackend struct {
	mu       sync.Mutex
	mem      *PhysMemory
	windows  map[uint64]window
	poolNext uintptr
	poolCap  int
	poolSem  *semaphore.Weighted
	flushed  []FlushRecord
	log      *log.Entry
}

// FlushRecord is one recorded DCacheFlushByVA invocation, kept so tests
// can assert the order and kind of the flushes issued (the DCACHE region
// operation issues them; the recoloring engine issues none).
type FlushRecord struct {
	VBase uint64
	Size  uint64
	Kind  capability.FlushKind
}

// NewHVBackend returns an HVBackend backed by mem, with poolCap
// page-table-node-backing pages available to AllocPoolPages.
func NewHVBackend(mem *PhysMemory, poolCap int, logger *log.Entry) *HVBackend {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &HVBackend{
		mem:      mem,
		windows:  make(map[uint64]window),
		poolNext: 0x1000,
		poolCap:  poolCap,
		poolSem:  semaphore.NewWeighted(int64(poolCap)),
		log:      logger.WithField("backend", "hv"),
	}
}

// PagingCreate installs a virt->phys association in the HV's own address
// space, used for the temporary mapping window and for the root
// recoloring destination mapping.
func (b *HVBackend) PagingCreate(_ context.Context, phys, size, virt uint64, _ region.Flags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows[virt] = window{phys: phys, size: size}
	b.log.WithFields(log.Fields{"virt": virt, "phys": phys, "size": size}).Debug("hv paging create")
	return nil
}

// PagingDestroy removes the virt->phys association previously installed
// by PagingCreate. Unmapping an absent window is a no-op.
func (b *HVBackend) PagingDestroy(_ context.Context, virt, _ uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, virt)
	return nil
}

// DCacheFlushByVA records the requested cache-maintenance operation.
// Actual ARMv8 cache maintenance has no architectural effect on this
// software model's correctness, so it is recorded rather than performed;
// tests assert on FlushLog to check ordering relative to the memory
// copies it brackets.
func (b *HVBackend) DCacheFlushByVA(_ context.Context, vbase, size uint64, kind capability.FlushKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushed = append(b.flushed, FlushRecord{VBase: vbase, Size: size, Kind: kind})
	return nil
}

// FlushLog returns the sequence of DCacheFlushByVA calls recorded so far.
func (b *HVBackend) FlushLog() []FlushRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FlushRecord, len(b.flushed))
	copy(out, b.flushed)
	return out
}

// AllocPoolPages reserves n page-table-node backing pages, returning
// hverrors.OutOfMemory once poolCap is exhausted (§7).
func (b *HVBackend) AllocPoolPages(n int) ([]uintptr, error) {
	if !b.poolSem.TryAcquire(int64(n)) {
		return nil, hverrors.Newf(hverrors.OutOfMemory, "pool exhausted: requested %d pages", n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pages := make([]uintptr, n)
	for i := range pages {
		pages[i] = b.poolNext
		b.poolNext += physPageSize
	}
	return pages, nil
}

// FreePoolPages returns pages previously obtained from AllocPoolPages.
func (b *HVBackend) FreePoolPages(pages []uintptr) {
	b.poolSem.Release(int64(len(pages)))
}

// ReadAt copies len(buf) bytes starting at virt, translating through
// whichever PagingCreate window contains it, into buf. Used by the
// recoloring engine to move bytes via the HV scratch mapping exactly as
// colored_copy does.
func (b *HVBackend) ReadAt(_ context.Context, virt uint64, buf []byte) error {
	phys, err := b.translate(virt, uint64(len(buf)))
	if err != nil {
		return err
	}
	b.mem.ReadAt(phys, buf)
	return nil
}

// WriteAt writes buf starting at virt, translating through whichever
// PagingCreate window contains it.
func (b *HVBackend) WriteAt(_ context.Context, virt uint64, buf []byte) error {
	phys, err := b.translate(virt, uint64(len(buf)))
	if err != nil {
		return err
	}
	b.mem.WriteAt(phys, buf)
	return nil
}

func (b *HVBackend) translate(virt, size uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for base, w := range b.windows {
		if virt >= base && virt+size <= base+w.size {
			return w.phys + (virt - base), nil
		}
	}
	return 0, fmt.Errorf("hv: virt=0x%x size=%d not covered by any PagingCreate window", virt, size)
}

// Mem exposes the backing PhysMemory for direct setup/assertions in
// tests.
func (b *HVBackend) Mem() *PhysMemory { return b.mem }
