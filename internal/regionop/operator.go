// Package regionop implements the per-fragment operation dispatch (C5):
// one switch over capability.OpKind turning a single region.Fragment into
// calls against a capability.Backend.
package regionop

import (
	"context"
	"fmt"

	"github.com/rntmancuso/jailhouse-rt/internal/backend"
	"github.com/rntmancuso/jailhouse-rt/internal/capability"
	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/platformconst"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	log "github.com/sirupsen/logrus"
)

// rootExempt reports whether frag must never be stolen from or returned
// to the root cell: communication regions and root-shared memory stay
// mapped in the root throughout the cell's lifetime (§4.5).
func rootExempt(flags region.Flags) bool {
	return flags.Has(region.FlagCommRegion) || flags.Has(region.FlagRootShared)
}

// loaderFragment rebases frag's virtual address by ROOT_MAP_OFFSET, the
// transient mapping START/LOAD use to let the root cell write an inmate
// image into already-colored, already-stolen physical frames.
func loaderFragment(frag region.Fragment, c platformconst.Constants) region.Fragment {
	frag.VirtStart += c.RootMapOffset
	return frag
}

// Execute performs op against frag for cell, using be and platform
// constants c. cpu identifies the calling CPU, used to select its DCACHE
// scratch window; pool, if non-nil, gates that window so two CPUs can
// never be mid-DCACHE on the same index at once (§5) — nil is accepted
// for callers (chiefly tests) that do not care about that guarantee. mode
// governs RemapToRoot's abort/warn policy; CREATE, START, LOAD, HV_CREATE
// and SMMU_CREATE always use hverrors.AbortOnError regardless of mode,
// since fail-fast-then-rollback is their contract (§4.5/§7) — mode only
// matters for the RemapToRoot call inside DESTROY.
//
// Grounded on the switch(type) in
// original_source/hypervisor/arch/arm64/coloring.c's
// __manage_colored_region.
func Execute(ctx context.Context, be capability.Backend, c platformconst.Constants, cell *region.Cell, frag region.Fragment, op capability.OpKind, kind capability.FlushKind, cpu int, pool *backend.ScratchPool, mode hverrors.FailureMode, logger *log.Entry) error {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithFields(log.Fields{"cell": cell.ID, "op": op, "virt": frag.VirtStart})

	switch op {
	case capability.OpCreate:
		if !rootExempt(frag.Flags) {
			if err := be.UnmapFromRoot(ctx, frag); err != nil {
				return fmt.Errorf("regionop: CREATE: unmap from root: %w", err)
			}
		}
		if frag.IsSubpage() {
			return be.Subpage(ctx, cell, frag)
		}
		return be.Map(ctx, cell, frag)

	case capability.OpDestroy:
		if !frag.IsSubpage() {
			if err := be.Unmap(ctx, cell, frag); err != nil {
				logger.WithError(err).Warn("DESTROY: stage-2 unmap failed, continuing")
			}
		}
		if !rootExempt(frag.Flags) {
			if err := be.RemapToRoot(ctx, frag, mode); err != nil {
				logger.WithError(err).Warn("DESTROY: remap to root failed, continuing")
			}
		}
		return nil

	case capability.OpStart:
		if !frag.Flags.Has(region.FlagLoadable) {
			return nil
		}
		return be.UnmapFromRoot(ctx, loaderFragment(frag, c))

	case capability.OpLoad:
		if !frag.Flags.Has(region.FlagLoadable) {
			return nil
		}
		return be.RemapToRoot(ctx, loaderFragment(frag, c), hverrors.AbortOnError)

	case capability.OpDCache:
		return dcacheFlush(ctx, be, c, frag, kind, cpu, pool)

	case capability.OpHVCreate:
		return be.PagingCreate(ctx, frag.PhysStart, frag.Size, frag.VirtStart+c.RootMapOffset, frag.Flags)

	case capability.OpHVDestroy:
		return be.PagingDestroy(ctx, frag.VirtStart+c.RootMapOffset, frag.Size)

	case capability.OpSMMUCreate:
		if !cell.HasSMMU() {
			return nil
		}
		return be.SMMUMap(ctx, cell, frag)

	case capability.OpSMMUDestroy:
		if !cell.HasSMMU() {
			return nil
		}
		return be.SMMUUnmap(ctx, cell, frag)

	default:
		return fmt.Errorf("regionop: unknown op kind %v", op)
	}
}

// dcacheFlush performs kind's cache-maintenance operation over frag in
// slices of at most c.NumTemporaryPages pages, reusing a single
// preallocated scratch window for cpu across slices (§4.5 DCACHE). When
// pool is non-nil, cpu's window is claimed for the whole fragment (not
// re-claimed per slice), matching the single stop-the-world episode a
// real DCACHE call runs under.
func dcacheFlush(ctx context.Context, be capability.Backend, c platformconst.Constants, frag region.Fragment, kind capability.FlushKind, cpu int, pool *backend.ScratchPool) error {
	if pool != nil {
		w, err := pool.Claim(ctx, cpu)
		if err != nil {
			return fmt.Errorf("regionop: DCACHE: %w", err)
		}
		defer w.Release()
	}

	scratch := c.ScratchWindowBase(cpu)
	sliceBytes := c.NumTemporaryPages * c.PageSize

	for off := uint64(0); off < frag.Size; off += sliceBytes {
		n := sliceBytes
		if off+n > frag.Size {
			n = frag.Size - off
		}
		phys := frag.PhysStart + off
		if err := be.PagingCreate(ctx, phys, n, scratch, frag.Flags); err != nil {
			return fmt.Errorf("regionop: DCACHE: paging create: %w", err)
		}
		flushErr := be.DCacheFlushByVA(ctx, scratch, n, kind)
		if err := be.PagingDestroy(ctx, scratch, n); err != nil {
			return fmt.Errorf("regionop: DCACHE: paging destroy: %w", err)
		}
		if flushErr != nil {
			return fmt.Errorf("regionop: DCACHE: flush: %w", flushErr)
		}
	}
	return nil
}
