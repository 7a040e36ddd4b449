package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	log "github.com/sirupsen/logrus"
)

// RootCellBackend tracks the root cell's own stage-2 mapping of physical
// frames. CREATE steals frames from it (UnmapFromRoot); DESTROY gives them
// back (RemapToRoot). Loadable fragments additionally borrow it
// transiently at START/LOAD via the rebased loader virtual address.
//
// Grounded on unmap_from_root_cell/remap_to_root_cell call sites in
// original_source/hypervisor/arch/arm-common/coloring.c.
type RootCellBackend struct {
	mu       sync.Mutex
	mappings map[uint64]region.Fragment
	log      *log.Entry
}

// NewRootCellBackend seeds the backend with the root cell's initial
// identity-mapped memory regions, so UnmapFromRoot has something to steal
// from in tests and in the reference in-process harness.
func NewRootCellBackend(initial []region.Memory, logger *log.Entry) *RootCellBackend {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	b := &RootCellBackend{
		mappings: make(map[uint64]region.Fragment),
		log:      logger.WithField("backend", "rootcell"),
	}
	for _, m := range initial {
		b.mappings[m.VirtStart] = region.Fragment{
			PhysStart: m.PhysStart,
			VirtStart: m.VirtStart,
			Size:      m.Size,
			Flags:     m.Flags,
		}
	}
	return b
}

// UnmapFromRoot steals frag's frames from the root cell. Failure here is
// fatal to the enclosing CREATE (§6); this in-memory backend only fails if
// asked to steal a virtual address the root never had mapped, which in a
// real system would indicate a configuration inconsistency.
func (b *RootCellBackend) UnmapFromRoot(_ context.Context, frag region.Fragment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mappings[frag.VirtStart]; !ok {
		return fmt.Errorf("rootcell: cannot steal unmapped virt=0x%x", frag.VirtStart)
	}
	delete(b.mappings, frag.VirtStart)
	b.log.WithFields(log.Fields{"virt": frag.VirtStart, "phys": frag.PhysStart}).Debug("unmap from root")
	return nil
}

// RemapToRoot returns frag's frames to the root cell, honoring mode's
// abort/warn policy on a conflicting existing mapping (§6, §7
// RootConflict).
func (b *RootCellBackend) RemapToRoot(_ context.Context, frag region.Fragment, mode hverrors.FailureMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.mappings[frag.VirtStart]; ok && existing != frag {
		err := hverrors.Newf(hverrors.RootConflict, "virt=0x%x already mapped to phys=0x%x while remapping phys=0x%x", frag.VirtStart, existing.PhysStart, frag.PhysStart)
		if mode == hverrors.AbortOnError {
			return err
		}
		b.log.WithError(err).Warn("remap to root: conflict, continuing")
	}
	b.mappings[frag.VirtStart] = frag
	return nil
}

// Mapped reports the fragment currently mapped at virt in the root cell,
// if any.
func (b *RootCellBackend) Mapped(virt uint64) (region.Fragment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.mappings[virt]
	return f, ok
}

// Snapshot returns a copy of the root cell's current mappings, for
// round-trip assertions (§8 invariant 6).
func (b *RootCellBackend) Snapshot() map[uint64]region.Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint64]region.Fragment, len(b.mappings))
	for k, v := range b.mappings {
		out[k] = v
	}
	return out
}
