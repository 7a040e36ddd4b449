// Package backend provides the concrete capability.Backend
// implementations the coloring core is wired against: a cell's stage-2
// table, its SMMU table, the root cell's table, and the hypervisor's own
// scratch/linear mapping surface.
//
// Each backend is structured like the teacher's
// pkg/sentry/platform/ring0/pagetables.PageTables: a mutex-guarded map of
// installed entries behind a small Map/Unmap surface. Walking a real
// ARMv8 stage-2 table is explicitly out of scope (§1); these backends
// stand in for "the generic stage-2 page-table walker" that a production
// build wires in, while giving this module's tests a real, observable
// authoritative state to assert against.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	log "github.com/sirupsen/logrus"
)

// Stage2Backend tracks, per cell, the set of fragments currently mapped
// into that cell's stage-2 table and the MMIO subpages registered for it.
type Stage2Backend struct {
	mu       sync.Mutex
	mappings map[uuid.UUID]map[uint64]region.Fragment
	subpages map[uuid.UUID]map[uint64]region.Fragment
	log      *log.Entry
}

// NewStage2Backend returns an empty Stage2Backend.
func NewStage2Backend(logger *log.Entry) *Stage2Backend {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Stage2Backend{
		mappings: make(map[uuid.UUID]map[uint64]region.Fragment),
		subpages: make(map[uuid.UUID]map[uint64]region.Fragment),
		log:      logger.WithField("backend", "stage2"),
	}
}

// Map installs frag into cell's stage-2 page table.
func (b *Stage2Backend) Map(_ context.Context, cell *region.Cell, frag region.Fragment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mappings[cell.ID]
	if !ok {
		m = make(map[uint64]region.Fragment)
		b.mappings[cell.ID] = m
	}
	m[frag.VirtStart] = frag
	b.log.WithFields(log.Fields{"cell": cell.ID, "virt": frag.VirtStart, "phys": frag.PhysStart, "size": frag.Size}).Debug("stage2 map")
	return nil
}

// Unmap removes frag from cell's stage-2 page table. Removing an absent
// mapping is not an error: DESTROY must tolerate a partially applied
// CREATE (§4.5).
func (b *Stage2Backend) Unmap(_ context.Context, cell *region.Cell, frag region.Fragment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.mappings[cell.ID]; ok {
		delete(m, frag.VirtStart)
	}
	b.log.WithFields(log.Fields{"cell": cell.ID, "virt": frag.VirtStart}).Debug("stage2 unmap")
	return nil
}

// Subpage registers a sub-page MMIO fragment for cell.
func (b *Stage2Backend) Subpage(_ context.Context, cell *region.Cell, frag region.Fragment) error {
	if !frag.IsSubpage() {
		return fmt.Errorf("stage2: Subpage called on a page-aligned fragment at virt=0x%x", frag.VirtStart)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.subpages[cell.ID]
	if !ok {
		m = make(map[uint64]region.Fragment)
		b.subpages[cell.ID] = m
	}
	m[frag.VirtStart] = frag
	return nil
}

// Mapped reports whether frag's virtual start is currently mapped for
// cell, and the fragment as last installed there. Used by tests to assert
// the round-trip invariant (§8 invariant 6).
func (b *Stage2Backend) Mapped(cellID uuid.UUID, virt uint64) (region.Fragment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mappings[cellID]
	if !ok {
		return region.Fragment{}, false
	}
	f, ok := m[virt]
	return f, ok
}

// Snapshot returns a copy of the installed mappings for cellID, for
// round-trip comparisons in tests.
func (b *Stage2Backend) Snapshot(cellID uuid.UUID) map[uint64]region.Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint64]region.Fragment)
	for k, v := range b.mappings[cellID] {
		out[k] = v
	}
	return out
}
