// Package region holds the coloring subsystem's data model: LLC-colored
// memory regions, the root colored region, fragments, and the minimal view
// of a cell this subsystem needs.
//
// Grounded on struct jailhouse_memory / struct jailhouse_memory_colored in
// original_source/include/jailhouse/cell-config.h.
package region

import "github.com/google/uuid"

// Flags mirrors the ordinary jailhouse_memory flags bitfield plus the two
// coloring-specific bits added on top of it.
type Flags uint64

// Flag bit values. The base bits (Read..NoHugepages) are taken verbatim
// from original_source/include/jailhouse/cell-config.h. FlagColoredCell and
// FlagColored are this subsystem's own bits; the retrieved headers
// reference JAILHOUSE_MEM_COLORED/JAILHOUSE_MEM_COLORED_CELL by name but do
// not fix their numeric value in the files pulled into this pack, so they
// are assigned the next two unused bits above NoHugepages.
const (
	FlagRead          Flags = 0x0001
	FlagWrite         Flags = 0x0002
	FlagExecute       Flags = 0x0004
	FlagDMA           Flags = 0x0008
	FlagIO            Flags = 0x0010
	FlagCommRegion    Flags = 0x0020
	FlagLoadable      Flags = 0x0040
	FlagRootShared    Flags = 0x0080
	FlagNoHugepages   Flags = 0x0100
	FlagColored       Flags = 0x0200 // marks the single root-level colored pool
	FlagColoredCell   Flags = 0x0400 // managed-mode colored region on a non-root cell
	FlagIOUnaligned   Flags = 0x8000
	ioWidthShift            = 16
)

// Has reports whether all bits of other are set in f.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// Any reports whether any bit of other is set in f.
func (f Flags) Any(other Flags) bool {
	return f&other != 0
}

// PageOffsetMask is the set of bits within a page; used to detect
// sub-page ("MMIO subpage") fragments per JAILHOUSE_MEMORY_IS_SUBPAGE.
const PageOffsetMask = 0xFFF

// Memory is an ordinary, uncolored memory region.
type Memory struct {
	PhysStart uint64
	VirtStart uint64
	Size      uint64
	Flags     Flags
}

// IsSubpage reports whether m's virtual start or size is not page-aligned,
// in which case it must be routed through the MMIO subpage registrar
// rather than a full page-table mapping.
//
// Grounded on JAILHOUSE_MEMORY_IS_SUBPAGE in cell-config.h.
func (m Memory) IsSubpage() bool {
	return m.VirtStart&PageOffsetMask != 0 || m.Size&PageOffsetMask != 0
}

// ColoredRegion is a logical colored memory region declared in a cell's
// configuration (§3).
type ColoredRegion struct {
	// PhysStart is the physical base. Zero in managed mode until C9
	// resolution fills it in from the root colored region.
	PhysStart uint64
	// VirtStart is the guest-virtual base.
	VirtStart uint64
	// Size is the region size in bytes, a multiple of the page size.
	Size uint64
	// Flags reuses the ordinary memory-region encoding plus the
	// coloring bits.
	Flags Flags
	// Colors is the color bitmap; bit k set means color k is assigned
	// to this region. Fixed at 64 bits wide, matching the u64 wire
	// field (§6) and this cache's ColorCount <= 64.
	Colors uint64
	// RebaseOffset is added to every produced physical fragment
	// address.
	RebaseOffset uint64
}

// IsManaged reports whether this region's physical placement is resolved
// by the subsystem (phys_start == 0 before C9 runs) rather than given
// verbatim by the configurer.
func (r *ColoredRegion) IsManaged() bool {
	return r.PhysStart == 0
}

// RootColoredRegion is the hypervisor-global physical window that managed
// colored allocations for non-root cells are drawn from. At most one
// exists.
type RootColoredRegion struct {
	PhysStart uint64
	Size      uint64
}

// End returns the exclusive end address of the root colored region.
func (r RootColoredRegion) End() uint64 {
	return r.PhysStart + r.Size
}

// Cell is the minimal view of a cell this subsystem needs: enough to
// drive lifecycle operations over its colored regions and to know whether
// it is the privileged root cell or has SMMU stream IDs assigned.
type Cell struct {
	ID             uuid.UUID
	Name           string
	IsRoot         bool
	MemoryRegions  []Memory
	ColoredRegions []*ColoredRegion
	// StreamIDs lists the SMMU stream IDs assigned to this cell. A cell
	// with no stream IDs never issues SMMU_CREATE/SMMU_DESTROY.
	StreamIDs []uint32
}

// HasSMMU reports whether this cell has any DMA-capable device requiring
// SMMU programming.
func (c *Cell) HasSMMU() bool {
	return len(c.StreamIDs) > 0
}
