// Package capability defines the small set of collaborator operations the
// coloring core consumes (§6), re-expressed as a single Go interface per
// §9's design note: the source's struct-of-function-pointers callback
// table (col_manage_ops in
// original_source/hypervisor/arch/arm-common/include/asm/coloring.h)
// becomes one capability interface, implemented once per backend
// (stage-2 paging, SMMU paging, root-cell paging, HV scratch paging).
package capability

import (
	"context"

	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
)

// FlushKind selects the D-cache maintenance operation performed by
// DCacheFlushByVA, mirroring enum dcache_flush in the original sources.
type FlushKind int

const (
	Clean FlushKind = iota
	Invalidate
	CleanAndInvalidate
)

func (k FlushKind) String() string {
	switch k {
	case Clean:
		return "clean"
	case Invalidate:
		return "invalidate"
	case CleanAndInvalidate:
		return "clean_and_invalidate"
	default:
		return "unknown"
	}
}

// OpKind is the closed enumeration of per-fragment operations the region
// operator (C5) dispatches over. This is the flat layout chosen to resolve
// §9's "dual operation-kind enumerations" open question — no union, and
// LOAD (not LOADABLE) names the image-load transition.
type OpKind int

const (
	OpCreate OpKind = iota
	OpDestroy
	OpStart
	OpLoad
	OpDCache
	OpHVCreate
	OpHVDestroy
	OpSMMUCreate
	OpSMMUDestroy
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "CREATE"
	case OpDestroy:
		return "DESTROY"
	case OpStart:
		return "START"
	case OpLoad:
		return "LOAD"
	case OpDCache:
		return "DCACHE"
	case OpHVCreate:
		return "HV_CREATE"
	case OpHVDestroy:
		return "HV_DESTROY"
	case OpSMMUCreate:
		return "SMMU_CREATE"
	case OpSMMUDestroy:
		return "SMMU_DESTROY"
	default:
		return "UNKNOWN"
	}
}

// Backend is the single capability interface the coloring core consumes.
// Concrete implementations live in internal/backend: Stage2Backend,
// SMMUBackend, RootCellBackend, and the HV scratch-mapping backend used by
// the recoloring engine.
type Backend interface {
	// Map inserts frag into cell's stage-2 page table.
	Map(ctx context.Context, cell *region.Cell, frag region.Fragment) error
	// Unmap removes frag from cell's stage-2 page table.
	Unmap(ctx context.Context, cell *region.Cell, frag region.Fragment) error
	// Subpage registers a sub-page MMIO fragment.
	Subpage(ctx context.Context, cell *region.Cell, frag region.Fragment) error
	// UnmapFromRoot steals frames from the root cell; failure is fatal
	// to the enclosing CREATE.
	UnmapFromRoot(ctx context.Context, frag region.Fragment) error
	// RemapToRoot returns frames to the root cell, honoring mode's
	// abort/warn policy.
	RemapToRoot(ctx context.Context, frag region.Fragment, mode hverrors.FailureMode) error
	// SMMUMap mirrors Map in the cell's SMMU page-table root. Returns
	// hverrors.NotSupported if no SMMU hook was installed at boot.
	SMMUMap(ctx context.Context, cell *region.Cell, frag region.Fragment) error
	// SMMUUnmap mirrors Unmap in the cell's SMMU page-table root.
	SMMUUnmap(ctx context.Context, cell *region.Cell, frag region.Fragment) error
	// PagingCreate is a raw page-table insert for HV scratch mappings
	// (temporary mapping window, root recoloring mapping).
	PagingCreate(ctx context.Context, phys, size, virt uint64, flags region.Flags) error
	// PagingDestroy removes a raw HV scratch mapping.
	PagingDestroy(ctx context.Context, virt, size uint64) error
	// DCacheFlushByVA performs the requested cache-maintenance
	// operation across [vbase, vbase+size).
	DCacheFlushByVA(ctx context.Context, vbase, size uint64, kind FlushKind) error
	// AllocPoolPages reserves n page-table-node backing pages.
	AllocPoolPages(n int) ([]uintptr, error)
	// FreePoolPages returns pages previously obtained from
	// AllocPoolPages.
	FreePoolPages(pages []uintptr)
	// ReadAt copies len(buf) bytes from the memory currently mapped at
	// virt (through a prior PagingCreate window) into buf. This is the
	// Go stand-in for the raw pointer dereference the source performs
	// against its own scratch mappings.
	ReadAt(ctx context.Context, virt uint64, buf []byte) error
	// WriteAt copies buf into the memory currently mapped at virt.
	WriteAt(ctx context.Context, virt uint64, buf []byte) error
}
