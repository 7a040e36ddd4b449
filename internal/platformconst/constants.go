// Package platformconst loads the small set of build-time constants the
// coloring subsystem depends on (§6 "Platform constants"). They are
// sourced from a TOML file rather than baked into the binary, so a board
// port can override only the values that differ from upstream defaults.
package platformconst

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Constants holds the platform-wide values named in §6/§4.12.
type Constants struct {
	// PageSize is the page size in bytes.
	PageSize uint64 `toml:"page_size"`
	// RootMapOffset is the virtual base added to loader and HV-scratch
	// mappings so they never collide with ordinary cell mappings.
	RootMapOffset uint64 `toml:"root_map_offset"`
	// NumTemporaryPages is the slice size used by DCACHE and the
	// recoloring engine's streaming copy.
	NumTemporaryPages uint64 `toml:"num_temporary_pages"`
	// TemporaryMappingBase is the virtual base of the per-CPU scratch
	// mapping window.
	TemporaryMappingBase uint64 `toml:"temporary_mapping_base"`
	// RecolorScratchBase is the virtual base of the single scratch
	// window the recoloring engine aliases against the root cell's
	// original identity-mapped physical range. It is deliberately
	// disjoint from every per-CPU TemporaryMappingBase window, since
	// recoloring runs stop-the-world on one CPU while the DCACHE
	// windows belong to whichever CPU issued that unrelated operation.
	RecolorScratchBase uint64 `toml:"recolor_scratch_base"`
}

// Defaults mirrors the original Jailhouse-RT build-time constants:
// PAGE_SIZE=4096 (original_source/include/jailhouse/coloring.h),
// ROOT_MAP_OFFSET=0x0C000000000 (original_source/include/jailhouse/cell-config.h).
// NUM_TEMPORARY_PAGES and TEMPORARY_MAPPING_BASE are not fixed numerically
// in the retrieved headers; 16 pages and a board-reserved scratch window
// above ROOT_MAP_OFFSET are used as defaults.
var Defaults = Constants{
	PageSize:             4096,
	RootMapOffset:        0x0C000000000,
	NumTemporaryPages:    16,
	TemporaryMappingBase: 0x0D000000000,
	RecolorScratchBase:   0x0E000000000,
}

// Load parses path as TOML into a Constants value, applying Defaults for
// any field the file does not set.
func Load(path string) (Constants, error) {
	c := Defaults
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Constants{}, fmt.Errorf("platformconst: loading %s: %w", path, err)
	}
	if c.PageSize == 0 || c.PageSize&(c.PageSize-1) != 0 {
		return Constants{}, fmt.Errorf("platformconst: page_size %d must be a power of two", c.PageSize)
	}
	if c.NumTemporaryPages == 0 {
		return Constants{}, fmt.Errorf("platformconst: num_temporary_pages must be nonzero")
	}
	return c, nil
}

// ScratchWindowBase returns the per-CPU temporary mapping window's virtual
// base for cpu, sized NumTemporaryPages*PageSize apart — grounded on
// "vaddr = TEMPORARY_MAPPING_BASE + this_cpu_id() * PAGE_SIZE *
// NUM_TEMPORARY_PAGES" in
// original_source/hypervisor/arch/arm-common/coloring.c.
func (c Constants) ScratchWindowBase(cpu int) uint64 {
	return c.TemporaryMappingBase + uint64(cpu)*c.PageSize*c.NumTemporaryPages
}

// ScratchWindowSize is the size in bytes of one per-CPU scratch window.
func (c Constants) ScratchWindowSize() uint64 {
	return c.PageSize * c.NumTemporaryPages
}
