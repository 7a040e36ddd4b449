// Package llc implements color arithmetic and last-level-cache geometry
// discovery for the cache-coloring subsystem: the address-bit mask that
// selects cache sets from a physical address, and the next-colored-page
// iterator built on top of it.
package llc

import "fmt"

// Geometry describes the last-level cache as discovered at hypervisor
// enable. It is process-wide and immutable once probed; callers obtain it
// through Probe and pass the returned value around rather than mutating a
// package-level global.
type Geometry struct {
	// PageShift is log2(PageSize).
	PageShift uint
	// PageSize is the page size in bytes, typically 4096.
	PageSize uint64
	// PageMask masks off the page offset bits.
	PageMask uint64

	// WaySize is the number of bytes per LLC way, and the stride between
	// pages of the same color.
	WaySize uint64
	// LineSize is the cache line size in bytes.
	LineSize uint64
	// Associativity is the number of ways at the selected cache level.
	Associativity uint64
	// Sets is the number of sets at the selected cache level.
	Sets uint64

	// ColorCount is Sets / (PageSize / LineSize). Always a power of two
	// for any cache geometry this subsystem supports.
	ColorCount uint64
	// ColorMask is the subset of physical address bits that select the
	// color: bits in [PageShift, log2(WaySize)).
	ColorMask uint64

	// Level is the 1-based cache level selected for coloring (the last
	// unified level found during the probe), or 0 if coloring is
	// disabled.
	Level int
}

// Active reports whether a unified cache level was found and coloring is
// usable. When false, every colored-region operation must be treated as a
// configuration error (§4.2).
func (g Geometry) Active() bool {
	return g.ColorCount > 0
}

// Disabled is the zero-value Geometry returned by a probe that found no
// unified cache level anywhere in the hierarchy.
var Disabled = Geometry{}

// NewGeometry derives the full Geometry record from the raw cache
// parameters discovered by a probe: page size, cache line size,
// associativity and set count of the selected (last unified) level.
//
// Grounded on coloring_cache_detect's post-loop computation in
// original_source/hypervisor/arch/arm64/coloring.c:
// way_size = line_size * sets; colors = sets / (page_size / line_size).
func NewGeometry(pageSize, lineSize, assoc, sets uint64, level int) (Geometry, error) {
	if pageSize == 0 || (pageSize&(pageSize-1)) != 0 {
		return Geometry{}, fmt.Errorf("llc: page size %d is not a power of two", pageSize)
	}
	if lineSize == 0 || sets == 0 || assoc == 0 {
		return Geometry{}, fmt.Errorf("llc: invalid cache geometry (line=%d assoc=%d sets=%d)", lineSize, assoc, sets)
	}
	if pageSize%lineSize != 0 {
		return Geometry{}, fmt.Errorf("llc: page size %d is not a multiple of line size %d", pageSize, lineSize)
	}

	wayShift := log2(pageSize)
	waySize := lineSize * sets
	g := Geometry{
		PageShift:     wayShift,
		PageSize:      pageSize,
		PageMask:      ^(pageSize - 1),
		WaySize:       waySize,
		LineSize:      lineSize,
		Associativity: assoc,
		Sets:          sets,
		Level:         level,
	}
	mask, err := ColorMask(waySize, pageSize)
	if err != nil {
		return Geometry{}, err
	}
	g.ColorMask = mask
	g.ColorCount = ColorCount(mask, g.PageShift)
	return g, nil
}

func log2(n uint64) uint {
	var i uint
	for v := uint64(1); v < n; v <<= 1 {
		i++
	}
	return i
}
