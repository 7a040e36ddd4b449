// Package fragment turns a ColoredRegion's color bitmap into the ordered
// list of physically-contiguous, virtually-contiguous Fragments the
// capability backends actually map, one fragment per stride-contiguous
// run of colors.
package fragment

import (
	"fmt"

	"github.com/rntmancuso/jailhouse-rt/internal/colorrange"
	"github.com/rntmancuso/jailhouse-rt/internal/llc"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
)

// Plan walks r's virtual extent one cache-way stride (g.WaySize) at a
// time. Within each stride, physical memory is laid out as ColorCount
// consecutive page-sized slices — slice k holds color k — so a maximal
// contiguous color range [lo, hi] from colorrange.Ranges corresponds to
// one physically-contiguous block of (hi-lo+1) pages at offset
// lo*PageSize within the stride. One Fragment is emitted per such block,
// clipped to r's remaining virtual length, and the walk advances both the
// virtual cursor and the physical stride base until the whole region is
// covered.
//
// Grounded on the fragment-geometry computation in
// original_source/hypervisor/arch/arm-common/coloring.c's
// manage_colored_regions and the "while (virt_start < region end)" loop
// variant in original_source/hypervisor/arch/arm64/coloring.c (the
// duplicated inline version is skipped; see DESIGN.md for why the while-
// based loop was preferred over the count-based one).
func Plan(r *region.ColoredRegion, g llc.Geometry) ([]region.Fragment, error) {
	if !g.Active() {
		return nil, fmt.Errorf("fragment: cache coloring is not active, cannot plan colored region")
	}
	if r.IsManaged() {
		return nil, fmt.Errorf("fragment: region is still unresolved (managed, phys_start=0); run cellconfig resolution first")
	}
	if r.Size%g.PageSize != 0 {
		return nil, fmt.Errorf("fragment: region size %d is not a multiple of page size %d", r.Size, g.PageSize)
	}

	ranges := colorrange.Ranges(r.Colors, int(g.ColorCount))
	if len(ranges) == 0 {
		return nil, fmt.Errorf("fragment: color bitmap 0x%x selects no colors", r.Colors)
	}

	var frags []region.Fragment
	virtCursor := r.VirtStart
	virtEnd := r.VirtStart + r.Size
	strideBase := r.PhysStart

	for virtCursor < virtEnd {
		for _, rg := range ranges {
			if virtCursor >= virtEnd {
				break
			}
			blockSize := uint64(rg.High-rg.Low+1) * g.PageSize
			remaining := virtEnd - virtCursor
			if blockSize > remaining {
				blockSize = remaining
			}
			phys := strideBase + uint64(rg.Low)*g.PageSize
			f := region.Fragment{
				PhysStart: phys,
				VirtStart: virtCursor,
				Size:      blockSize,
				Flags:     r.Flags,
			}
			if r.RebaseOffset != 0 {
				f = f.WithRebase(r.RebaseOffset)
			}
			frags = append(frags, f)
			virtCursor += blockSize
		}
		strideBase += g.WaySize
	}
	return frags, nil
}
