// Package validate implements the pre-create checks a non-root cell's
// colored regions must pass (C8), plus the managed/manual physical
// placement resolution (C9) those checks perform as a side effect.
package validate

import (
	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/llc"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
)

// SimulateColoring walks next_colored page by page, starting at start, for
// size bytes, without installing any mapping, and returns the exclusive
// end address of the highest colored page frame it lands on. This is the
// same yardstick §4.8 uses to bound both managed and manual regions
// before committing to a physical placement.
//
// Grounded on simulate_coloring in original_source/driver/coloring.c.
func SimulateColoring(start, size uint64, colors uint64, g llc.Geometry) uint64 {
	cur := start
	for remaining := size; remaining > 0; remaining -= g.PageSize {
		cur = llc.NextColored(cur, colors, g)
		cur += g.PageSize
	}
	return cur
}

// StripRootManaged silently converts any managed-allocation colored
// region declared on the root cell into an ordinary memory region,
// per §4.8's "root-cell colored regions are not supported in managed
// mode" rule. Manual (phys_start != 0) colored regions on the root cell
// are left alone; only phys_start==0 declarations are meaningless on the
// root, since there is no enclosing root pool to draw from.
func StripRootManaged(cell *region.Cell) {
	if !cell.IsRoot {
		return
	}
	kept := cell.ColoredRegions[:0]
	for _, r := range cell.ColoredRegions {
		if r.IsManaged() {
			cell.MemoryRegions = append(cell.MemoryRegions, region.Memory{
				VirtStart: r.VirtStart,
				Size:      r.Size,
				Flags:     r.Flags &^ (region.FlagColored | region.FlagColoredCell),
			})
			continue
		}
		kept = append(kept, r)
	}
	cell.ColoredRegions = kept
}

// Validate checks every colored region of cell against §4.8's rules,
// resolving managed regions' PhysStart from root's base as a side effect.
// cell must not be the root cell; call StripRootManaged on the root cell
// instead.
func Validate(cell *region.Cell, root *region.RootColoredRegion, g llc.Geometry) error {
	if len(cell.ColoredRegions) == 0 {
		return nil
	}
	if !g.Active() {
		return hverrors.New(hverrors.ConfigInvalid, "colored region declared but no unified cache present")
	}

	maxColors := uint64(1) << g.ColorCount

	for _, r := range cell.ColoredRegions {
		if r.Colors == 0 || r.Colors >= maxColors {
			return hverrors.Newf(hverrors.ConfigInvalid, "colors=0x%x out of range for color_count=%d", r.Colors, g.ColorCount)
		}

		if r.IsManaged() {
			if root == nil {
				return hverrors.New(hverrors.ConfigInvalid, "managed colored region declared but no root colored pool exists")
			}
			end := SimulateColoring(root.PhysStart, r.Size, r.Colors, g)
			if end > root.End() {
				return hverrors.Newf(hverrors.OutOfBounds, "managed region of size 0x%x with colors=0x%x extends to 0x%x, past root pool end 0x%x", r.Size, r.Colors, end, root.End())
			}
			r.PhysStart = root.PhysStart
			continue
		}

		if root == nil {
			continue
		}
		end := SimulateColoring(r.PhysStart, r.Size, r.Colors, g)
		if overlapsRootPool(r.PhysStart, end, root) {
			return hverrors.Newf(hverrors.OutOfBounds, "manual region [0x%x, 0x%x) overlaps root colored pool [0x%x, 0x%x)", r.PhysStart, end, root.PhysStart, root.End())
		}
	}
	return nil
}

func overlapsRootPool(start, end uint64, root *region.RootColoredRegion) bool {
	return start < root.End() && end > root.PhysStart
}
