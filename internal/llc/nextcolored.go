package llc

import "math/bits"

// NextColored returns the lowest physical page frame >= phys whose color
// index is set in the bitmap colors, given the LLC geometry g.
//
// Contract (§4.1):
//   - colors == 0 returns phys unchanged (coloring disabled for this call).
//   - colors is clamped to g.ColorCount bits before use.
//   - the returned address is page-aligned.
//   - color index of the returned address is a set bit of colors.
//
// Grounded on next_colored in
// original_source/include/jailhouse/coloring.h: extract the current color,
// scan colors for the lowest set bit at or above it; if none exists, carry
// into the bit above the color mask (advance by WaySize) and restart from
// color 0.
func NextColored(phys uint64, colors uint64, g Geometry) uint64 {
	if colors == 0 {
		return phys
	}
	colors = ClampColors(colors, g)
	if colors == 0 {
		// Clamping discarded every bit of an out-of-range value; there
		// is nothing to select, so behave as if coloring were
		// disabled rather than looping forever.
		return phys
	}

	phys &= g.PageMask
	cur := ColorOf(phys, g)

	for {
		if bit, ok := lowestSetBitAtOrAbove(colors, cur); ok {
			phys &^= g.ColorMask
			phys |= bit << g.PageShift
			return phys
		}
		// Carry above the color mask and retry from color 0.
		phys &^= g.ColorMask
		phys += g.WaySize
		cur = 0
	}
}

// lowestSetBitAtOrAbove returns the index of the lowest set bit of mask
// that is >= from, and whether one was found.
func lowestSetBitAtOrAbove(mask uint64, from uint64) (uint64, bool) {
	if from >= 64 {
		return 0, false
	}
	shifted := mask >> from
	if shifted == 0 {
		return 0, false
	}
	return from + uint64(bits.TrailingZeros64(shifted)), true
}
