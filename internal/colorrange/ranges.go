// Package colorrange turns a color bitmap into an ordered list of maximal
// contiguous color-index ranges, so the fragment planner can emit one
// fragment per contiguous run of colors instead of one per color.
package colorrange

// Range is an inclusive, closed range [Low, High] of color indices, all of
// which are set in the bitmap the range was extracted from.
type Range struct {
	Low, High int
}

// Ranges returns the ordered, disjoint list of maximal ranges [i, j] with
// every bit in [i, j] set in mask, for a bitmap of the given width.
//
// Grounded on ranges_in_mask in
// original_source/include/jailhouse/coloring-common.h (also duplicated,
// identically, in original_source/hypervisor/arch/arm64/coloring.c — we
// keep a single implementation per §9's note that the duplication is not
// intentional).
func Ranges(colors uint64, width int) []Range {
	var ranges []Range
	i := 0
	for i < width {
		if colors&(1<<uint(i)) == 0 {
			i++
			continue
		}
		j := i
		for j+1 < width && colors&(1<<uint(j+1)) != 0 {
			j++
		}
		ranges = append(ranges, Range{Low: i, High: j})
		i = j + 1
	}
	return ranges
}
