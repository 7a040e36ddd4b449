package llc

import "testing"

func testGeometry(t *testing.T) Geometry {
	t.Helper()
	g, err := NewGeometry(4096, 4096, 16, 16, 2)
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	if g.ColorMask != 0xf000 || g.ColorCount != 16 {
		t.Fatalf("unexpected test geometry: mask=0x%x count=%d", g.ColorMask, g.ColorCount)
	}
	return g
}

func TestNextColoredDisabled(t *testing.T) {
	g := testGeometry(t)
	if got := NextColored(0x12345000, 0, g); got != 0x12345000 {
		t.Fatalf("NextColored with colors=0 = 0x%x, want unchanged", got)
	}
}

func TestNextColoredBaseCase(t *testing.T) {
	// S2 (adjusted): phys already belongs to the only selected color.
	// 0x1000 has color index 1 ((0x1000&0xf000)>>12 == 1); selecting
	// color 1 should return it unchanged.
	g := testGeometry(t)
	if got := NextColored(0x1000, 0x0002, g); got != 0x1000 {
		t.Fatalf("NextColored = 0x%x, want 0x1000", got)
	}
}

func TestNextColoredCarry(t *testing.T) {
	// S3: phys = 0x1000 (color 1), col_val selects color 0 only. No bit
	// at or above color 1 is set, so the algorithm carries by way_size
	// (0x10000) and restarts from color 0, landing on 0x10000 — not the
	// pre-carry intermediate 0x11000. This matches the literal
	// next_colored() semantics in
	// original_source/include/jailhouse/coloring.h and invariant 4 of
	// §8 (the returned address's color bit must be set in col_val);
	// 0x11000 has color 1, which col_val=0x0001 does not select, so it
	// cannot be the correct answer despite being mentioned as such in
	// the distilled scenario text.
	g := testGeometry(t)
	if got := NextColored(0x1000, 0x0001, g); got != 0x10000 {
		t.Fatalf("NextColored = 0x%x, want 0x10000", got)
	}
}

func TestNextColoredSkip(t *testing.T) {
	// S4: phys = 0, col_val = 0x00f0 (colors 4..7) => 0x4000.
	g := testGeometry(t)
	if got := NextColored(0, 0x00f0, g); got != 0x4000 {
		t.Fatalf("NextColored = 0x%x, want 0x4000", got)
	}
}

func TestNextColoredPageAligned(t *testing.T) {
	g := testGeometry(t)
	got := NextColored(0x1234, 0x0001, g)
	if got&(g.PageSize-1) != 0 {
		t.Fatalf("NextColored returned unaligned address 0x%x", got)
	}
}

func TestNextColoredInvariant(t *testing.T) {
	g := testGeometry(t)
	for phys := uint64(0); phys < g.WaySize*3; phys += g.PageSize {
		for colors := uint64(1); colors < g.ColorCount; colors <<= 1 {
			got := NextColored(phys, colors, g)
			if got < phys {
				t.Fatalf("NextColored(0x%x, 0x%x) = 0x%x is below phys", phys, colors, got)
			}
			if (uint64(1)<<ColorOf(got, g))&colors == 0 {
				t.Fatalf("NextColored(0x%x, 0x%x) = 0x%x has wrong color", phys, colors, got)
			}
		}
	}
}

func TestNextColoredClampsOutOfRangeColors(t *testing.T) {
	g := testGeometry(t)
	// colors has a bit set above ColorCount; that bit is clamped away.
	// If nothing remains, behave as if coloring were disabled.
	got := NextColored(0x2000, 1<<32, g)
	if got != 0x2000 {
		t.Fatalf("NextColored with fully out-of-range colors = 0x%x, want unchanged 0x2000", got)
	}
}
