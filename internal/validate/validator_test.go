package validate

import (
	"testing"

	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/llc"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
)

func testGeometry(t *testing.T) llc.Geometry {
	t.Helper()
	g, err := llc.NewGeometry(4096, 64, 4, 1024, 2)
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	return g
}

func TestValidateRejectsOutOfRangeColors(t *testing.T) {
	g := testGeometry(t)
	if g.ColorCount != 16 {
		t.Fatalf("test geometry color_count = %d, want 16", g.ColorCount)
	}
	root := &region.RootColoredRegion{PhysStart: 0x800000000, Size: 0x80000000}
	cell := &region.Cell{ColoredRegions: []*region.ColoredRegion{
		{PhysStart: root.PhysStart, VirtStart: 0x1000, Size: g.PageSize, Colors: 0x10000},
	}}
	err := Validate(cell, root, g)
	if err == nil {
		t.Fatal("expected ConfigInvalid for out-of-range colors")
	}
	herr, ok := err.(*hverrors.Error)
	if !ok || herr.Kind() != hverrors.ConfigInvalid {
		t.Fatalf("got %v, want hverrors.ConfigInvalid", err)
	}
}

func TestValidateManagedBoundsAcceptsWithinPool(t *testing.T) {
	g := testGeometry(t)
	root := &region.RootColoredRegion{PhysStart: 0x800000000, Size: 0x80000000}
	cell := &region.Cell{ColoredRegions: []*region.ColoredRegion{
		{VirtStart: 0x1000, Size: 0x10000000, Colors: 0xf000},
	}}
	if err := Validate(cell, root, g); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cell.ColoredRegions[0].PhysStart != root.PhysStart {
		t.Fatalf("managed region PhysStart = 0x%x, want root base 0x%x", cell.ColoredRegions[0].PhysStart, root.PhysStart)
	}
}

func TestValidateManagedBoundsRejectsOutOfBounds(t *testing.T) {
	g := testGeometry(t)
	root := &region.RootColoredRegion{PhysStart: 0x800000000, Size: 0x80000000}
	cell := &region.Cell{ColoredRegions: []*region.ColoredRegion{
		{VirtStart: 0x1000, Size: 0x90000000, Colors: 0xf000},
	}}
	err := Validate(cell, root, g)
	if err == nil {
		t.Fatal("expected OutOfBounds for oversized managed region")
	}
	herr, ok := err.(*hverrors.Error)
	if !ok || herr.Kind() != hverrors.OutOfBounds {
		t.Fatalf("got %v, want hverrors.OutOfBounds", err)
	}
}

func TestValidateRejectsWhenCacheInactive(t *testing.T) {
	cell := &region.Cell{ColoredRegions: []*region.ColoredRegion{
		{PhysStart: 0x1000, VirtStart: 0x1000, Size: 0x1000, Colors: 0x1},
	}}
	if err := Validate(cell, nil, llc.Disabled); err == nil {
		t.Fatal("expected ConfigInvalid when no unified cache is present")
	}
}

func TestStripRootManagedConvertsToOrdinaryMemory(t *testing.T) {
	cell := &region.Cell{
		IsRoot: true,
		ColoredRegions: []*region.ColoredRegion{
			{VirtStart: 0x2000, Size: 0x1000, Colors: 0x1, Flags: region.FlagColoredCell},
		},
	}
	StripRootManaged(cell)
	if len(cell.ColoredRegions) != 0 {
		t.Fatalf("expected managed root colored region to be stripped, got %d remaining", len(cell.ColoredRegions))
	}
	if len(cell.MemoryRegions) != 1 || cell.MemoryRegions[0].Flags.Has(region.FlagColoredCell) {
		t.Fatalf("expected an ordinary memory region with the coloring flag cleared, got %+v", cell.MemoryRegions)
	}
}
