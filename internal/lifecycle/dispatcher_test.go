package lifecycle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rntmancuso/jailhouse-rt/internal/backend"
	"github.com/rntmancuso/jailhouse-rt/internal/llc"
	"github.com/rntmancuso/jailhouse-rt/internal/platformconst"
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

func newHarness(t *testing.T, root []region.Memory) *backend.Composite {
	t.Helper()
	return backend.NewComposite(
		backend.NewStage2Backend(nil),
		backend.NewSMMUBackend(true, nil),
		backend.NewRootCellBackend(root, nil),
		backend.NewHVBackend(backend.NewPhysMemory(), 16, nil),
	)
}

func TestDispatcherCreateThenDestroyRoundTrips(t *testing.T) {
	g := testGeometry(t)
	c := platformconst.Defaults
	region1 := &region.ColoredRegion{PhysStart: 0x100000, VirtStart: 0x80000000, Size: g.PageSize * 2, Colors: 0x3, Flags: region.FlagRead | region.FlagWrite}
	root := []region.Memory{{PhysStart: region1.PhysStart, VirtStart: region1.VirtStart, Size: region1.Size, Flags: region1.Flags}}
	comp := newHarness(t, root)
	cell := &region.Cell{ID: uuid.New(), ColoredRegions: []*region.ColoredRegion{region1}}

	d := New(comp, c, g, 4, nil)
	ctx := context.Background()

	before := comp.Root.Snapshot()
	if err := d.Create(ctx, cell); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := comp.Stage2.Mapped(cell.ID, region1.VirtStart); !ok {
		t.Fatal("region should be mapped into stage-2 after Create")
	}

	d.Destroy(ctx, cell)
	if _, ok := comp.Stage2.Mapped(cell.ID, region1.VirtStart); ok {
		t.Fatal("region should be unmapped from stage-2 after Destroy")
	}
	after := comp.Root.Snapshot()
	if len(before) != len(after) {
		t.Fatalf("root mapping count changed across create/destroy: before=%d after=%d", len(before), len(after))
	}
}

func TestDispatcherLoadStartSequence(t *testing.T) {
	g := testGeometry(t)
	c := platformconst.Defaults
	loadable := &region.ColoredRegion{PhysStart: 0x200000, VirtStart: 0x90000000, Size: g.PageSize, Colors: 0x1, Flags: region.FlagLoadable}
	comp := newHarness(t, []region.Memory{{PhysStart: loadable.PhysStart, VirtStart: loadable.VirtStart, Size: loadable.Size, Flags: loadable.Flags}})
	cell := &region.Cell{ID: uuid.New(), ColoredRegions: []*region.ColoredRegion{loadable}}
	d := New(comp, c, g, 4, nil)
	ctx := context.Background()

	if err := d.Create(ctx, cell); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := d.Load(ctx, cell); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := comp.Root.Mapped(loadable.VirtStart + c.RootMapOffset); !ok {
		t.Fatal("Load should install the rebased loader mapping")
	}
	if err := d.Start(ctx, cell); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := comp.Root.Mapped(loadable.VirtStart + c.RootMapOffset); ok {
		t.Fatal("Start should tear down the loader mapping")
	}
}

func TestDispatcherDCacheCoversWholeRegion(t *testing.T) {
	g := testGeometry(t)
	c := platformconst.Defaults
	r := &region.ColoredRegion{PhysStart: 0x300000, VirtStart: 0xA0000000, Size: g.PageSize * (c.NumTemporaryPages + 2), Colors: 0x1}
	comp := newHarness(t, nil)
	cell := &region.Cell{ID: uuid.New(), ColoredRegions: []*region.ColoredRegion{r}}
	d := New(comp, c, g, 4, nil)

	if err := d.DCache(context.Background(), cell, 1, 0); err != nil {
		t.Fatalf("DCache: %v", err)
	}
	if len(comp.HV.FlushLog()) == 0 {
		t.Fatal("expected at least one flush record")
	}
}
