package hvcore

import (
	"context"
	"sync"
	"testing"
	"time"

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

// TestCellCreateWaitsForParkedFollowers exercises real concurrent
// Park/Release ordering (not just the cpuCount==1 degenerate case):
// CellCreate must not map a single fragment until every follower has
// called Park, and every follower must stay blocked until CellCreate's
// wrapped Create call has returned.
func TestCellCreateWaitsForParkedFollowers(t *testing.T) {
	g := testGeometry(t)
	c := platformconst.Defaults
	region1 := &region.ColoredRegion{PhysStart: 0x100000, VirtStart: 0x80000000, Size: g.PageSize * 2, Colors: 0x3, Flags: region.FlagRead | region.FlagWrite}
	root := []region.Memory{{PhysStart: region1.PhysStart, VirtStart: region1.VirtStart, Size: region1.Size, Flags: region1.Flags}}
	comp := newHarness(t, root)
	cell := &region.Cell{ID: uuid.New(), ColoredRegions: []*region.ColoredRegion{region1}}

	const followers = 2
	h := New(comp, c, g, followers+1, nil)

	var wg sync.WaitGroup
	wg.Add(followers)
	for i := 0; i < followers; i++ {
		go func() {
			defer wg.Done()
			if err := h.Park(context.Background()); err != nil {
				t.Errorf("Park: %v", err)
				return
			}
			if _, ok := comp.Stage2.Mapped(cell.ID, region1.VirtStart); !ok {
				t.Error("follower woke up before CellCreate finished mapping")
			}
		}()
	}

	// give followers a moment to reach Park before CellCreate proceeds.
	time.Sleep(20 * time.Millisecond)

	if err := h.CellCreate(context.Background(), cell); err != nil {
		t.Fatalf("CellCreate: %v", err)
	}
	wg.Wait()

	if _, ok := comp.Stage2.Mapped(cell.ID, region1.VirtStart); !ok {
		t.Fatal("region should be mapped into stage-2 after CellCreate")
	}
}

func TestCellCreateThenDestroyRoundTrips(t *testing.T) {
	g := testGeometry(t)
	c := platformconst.Defaults
	region1 := &region.ColoredRegion{PhysStart: 0x100000, VirtStart: 0x80000000, Size: g.PageSize * 2, Colors: 0x3, Flags: region.FlagRead | region.FlagWrite}
	root := []region.Memory{{PhysStart: region1.PhysStart, VirtStart: region1.VirtStart, Size: region1.Size, Flags: region1.Flags}}
	comp := newHarness(t, root)
	cell := &region.Cell{ID: uuid.New(), ColoredRegions: []*region.ColoredRegion{region1}}

	h := New(comp, c, g, 1, nil)
	ctx := context.Background()

	if err := h.CellCreate(ctx, cell); err != nil {
		t.Fatalf("CellCreate: %v", err)
	}
	if _, ok := comp.Stage2.Mapped(cell.ID, region1.VirtStart); !ok {
		t.Fatal("region should be mapped into stage-2 after CellCreate")
	}

	h.CellDestroy(ctx, cell)
	if _, ok := comp.Stage2.Mapped(cell.ID, region1.VirtStart); ok {
		t.Fatal("region should be unmapped from stage-2 after CellDestroy")
	}
}

func pagePattern(page int) byte { return byte(0x40 + page) }

// TestEnableThenDisableRoundTrips exercises the "hypervisor enable" /
// "hypervisor disable" sequence of §5: forward recoloring under one
// stop-the-world episode followed by reverse uncoloring under another,
// restoring the root cell's original identity layout.
func TestEnableThenDisableRoundTrips(t *testing.T) {
	g := testGeometry(t)
	c := platformconst.Defaults

	source := region.Memory{PhysStart: 0x01000000, VirtStart: 0x80000000, Size: g.PageSize * 3, Flags: region.FlagRead | region.FlagWrite}
	dest := &region.ColoredRegion{PhysStart: 0x02000000, VirtStart: source.VirtStart, Size: source.Size, Colors: 0x1, Flags: source.Flags}

	mem := backend.NewPhysMemory()
	for p := 0; p < 3; p++ {
		mem.Fill(source.PhysStart+uint64(p)*g.PageSize, g.PageSize, pagePattern(p))
	}
	comp := backend.NewComposite(
		backend.NewStage2Backend(nil),
		backend.NewSMMUBackend(true, nil),
		backend.NewRootCellBackend(nil, nil),
		backend.NewHVBackend(mem, 32, nil),
	)
	h := New(comp, c, g, 1, nil)
	ctx := context.Background()

	if err := h.Enable(ctx, source, dest); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	// With Colors=0x1 each destination page sits in its own way stride.
	for p := 0; p < 3; p++ {
		buf := make([]byte, g.PageSize)
		mem.ReadAt(dest.PhysStart+uint64(p)*g.WaySize, buf)
		for _, b := range buf {
			if b != pagePattern(p) {
				t.Fatalf("page %d corrupted after Enable", p)
			}
		}
	}

	if err := h.Disable(ctx, source, dest); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	for p := 0; p < 3; p++ {
		buf := make([]byte, g.PageSize)
		mem.ReadAt(source.PhysStart+uint64(p)*g.PageSize, buf)
		for _, b := range buf {
			if b != pagePattern(p) {
				t.Fatalf("page %d not restored after Disable", p)
			}
		}
	}
}
