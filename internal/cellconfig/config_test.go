package cellconfig

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
)

const sampleYAML = `
name: inmate0
root: false
stream_ids: [7, 8]
memory_regions:
  - phys_start: 0x100000
    virt_start: 0x1000
    size: 0x1000
    flags: [read, write]
colored_regions:
  - phys_start: 0
    virt_start: 0x80000000
    size: 0x40000
    colors: 0xf00
    rebase_offset: 0
    flags: [read, write, loadable]
`

func TestLoadBytesParsesCellDescriptor(t *testing.T) {
	cell, err := LoadBytes([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if cell.Name != "inmate0" || cell.IsRoot {
		t.Fatalf("got name=%q root=%v", cell.Name, cell.IsRoot)
	}
	if len(cell.StreamIDs) != 2 || cell.StreamIDs[0] != 7 {
		t.Fatalf("got stream ids %+v", cell.StreamIDs)
	}
	if len(cell.MemoryRegions) != 1 || cell.MemoryRegions[0].PhysStart != 0x100000 {
		t.Fatalf("got memory regions %+v", cell.MemoryRegions)
	}
	if !cell.MemoryRegions[0].Flags.Has(region.FlagRead | region.FlagWrite) {
		t.Fatalf("expected read|write flags, got %v", cell.MemoryRegions[0].Flags)
	}
	if len(cell.ColoredRegions) != 1 || cell.ColoredRegions[0].Colors != 0xf00 {
		t.Fatalf("got colored regions %+v", cell.ColoredRegions)
	}
	if !cell.ColoredRegions[0].IsManaged() {
		t.Fatal("expected phys_start=0 to parse as a managed region")
	}
}

func TestMarshalLoadRoundTrips(t *testing.T) {
	original, err := LoadBytes([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	reloaded, err := LoadBytes(data)
	if err != nil {
		t.Fatalf("LoadBytes(round-trip): %v", err)
	}

	if diff := cmp.Diff(original.Name, reloaded.Name); diff != "" {
		t.Fatalf("Name diff: %s", diff)
	}
	if diff := cmp.Diff(original.IsRoot, reloaded.IsRoot); diff != "" {
		t.Fatalf("IsRoot diff: %s", diff)
	}
	if diff := cmp.Diff(original.StreamIDs, reloaded.StreamIDs); diff != "" {
		t.Fatalf("StreamIDs diff: %s", diff)
	}
	if diff := cmp.Diff(original.MemoryRegions, reloaded.MemoryRegions); diff != "" {
		t.Fatalf("MemoryRegions diff: %s", diff)
	}
	if diff := cmp.Diff(original.ColoredRegions, reloaded.ColoredRegions); diff != "" {
		t.Fatalf("ColoredRegions diff: %s", diff)
	}
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	_, err := LoadBytes([]byte(`
name: bad
memory_regions:
  - phys_start: 0
    virt_start: 0
    size: 0x1000
    flags: [bogus]
`))
	if err == nil {
		t.Fatal("expected an error for an unknown flag name")
	}
}
