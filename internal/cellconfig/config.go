// Package cellconfig loads a cell's declared memory and colored-region
// layout from a YAML descriptor into internal/region's runtime types, the
// driver-context replacement for the source's compiled-in
// jailhouse_cell_desc C struct literals.
//
// Known gap (§9 open question, left unresolved by design): this package
// does not detect overlapping color bitmaps between two managed-mode
// colored regions sharing the same root colored pool. Two cells declaring
// colors=0x0003 and colors=0x0006 will both validate individually and
// then silently alias the same physical frames at runtime. Catching this
// requires cross-cell state this package intentionally does not keep, per
// the distilled specification's instruction to treat the gap as a
// configurer responsibility rather than implement a checker.
package cellconfig

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	"gopkg.in/yaml.v3"
)

var flagNames = []struct {
	name string
	bit  region.Flags
}{
	{"read", region.FlagRead},
	{"write", region.FlagWrite},
	{"execute", region.FlagExecute},
	{"dma", region.FlagDMA},
	{"io", region.FlagIO},
	{"comm_region", region.FlagCommRegion},
	{"loadable", region.FlagLoadable},
	{"root_shared", region.FlagRootShared},
	{"no_hugepages", region.FlagNoHugepages},
	{"colored", region.FlagColored},
	{"colored_cell", region.FlagColoredCell},
	{"io_unaligned", region.FlagIOUnaligned},
}

func parseFlags(names []string) (region.Flags, error) {
	var f region.Flags
	for _, n := range names {
		found := false
		for _, fn := range flagNames {
			if fn.name == n {
				f |= fn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("cellconfig: unknown flag %q", n)
		}
	}
	return f, nil
}

func flagsToNames(f region.Flags) []string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.bit) {
			names = append(names, fn.name)
		}
	}
	return names
}

type yamlMemory struct {
	PhysStart uint64   `yaml:"phys_start"`
	VirtStart uint64   `yaml:"virt_start"`
	Size      uint64   `yaml:"size"`
	Flags     []string `yaml:"flags"`
}

func (m yamlMemory) toMemory() (region.Memory, error) {
	flags, err := parseFlags(m.Flags)
	if err != nil {
		return region.Memory{}, err
	}
	return region.Memory{PhysStart: m.PhysStart, VirtStart: m.VirtStart, Size: m.Size, Flags: flags}, nil
}

func fromMemory(m region.Memory) yamlMemory {
	return yamlMemory{PhysStart: m.PhysStart, VirtStart: m.VirtStart, Size: m.Size, Flags: flagsToNames(m.Flags)}
}

type yamlColoredRegion struct {
	PhysStart    uint64   `yaml:"phys_start"`
	VirtStart    uint64   `yaml:"virt_start"`
	Size         uint64   `yaml:"size"`
	Colors       uint64   `yaml:"colors"`
	RebaseOffset uint64   `yaml:"rebase_offset"`
	Flags        []string `yaml:"flags"`
}

func (r yamlColoredRegion) toColoredRegion() (*region.ColoredRegion, error) {
	flags, err := parseFlags(r.Flags)
	if err != nil {
		return nil, err
	}
	return &region.ColoredRegion{
		PhysStart:    r.PhysStart,
		VirtStart:    r.VirtStart,
		Size:         r.Size,
		Flags:        flags,
		Colors:       r.Colors,
		RebaseOffset: r.RebaseOffset,
	}, nil
}

func fromColoredRegion(r *region.ColoredRegion) yamlColoredRegion {
	return yamlColoredRegion{
		PhysStart:    r.PhysStart,
		VirtStart:    r.VirtStart,
		Size:         r.Size,
		Colors:       r.Colors,
		RebaseOffset: r.RebaseOffset,
		Flags:        flagsToNames(r.Flags),
	}
}

type yamlCell struct {
	Name           string              `yaml:"name"`
	Root           bool                `yaml:"root"`
	StreamIDs      []uint32            `yaml:"stream_ids"`
	MemoryRegions  []yamlMemory        `yaml:"memory_regions"`
	ColoredRegions []yamlColoredRegion `yaml:"colored_regions"`
}

// Load reads and parses a cell descriptor from path, assigning it a fresh
// identity.
func Load(path string) (*region.Cell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cellconfig: reading %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a cell descriptor from raw YAML bytes.
func LoadBytes(data []byte) (*region.Cell, error) {
	var doc yamlCell
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cellconfig: parsing cell descriptor: %w", err)
	}

	cell := &region.Cell{
		ID:        uuid.New(),
		Name:      doc.Name,
		IsRoot:    doc.Root,
		StreamIDs: doc.StreamIDs,
	}
	for _, m := range doc.MemoryRegions {
		mem, err := m.toMemory()
		if err != nil {
			return nil, err
		}
		cell.MemoryRegions = append(cell.MemoryRegions, mem)
	}
	for _, r := range doc.ColoredRegions {
		cr, err := r.toColoredRegion()
		if err != nil {
			return nil, err
		}
		cell.ColoredRegions = append(cell.ColoredRegions, cr)
	}
	return cell, nil
}

// Marshal serializes cell back into a YAML cell descriptor. Round-tripping
// a descriptor through LoadBytes then Marshal then LoadBytes again yields
// an identical MemoryRegions/ColoredRegions/StreamIDs/Name/Root set (§8
// testable property 9); ID is deliberately excluded, since it is assigned
// fresh on every load rather than persisted.
func Marshal(cell *region.Cell) ([]byte, error) {
	doc := yamlCell{
		Name:      cell.Name,
		Root:      cell.IsRoot,
		StreamIDs: cell.StreamIDs,
	}
	for _, m := range cell.MemoryRegions {
		doc.MemoryRegions = append(doc.MemoryRegions, fromMemory(m))
	}
	for _, r := range cell.ColoredRegions {
		doc.ColoredRegions = append(doc.ColoredRegions, fromColoredRegion(r))
	}
	return yaml.Marshal(doc)
}
