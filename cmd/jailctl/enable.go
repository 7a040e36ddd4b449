package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/rntmancuso/jailhouse-rt/internal/backend"
	"github.com/rntmancuso/jailhouse-rt/internal/cellconfig"
	"github.com/rntmancuso/jailhouse-rt/internal/hvcall"
	"github.com/rntmancuso/jailhouse-rt/internal/hvcore"
	"github.com/rntmancuso/jailhouse-rt/internal/platformconst"
	log "github.com/sirupsen/logrus"
)

// enableCmd implements subcommands.Command for "enable": issue
// JAILHOUSE_ENABLE with the serialized system configuration (the root
// cell descriptor plus platform constants), which on the hypervisor side
// triggers C2's cache probe and C7's forward recoloring of the root
// cell's RAM before the ioctl returns.
//
// -simulate replaces the ioctl with internal/hvcore's in-process harness,
// running the root cell's forward recoloring followed immediately by its
// reverse, against synthetic memory, as a dry-run of the C7 copy rather
// than the opaque serialized payload -system-config otherwise sends.
type enableCmd struct {
	device       string
	systemConfig string
	simulate     bool
	rootCellPath string
	geom         geometryFlags
}

func (*enableCmd) Name() string     { return "enable" }
func (*enableCmd) Synopsis() string { return "enable the hypervisor with a system configuration" }
func (*enableCmd) Usage() string {
	return "enable -system-config <path> [-device /dev/jailhouse]\n       enable -simulate -root-cell <path>\n"
}

func (c *enableCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.device, "device", "/dev/jailhouse", "hypervisor device file")
	f.StringVar(&c.systemConfig, "system-config", "", "path to the serialized system configuration")
	f.BoolVar(&c.simulate, "simulate", false, "run forward+reverse recoloring in-process against synthetic memory instead of opening -device")
	f.StringVar(&c.rootCellPath, "root-cell", "", "path to the root cell's YAML descriptor (required with -simulate)")
	c.geom.register(f)
}

func (c *enableCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.simulate {
		return c.simulateEnable(ctx)
	}
	if c.systemConfig == "" {
		log.Error("enable: -system-config is required")
		return subcommands.ExitUsageError
	}
	cfg, err := os.ReadFile(c.systemConfig)
	if err != nil {
		log.Errorf("enable: %v", err)
		return subcommands.ExitFailure
	}
	dev, err := hvcall.Open(c.device)
	if err != nil {
		log.Errorf("enable: opening %s: %v", c.device, err)
		return subcommands.ExitFailure
	}
	defer dev.Close()

	if err := dev.Enable(ctx, cfg); err != nil {
		log.Errorf("enable: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Println("hypervisor enabled")
	return subcommands.ExitSuccess
}

// simulateEnable runs the root cell's forward recoloring followed
// immediately by its reverse in-process, pairing the root cell
// descriptor's first declared identity memory region (the pre-coloring
// source layout) with its first declared colored region (the resolved
// destination layout) the way the real C7 copy pairs them at hypervisor
// enable/disable.
func (c *enableCmd) simulateEnable(ctx context.Context) subcommands.ExitStatus {
	if c.rootCellPath == "" {
		log.Error("enable: -root-cell is required with -simulate")
		return subcommands.ExitUsageError
	}
	cell, err := cellconfig.Load(c.rootCellPath)
	if err != nil {
		log.Errorf("enable: %v", err)
		return subcommands.ExitFailure
	}
	if !cell.IsRoot {
		log.Error("enable: -simulate requires a root cell descriptor")
		return subcommands.ExitUsageError
	}
	if len(cell.MemoryRegions) == 0 || len(cell.ColoredRegions) == 0 {
		log.Error("enable: -simulate requires at least one memory_region (source) and one colored_region (destination)")
		return subcommands.ExitUsageError
	}
	source := cell.MemoryRegions[0]
	dest := cell.ColoredRegions[0]
	if dest.IsManaged() {
		log.Error("enable: -simulate requires the root cell's colored region to declare an explicit phys_start")
		return subcommands.ExitFailure
	}

	g, err := c.geom.geometry()
	if err != nil {
		log.Errorf("enable: %v", err)
		return subcommands.ExitFailure
	}
	pc := platformconst.Defaults
	mem := backend.NewPhysMemory()
	mem.Fill(source.PhysStart, source.Size, 0xAA)
	comp := backend.NewComposite(
		backend.NewStage2Backend(nil),
		backend.NewSMMUBackend(true, nil),
		backend.NewRootCellBackend(nil, nil),
		backend.NewHVBackend(mem, 64, nil),
	)
	h := hvcore.New(comp, pc, g, 1, nil)

	if err := h.Enable(ctx, source, dest); err != nil {
		log.Errorf("enable: simulate: forward recoloring: %v", err)
		return subcommands.ExitFailure
	}
	if err := h.Disable(ctx, source, dest); err != nil {
		log.Errorf("enable: simulate: reverse recoloring: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("root cell %q forward+reverse recoloring simulated successfully\n", cell.Name)
	return subcommands.ExitSuccess
}
