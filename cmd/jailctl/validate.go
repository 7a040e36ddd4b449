package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/rntmancuso/jailhouse-rt/internal/cellconfig"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	"github.com/rntmancuso/jailhouse-rt/internal/validate"
	log "github.com/sirupsen/logrus"
)

// validateCmd implements subcommands.Command for "validate": run a cell
// descriptor through C8/C9 without talking to the hypervisor at all.
type validateCmd struct {
	cellPath      string
	rootPoolBase  uint64
	rootPoolSize  uint64
	geom          geometryFlags
}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "validate a cell descriptor's colored regions" }
func (*validateCmd) Usage() string {
	return "validate -cell <path> [-root-pool-base N -root-pool-size N]\n"
}

func (c *validateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cellPath, "cell", "", "path to the cell's YAML descriptor")
	f.Uint64Var(&c.rootPoolBase, "root-pool-base", 0, "root colored region physical base (0 if none declared)")
	f.Uint64Var(&c.rootPoolSize, "root-pool-size", 0, "root colored region size in bytes")
	c.geom.register(f)
}

func (c *validateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.cellPath == "" {
		log.Error("validate: -cell is required")
		return subcommands.ExitUsageError
	}
	cell, err := cellconfig.Load(c.cellPath)
	if err != nil {
		log.Errorf("validate: %v", err)
		return subcommands.ExitFailure
	}
	g, err := c.geom.geometry()
	if err != nil {
		log.Errorf("validate: %v", err)
		return subcommands.ExitFailure
	}

	if cell.IsRoot {
		validate.StripRootManaged(cell)
		fmt.Printf("cell %q (root) OK: %d ordinary region(s), %d colored region(s) remain\n",
			cell.Name, len(cell.MemoryRegions), len(cell.ColoredRegions))
		return subcommands.ExitSuccess
	}

	var root *region.RootColoredRegion
	if c.rootPoolSize > 0 {
		root = &region.RootColoredRegion{PhysStart: c.rootPoolBase, Size: c.rootPoolSize}
	}
	if err := validate.Validate(cell, root, g); err != nil {
		log.Errorf("validate: cell %q rejected: %v", cell.Name, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("cell %q OK: %d colored region(s) validated\n", cell.Name, len(cell.ColoredRegions))
	for _, r := range cell.ColoredRegions {
		fmt.Printf("  phys=0x%x virt=0x%x size=0x%x colors=0x%x\n", r.PhysStart, r.VirtStart, r.Size, r.Colors)
	}
	return subcommands.ExitSuccess
}
