package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/rntmancuso/jailhouse-rt/internal/hvcall"
	log "github.com/sirupsen/logrus"
)

// startCmd implements subcommands.Command for "start": issue
// JAILHOUSE_CELL_START, which on the hypervisor side tears down the
// loader mapping (START, §4.5) and transitions Loaded -> Running.
type startCmd struct {
	device string
	id     int
	name   string
}

func (*startCmd) Name() string     { return "start" }
func (*startCmd) Synopsis() string { return "start a loaded cell" }
func (*startCmd) Usage() string    { return "start -id <n> [-device /dev/jailhouse]\n" }

func (c *startCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.device, "device", "/dev/jailhouse", "hypervisor device file")
	f.IntVar(&c.id, "id", -1, "cell id")
	f.StringVar(&c.name, "name", "", "cell name")
}

func (c *startCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id < 0 {
		log.Error("start: -id is required")
		return subcommands.ExitUsageError
	}
	dev, err := hvcall.Open(c.device)
	if err != nil {
		log.Errorf("start: opening %s: %v", c.device, err)
		return subcommands.ExitFailure
	}
	defer dev.Close()

	if err := dev.CellStart(ctx, int32(c.id), c.name); err != nil {
		log.Errorf("start: cell %d: %v", c.id, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("cell %d started\n", c.id)
	return subcommands.ExitSuccess
}
