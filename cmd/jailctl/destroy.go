package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/rntmancuso/jailhouse-rt/internal/hvcall"
	log "github.com/sirupsen/logrus"
)

// destroyCmd implements subcommands.Command for "destroy": issue
// JAILHOUSE_CELL_DESTROY, after which the hypervisor runs the
// warn-on-error teardown of C6/C5 (§7) and never aborts partway.
type destroyCmd struct {
	device string
	id     int
	name   string
}

func (*destroyCmd) Name() string     { return "destroy" }
func (*destroyCmd) Synopsis() string { return "destroy a running cell" }
func (*destroyCmd) Usage() string    { return "destroy -id <n> [-device /dev/jailhouse]\n" }

func (c *destroyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.device, "device", "/dev/jailhouse", "hypervisor device file")
	f.IntVar(&c.id, "id", -1, "cell id")
	f.StringVar(&c.name, "name", "", "cell name")
}

func (c *destroyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id < 0 {
		log.Error("destroy: -id is required")
		return subcommands.ExitUsageError
	}
	dev, err := hvcall.Open(c.device)
	if err != nil {
		log.Errorf("destroy: opening %s: %v", c.device, err)
		return subcommands.ExitFailure
	}
	defer dev.Close()

	if err := dev.CellDestroy(ctx, int32(c.id), c.name); err != nil {
		log.Errorf("destroy: cell %d: %v", c.id, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("cell %d destroyed\n", c.id)
	return subcommands.ExitSuccess
}
