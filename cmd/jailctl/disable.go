package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/rntmancuso/jailhouse-rt/internal/hvcall"
	log "github.com/sirupsen/logrus"
)

// disableCmd implements subcommands.Command for "disable": issue
// JAILHOUSE_DISABLE, which on the hypervisor side runs C7's reverse
// uncoloring of the root cell before control returns to Linux (§4.7).
type disableCmd struct {
	device string
}

func (*disableCmd) Name() string     { return "disable" }
func (*disableCmd) Synopsis() string { return "disable the hypervisor" }
func (*disableCmd) Usage() string    { return "disable [-device /dev/jailhouse]\n" }

func (c *disableCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.device, "device", "/dev/jailhouse", "hypervisor device file")
}

func (c *disableCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dev, err := hvcall.Open(c.device)
	if err != nil {
		log.Errorf("disable: opening %s: %v", c.device, err)
		return subcommands.ExitFailure
	}
	defer dev.Close()

	if err := dev.Disable(ctx); err != nil {
		log.Errorf("disable: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Println("hypervisor disabled")
	return subcommands.ExitSuccess
}
