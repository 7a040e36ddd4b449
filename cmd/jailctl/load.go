package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"github.com/rntmancuso/jailhouse-rt/internal/hvcall"
	log "github.com/sirupsen/logrus"
)

// imageFlags collects repeated -image src:size:target values into
// hvcall.PreloadImage entries, in the spirit of the teacher's intFlags
// (runsc/cmd/cmd.go) for flags that may be repeated.
type imageFlags []hvcall.PreloadImage

func (i *imageFlags) String() string { return fmt.Sprintf("%v", *i) }

func (i *imageFlags) Set(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return fmt.Errorf("expected src:size:target, got %q", s)
	}
	src, err := strconv.ParseUint(parts[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid source address %q: %w", parts[0], err)
	}
	size, err := strconv.ParseUint(parts[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", parts[1], err)
	}
	target, err := strconv.ParseUint(parts[2], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid target address %q: %w", parts[2], err)
	}
	*i = append(*i, hvcall.PreloadImage{SourceAddress: src, Size: size, TargetAddress: target})
	return nil
}

// loadCmd implements subcommands.Command for "load": issue
// JAILHOUSE_CELL_LOAD so the hypervisor writes each preload image into
// the cell's loadable colored fragments while the LOAD-state loader
// mapping is installed (§4.5 LOAD).
type loadCmd struct {
	device string
	id     int
	name   string
	images imageFlags
}

func (*loadCmd) Name() string     { return "load" }
func (*loadCmd) Synopsis() string { return "load preload images into a created cell" }
func (*loadCmd) Usage() string {
	return "load -id <n> -image src:size:target [-image ...] [-device /dev/jailhouse]\n"
}

func (c *loadCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.device, "device", "/dev/jailhouse", "hypervisor device file")
	f.IntVar(&c.id, "id", -1, "cell id")
	f.StringVar(&c.name, "name", "", "cell name")
	f.Var(&c.images, "image", "src:size:target, may be repeated")
}

func (c *loadCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id < 0 {
		log.Error("load: -id is required")
		return subcommands.ExitUsageError
	}
	if len(c.images) == 0 {
		log.Error("load: at least one -image is required")
		return subcommands.ExitUsageError
	}
	dev, err := hvcall.Open(c.device)
	if err != nil {
		log.Errorf("load: opening %s: %v", c.device, err)
		return subcommands.ExitFailure
	}
	defer dev.Close()

	if err := dev.CellLoad(ctx, int32(c.id), c.name, c.images); err != nil {
		log.Errorf("load: cell %d: %v", c.id, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("cell %d: loaded %d image(s)\n", c.id, len(c.images))
	return subcommands.ExitSuccess
}
