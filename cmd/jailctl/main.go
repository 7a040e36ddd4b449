// Command jailctl is the driver-context entry point for the coloring
// subsystem: it loads a cell descriptor, runs it through the validator
// (C8) and the managed/manual resolution of C9, and then hands the
// result to the hypervisor across the ioctl boundary (internal/hvcall).
//
// Grounded structurally on runsc/cli/main.go and runsc/cmd/cmd.go: one
// subcommands.Command implementation per verb, registered exactly the
// way runsc registers "run", "create", "start", and so on.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&validateCmd{}, "")
	subcommands.Register(&createCmd{}, "")
	subcommands.Register(&destroyCmd{}, "")
	subcommands.Register(&startCmd{}, "")
	subcommands.Register(&loadCmd{}, "")
	subcommands.Register(&enableCmd{}, "")
	subcommands.Register(&disableCmd{}, "")

	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	os.Exit(int(subcommands.Execute(context.Background())))
}
