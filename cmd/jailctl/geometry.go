package main

import (
	"flag"

	"github.com/rntmancuso/jailhouse-rt/internal/llc"
)

// geometryFlags is the set of raw cache parameters the validate/create
// commands need to reconstruct the llc.Geometry a running hypervisor
// would have probed at enable (§4.2). In production the driver reads
// these back from the hypervisor rather than specifying them on the
// command line; exposing them as flags keeps jailctl usable against a
// simulated device in the absence of real EL2 firmware.
type geometryFlags struct {
	pageSize uint64
	lineSize uint64
	assoc    uint64
	sets     uint64
	level    int
}

func (g *geometryFlags) register(f *flag.FlagSet) {
	f.Uint64Var(&g.pageSize, "page-size", 4096, "page size in bytes")
	f.Uint64Var(&g.lineSize, "line-size", 64, "last-level cache line size in bytes")
	f.Uint64Var(&g.assoc, "assoc", 16, "last-level cache associativity")
	f.Uint64Var(&g.sets, "sets", 1024, "last-level cache set count")
	f.IntVar(&g.level, "cache-level", 2, "1-based cache level selected for coloring")
}

func (g *geometryFlags) geometry() (llc.Geometry, error) {
	return llc.NewGeometry(g.pageSize, g.lineSize, g.assoc, g.sets, g.level)
}
