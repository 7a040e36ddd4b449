// Package hvcore is the in-process reference harness §5 describes:
// "hypervisor context" realized as C6's lifecycle dispatcher and C7's
// recoloring engine, each invoked under internal/stopworld.Barrier so
// that every cell create/destroy and every enable/disable recoloring
// window runs as one stop-the-world episode, matching the real
// single-core-initiates/others-park call sequence without needing actual
// multi-core EL2 firmware underneath.
package hvcore

import (
	"context"
	"fmt"

	"github.com/rntmancuso/jailhouse-rt/internal/capability"
	"github.com/rntmancuso/jailhouse-rt/internal/lifecycle"
	"github.com/rntmancuso/jailhouse-rt/internal/llc"
	"github.com/rntmancuso/jailhouse-rt/internal/platformconst"
	"github.com/rntmancuso/jailhouse-rt/internal/recolor"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	"github.com/rntmancuso/jailhouse-rt/internal/stopworld"
	log "github.com/sirupsen/logrus"
)

// Hypervisor ties a lifecycle.Dispatcher and a recolor.Engine to one
// shared stopworld.Barrier sized for cpuCount CPUs.
type Hypervisor struct {
	barrier    *stopworld.Barrier
	dispatcher *lifecycle.Dispatcher
	recolor    *recolor.Engine
	log        *log.Entry
}

// New returns a Hypervisor driving be across cpuCount CPUs, using c and
// g as the platform constants and probed LLC geometry. cpuCount of 1
// models a single-core simulation: Release (and therefore every
// operation below) returns as soon as its wrapped call completes,
// since there are no followers to wait for.
func New(be capability.Backend, c platformconst.Constants, g llc.Geometry, cpuCount int, logger *log.Entry) *Hypervisor {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Hypervisor{
		barrier:    stopworld.New(cpuCount),
		dispatcher: lifecycle.New(be, c, g, cpuCount, logger),
		recolor:    recolor.New(be, c, g, logger),
		log:        logger,
	}
}

// Park stands in for a non-initiating CPU waiting out whichever
// stop-the-world episode below is currently in flight. Real followers
// call this from their own goroutine; CellCreate/CellDestroy/Enable/
// Disable all play the initiating-CPU role and call Release.
func (h *Hypervisor) Park(ctx context.Context) error {
	return h.barrier.Park(ctx)
}

// CellCreate runs C6's Create for cell as one stop-the-world episode:
// parked followers are released only once every fragment of cell's
// colored regions has been mapped.
func (h *Hypervisor) CellCreate(ctx context.Context, cell *region.Cell) error {
	var err error
	h.barrier.Release(func() {
		err = h.dispatcher.Create(ctx, cell)
	})
	if err != nil {
		return fmt.Errorf("hvcore: cell create: %w", err)
	}
	return nil
}

// CellDestroy runs C6's Destroy for cell as one stop-the-world episode.
// Destroy never aborts (§7), so there is nothing to propagate.
func (h *Hypervisor) CellDestroy(ctx context.Context, cell *region.Cell) {
	h.barrier.Release(func() {
		h.dispatcher.Destroy(ctx, cell)
	})
}

// Enable runs C7's forward recoloring of the root cell's identity-mapped
// RAM as one stop-the-world episode, the "hypervisor enable" sequence of
// §5.
func (h *Hypervisor) Enable(ctx context.Context, source region.Memory, dest *region.ColoredRegion) error {
	var err error
	h.barrier.Release(func() {
		err = h.recolor.Forward(ctx, source, dest)
	})
	if err != nil {
		return fmt.Errorf("hvcore: enable: %w", err)
	}
	return nil
}

// Disable runs C7's reverse uncoloring of the root cell's RAM as one
// stop-the-world episode, the "hypervisor disable" sequence of §5.
func (h *Hypervisor) Disable(ctx context.Context, source region.Memory, dest *region.ColoredRegion) error {
	var err error
	h.barrier.Release(func() {
		err = h.recolor.Reverse(ctx, source, dest)
	})
	if err != nil {
		return fmt.Errorf("hvcore: disable: %w", err)
	}
	return nil
}
