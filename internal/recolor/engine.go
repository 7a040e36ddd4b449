// Package recolor implements the root-cell dynamic recoloring engine
// (C7): converting the already-running root OS's identity-mapped RAM into
// a color-restricted physical layout in place at hypervisor enable, and
// reversing that conversion at shutdown.
//
// This is the single most safety-critical piece of the subsystem (§9):
// the colored destination range and the original identity source range
// may overlap in physical address space, so copy order is load-bearing,
// not stylistic. Get it backwards and the streaming copy overwrites
// source pages before they are read.
package recolor

import (
	"context"
	"fmt"

	"github.com/rntmancuso/jailhouse-rt/internal/capability"
	"github.com/rntmancuso/jailhouse-rt/internal/fragment"
	"github.com/rntmancuso/jailhouse-rt/internal/llc"
	"github.com/rntmancuso/jailhouse-rt/internal/platformconst"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	log "github.com/sirupsen/logrus"
)

// Engine drives the forward/reverse root recoloring copy against a
// capability.Backend.
type Engine struct {
	Backend   capability.Backend
	Constants platformconst.Constants
	Geometry  llc.Geometry
	Log       *log.Entry
}

// New returns an Engine wired to backend, constants and the probed LLC
// geometry.
func New(backend capability.Backend, c platformconst.Constants, g llc.Geometry, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Engine{Backend: backend, Constants: c, Geometry: g, Log: logger}
}

// Forward converts source's identity-mapped RAM into dest's colored
// physical layout, in place, without losing its contents (§4.7 forward
// algorithm). dest.PhysStart must already be resolved (not a managed,
// unresolved region).
//
// Grounded on colored_copy in
// original_source/hypervisor/arch/arm64/coloring.c: HV_CREATE the colored
// destination mapping, stream the copy backwards in both slice and page
// order (mandatory: the colored range may overlap the source range, and
// copying forwards would overwrite unread source pages), then HV_DESTROY.
func (e *Engine) Forward(ctx context.Context, source region.Memory, dest *region.ColoredRegion) error {
	if dest.IsManaged() {
		return fmt.Errorf("recolor: forward: destination region is unresolved (managed, phys_start=0)")
	}
	frags, err := fragment.Plan(dest, e.Geometry)
	if err != nil {
		return fmt.Errorf("recolor: forward: plan: %w", err)
	}
	if err := e.installDestMapping(ctx, frags); err != nil {
		return fmt.Errorf("recolor: forward: %w", err)
	}
	defer e.teardownDestMapping(ctx, frags)

	e.Log.WithFields(log.Fields{"virt": dest.VirtStart, "size": dest.Size}).Info("recolor: forward copy starting")
	return e.streamCopy(ctx, source, dest, true /* reverse order */, true /* source -> dest */)
}

// Reverse converts dest's colored physical layout back into source's
// original identity layout (§4.7 reverse), used at hypervisor shutdown.
// Structurally identical to Forward but copies in forward slice and page
// order, since it runs after Forward already relocated every page and the
// overlap hazard runs the other way.
func (e *Engine) Reverse(ctx context.Context, source region.Memory, dest *region.ColoredRegion) error {
	if dest.IsManaged() {
		return fmt.Errorf("recolor: reverse: destination region is unresolved (managed, phys_start=0)")
	}
	frags, err := fragment.Plan(dest, e.Geometry)
	if err != nil {
		return fmt.Errorf("recolor: reverse: plan: %w", err)
	}
	if err := e.installDestMapping(ctx, frags); err != nil {
		return fmt.Errorf("recolor: reverse: %w", err)
	}
	defer e.teardownDestMapping(ctx, frags)

	e.Log.WithFields(log.Fields{"virt": dest.VirtStart, "size": dest.Size}).Info("recolor: reverse copy (uncolor) starting")
	return e.streamCopy(ctx, source, dest, false /* forward order */, false /* dest -> source */)
}

func (e *Engine) installDestMapping(ctx context.Context, frags []region.Fragment) error {
	for i, f := range frags {
		if err := e.Backend.PagingCreate(ctx, f.PhysStart, f.Size, f.VirtStart+e.Constants.RootMapOffset, f.Flags); err != nil {
			// unwind whatever was installed so far.
			e.teardownDestMapping(ctx, frags[:i])
			return fmt.Errorf("hv_create fragment %d: %w", i, err)
		}
	}
	return nil
}

func (e *Engine) teardownDestMapping(ctx context.Context, frags []region.Fragment) {
	for _, f := range frags {
		if err := e.Backend.PagingDestroy(ctx, f.VirtStart+e.Constants.RootMapOffset, f.Size); err != nil {
			e.Log.WithError(err).Warn("recolor: hv_destroy failed, continuing")
		}
	}
}

// streamCopy moves dest.Size bytes between source (identity-mapped, at
// source.PhysStart) and dest's already-installed colored mapping, in
// slices of NUM_TEMPORARY_PAGES pages. When reverseOrder is set, both the
// slice loop and the inner page loop run from the high end down; when
// sourceToDest is set, bytes flow source -> dest, otherwise dest ->
// source.
func (e *Engine) streamCopy(ctx context.Context, source region.Memory, dest *region.ColoredRegion, reverseOrder, sourceToDest bool) error {
	pageSize := e.Constants.PageSize
	sliceBytes := e.Constants.NumTemporaryPages * pageSize
	total := dest.Size
	numSlices := (total + sliceBytes - 1) / sliceBytes

	for i := uint64(0); i < numSlices; i++ {
		idx := i
		if reverseOrder {
			idx = numSlices - 1 - i
		}
		sliceOff := idx * sliceBytes
		sliceSize := sliceBytes
		if sliceOff+sliceSize > total {
			sliceSize = total - sliceOff
		}

		sourcePhys := source.PhysStart + sliceOff
		if err := e.Backend.PagingCreate(ctx, sourcePhys, sliceSize, e.Constants.RecolorScratchBase, source.Flags); err != nil {
			return fmt.Errorf("streamCopy: source alias slice %d: %w", idx, err)
		}

		if err := e.copySlice(ctx, dest, sliceOff, sliceSize, pageSize, reverseOrder, sourceToDest); err != nil {
			_ = e.Backend.PagingDestroy(ctx, e.Constants.RecolorScratchBase, sliceSize)
			return err
		}

		if err := e.Backend.PagingDestroy(ctx, e.Constants.RecolorScratchBase, sliceSize); err != nil {
			return fmt.Errorf("streamCopy: destroy source alias slice %d: %w", idx, err)
		}
	}
	return nil
}

func (e *Engine) copySlice(ctx context.Context, dest *region.ColoredRegion, sliceOff, sliceSize, pageSize uint64, reverseOrder, sourceToDest bool) error {
	pages := sliceSize / pageSize
	buf := make([]byte, pageSize)
	for p := uint64(0); p < pages; p++ {
		pi := p
		if reverseOrder {
			pi = pages - 1 - p
		}
		pageOff := pi * pageSize
		sourceVirt := e.Constants.RecolorScratchBase + pageOff
		destVirt := dest.VirtStart + sliceOff + pageOff + e.Constants.RootMapOffset

		readVirt, writeVirt := sourceVirt, destVirt
		if !sourceToDest {
			readVirt, writeVirt = destVirt, sourceVirt
		}
		if err := e.Backend.ReadAt(ctx, readVirt, buf); err != nil {
			return fmt.Errorf("copySlice: read virt=0x%x: %w", readVirt, err)
		}
		if err := e.Backend.WriteAt(ctx, writeVirt, buf); err != nil {
			return fmt.Errorf("copySlice: write virt=0x%x: %w", writeVirt, err)
		}
	}
	return nil
}
