// Package lifecycle drives regionop.Execute across every fragment of a
// cell's colored regions for one lifecycle transition (C6): CREATE,
// DESTROY, START, LOAD, DCACHE.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/rntmancuso/jailhouse-rt/internal/backend"
	"github.com/rntmancuso/jailhouse-rt/internal/capability"
	"github.com/rntmancuso/jailhouse-rt/internal/fragment"
	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/llc"
	"github.com/rntmancuso/jailhouse-rt/internal/platformconst"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	"github.com/rntmancuso/jailhouse-rt/internal/regionop"
	log "github.com/sirupsen/logrus"
)

// State is one node of a colored region's lifecycle state machine (§4.6):
// Declared -> Validated -> Mapped -> Loaded -> Running -> Declared.
type State int

const (
	Declared State = iota
	Validated
	Mapped
	Loaded
	Running
)

func (s State) String() string {
	switch s {
	case Declared:
		return "Declared"
	case Validated:
		return "Validated"
	case Mapped:
		return "Mapped"
	case Loaded:
		return "Loaded"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// Dispatcher drives C5 over a cell's colored regions for each lifecycle
// transition, applying §7's error-propagation policy: fail-fast (and
// DESTROY-based rollback) on CREATE/LOAD/START, warn-on-error and never
// abort on DESTROY.
type Dispatcher struct {
	Backend   capability.Backend
	Constants platformconst.Constants
	Geometry  llc.Geometry
	// Scratch gates the per-CPU DCACHE scratch windows DCache claims
	// before streaming a flush through them (§5).
	Scratch *backend.ScratchPool
	Log     *log.Entry
}

// New returns a Dispatcher wired to be, constants and the LLC geometry
// used to plan fragments, with a scratch-window pool sized for cpuCount
// CPUs.
func New(be capability.Backend, c platformconst.Constants, g llc.Geometry, cpuCount int, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Dispatcher{Backend: be, Constants: c, Geometry: g, Scratch: backend.NewScratchPool(cpuCount), Log: logger}
}

// Create plans and maps every colored region of cell (Declared -> Mapped).
// On the first failure, already-applied fragments (of the failing region
// and of every region processed before it) are rolled back via Destroy,
// which tolerates missing mappings, and the original error is returned.
func (d *Dispatcher) Create(ctx context.Context, cell *region.Cell) error {
	applied := 0
	for _, r := range cell.ColoredRegions {
		if err := d.applyRegion(ctx, cell, r, capability.OpCreate, hverrors.AbortOnError); err != nil {
			d.rollback(ctx, cell, applied+1)
			return fmt.Errorf("lifecycle: CREATE region virt=0x%x: %w", r.VirtStart, err)
		}
		if r.Flags.Has(region.FlagColoredCell) || r.Flags.Has(region.FlagColored) {
			if err := d.smmu(ctx, cell, r, capability.OpSMMUCreate); err != nil {
				d.rollback(ctx, cell, applied+1)
				return fmt.Errorf("lifecycle: SMMU_CREATE region virt=0x%x: %w", r.VirtStart, err)
			}
		}
		applied++
	}
	return nil
}

// Destroy unmaps every colored region of cell (Running|Mapped ->
// Declared). Individual fragment failures are logged and never abort;
// shutdown must always make forward progress (§7).
func (d *Dispatcher) Destroy(ctx context.Context, cell *region.Cell) {
	d.rollback(ctx, cell, len(cell.ColoredRegions))
}

func (d *Dispatcher) rollback(ctx context.Context, cell *region.Cell, n int) {
	for i := 0; i < n && i < len(cell.ColoredRegions); i++ {
		r := cell.ColoredRegions[i]
		if err := d.smmu(ctx, cell, r, capability.OpSMMUDestroy); err != nil {
			d.Log.WithError(err).Warn("lifecycle: SMMU_DESTROY failed, continuing")
		}
		if err := d.applyRegion(ctx, cell, r, capability.OpDestroy, hverrors.WarnOnError); err != nil {
			d.Log.WithError(err).Warn("lifecycle: DESTROY failed, continuing")
		}
	}
}

// Load installs the rebased loader mapping for every loadable fragment
// (Mapped -> Loaded), so the root cell can write inmate images into the
// colored frames.
func (d *Dispatcher) Load(ctx context.Context, cell *region.Cell) error {
	return d.applyAll(ctx, cell, capability.OpLoad, hverrors.AbortOnError)
}

// Start tears down the loader mapping for every loadable fragment (Loaded
// -> Running).
func (d *Dispatcher) Start(ctx context.Context, cell *region.Cell) error {
	return d.applyAll(ctx, cell, capability.OpStart, hverrors.AbortOnError)
}

// DCache performs kind's cache-maintenance operation across every
// fragment of cell's colored regions, on behalf of cpu.
func (d *Dispatcher) DCache(ctx context.Context, cell *region.Cell, kind capability.FlushKind, cpu int) error {
	for _, r := range cell.ColoredRegions {
		frags, err := fragment.Plan(r, d.Geometry)
		if err != nil {
			return fmt.Errorf("lifecycle: DCACHE: plan region virt=0x%x: %w", r.VirtStart, err)
		}
		for _, f := range frags {
			if err := regionop.Execute(ctx, d.Backend, d.Constants, cell, f, capability.OpDCache, kind, cpu, d.Scratch, hverrors.AbortOnError, d.Log); err != nil {
				return fmt.Errorf("lifecycle: DCACHE: virt=0x%x: %w", f.VirtStart, err)
			}
		}
	}
	return nil
}

func (d *Dispatcher) applyAll(ctx context.Context, cell *region.Cell, op capability.OpKind, mode hverrors.FailureMode) error {
	for _, r := range cell.ColoredRegions {
		if err := d.applyRegion(ctx, cell, r, op, mode); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) applyRegion(ctx context.Context, cell *region.Cell, r *region.ColoredRegion, op capability.OpKind, mode hverrors.FailureMode) error {
	frags, err := fragment.Plan(r, d.Geometry)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	for _, f := range frags {
		if err := regionop.Execute(ctx, d.Backend, d.Constants, cell, f, op, 0, 0, d.Scratch, mode, d.Log); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) smmu(ctx context.Context, cell *region.Cell, r *region.ColoredRegion, op capability.OpKind) error {
	if !cell.HasSMMU() {
		return nil
	}
	frags, err := fragment.Plan(r, d.Geometry)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	for _, f := range frags {
		if err := regionop.Execute(ctx, d.Backend, d.Constants, cell, f, op, 0, 0, d.Scratch, hverrors.AbortOnError, d.Log); err != nil {
			return err
		}
	}
	return nil
}
