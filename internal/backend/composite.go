package backend

import (
	"context"

	"github.com/rntmancuso/jailhouse-rt/internal/capability"
	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
)

// Composite wires Stage2Backend, SMMUBackend, RootCellBackend and
// HVBackend together behind the single capability.Backend interface the
// coloring core consumes. It holds no logic of its own beyond
// delegation: each capability concern keeps living in its own small,
// independently testable type, the way the teacher keeps ring0's paging
// concern and sentry's memory-accounting concern in separate packages
// behind a common platform.Platform surface.
type Composite struct {
	Stage2 *Stage2Backend
	SMMU   *SMMUBackend
	Root   *RootCellBackend
	HV     *HVBackend
}

var _ capability.Backend = (*Composite)(nil)

// NewComposite assembles a Composite from its four concrete backends.
func NewComposite(stage2 *Stage2Backend, smmu *SMMUBackend, root *RootCellBackend, hv *HVBackend) *Composite {
	return &Composite{Stage2: stage2, SMMU: smmu, Root: root, HV: hv}
}

func (c *Composite) Map(ctx context.Context, cell *region.Cell, frag region.Fragment) error {
	return c.Stage2.Map(ctx, cell, frag)
}

func (c *Composite) Unmap(ctx context.Context, cell *region.Cell, frag region.Fragment) error {
	return c.Stage2.Unmap(ctx, cell, frag)
}

func (c *Composite) Subpage(ctx context.Context, cell *region.Cell, frag region.Fragment) error {
	return c.Stage2.Subpage(ctx, cell, frag)
}

func (c *Composite) UnmapFromRoot(ctx context.Context, frag region.Fragment) error {
	return c.Root.UnmapFromRoot(ctx, frag)
}

func (c *Composite) RemapToRoot(ctx context.Context, frag region.Fragment, mode hverrors.FailureMode) error {
	return c.Root.RemapToRoot(ctx, frag, mode)
}

func (c *Composite) SMMUMap(ctx context.Context, cell *region.Cell, frag region.Fragment) error {
	return c.SMMU.SMMUMap(ctx, cell, frag)
}

func (c *Composite) SMMUUnmap(ctx context.Context, cell *region.Cell, frag region.Fragment) error {
	return c.SMMU.SMMUUnmap(ctx, cell, frag)
}

func (c *Composite) PagingCreate(ctx context.Context, phys, size, virt uint64, flags region.Flags) error {
	return c.HV.PagingCreate(ctx, phys, size, virt, flags)
}

func (c *Composite) PagingDestroy(ctx context.Context, virt, size uint64) error {
	return c.HV.PagingDestroy(ctx, virt, size)
}

func (c *Composite) DCacheFlushByVA(ctx context.Context, vbase, size uint64, kind capability.FlushKind) error {
	return c.HV.DCacheFlushByVA(ctx, vbase, size, kind)
}

func (c *Composite) AllocPoolPages(n int) ([]uintptr, error) {
	return c.HV.AllocPoolPages(n)
}

func (c *Composite) FreePoolPages(pages []uintptr) {
	c.HV.FreePoolPages(pages)
}

func (c *Composite) ReadAt(ctx context.Context, virt uint64, buf []byte) error {
	return c.HV.ReadAt(ctx, virt, buf)
}

func (c *Composite) WriteAt(ctx context.Context, virt uint64, buf []byte) error {
	return c.HV.WriteAt(ctx, virt, buf)
}
