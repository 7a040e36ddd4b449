package region

// Fragment is a single contiguous physical/virtual slice produced by the
// fragment planner (§4.4) — the unit of map/unmap. Fragments are
// transient: created and consumed within a single lifecycle operation,
// never aliased or stored past it.
type Fragment struct {
	PhysStart uint64
	VirtStart uint64
	Size      uint64
	Flags     Flags
}

// Memory projects this fragment back to the ordinary Memory shape the
// capability backends operate on.
func (f Fragment) Memory() Memory {
	return Memory{
		PhysStart: f.PhysStart,
		VirtStart: f.VirtStart,
		Size:      f.Size,
		Flags:     f.Flags,
	}
}

// IsSubpage reports whether this fragment must be routed through the MMIO
// subpage registrar instead of a full page-table mapping.
func (f Fragment) IsSubpage() bool {
	return f.Memory().IsSubpage()
}

// End returns the exclusive end of this fragment's virtual range.
func (f Fragment) End() uint64 {
	return f.VirtStart + f.Size
}

// PhysEnd returns the exclusive end of this fragment's physical range.
func (f Fragment) PhysEnd() uint64 {
	return f.PhysStart + f.Size
}

// WithRebase returns a copy of frag with rebase added to PhysStart, used by
// the planner to honor ColoredRegion.RebaseOffset.
func (f Fragment) WithRebase(rebase uint64) Fragment {
	f.PhysStart += rebase
	return f
}
