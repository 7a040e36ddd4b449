package backend

import (
	"fmt"
	"sync"
)

const physPageShift = 12
const physPageSize = 1 << physPageShift

// PhysMemory is a sparse, page-granular byte-addressable store standing in
// for the board's physical RAM. It gives HVBackend and the recoloring
// engine something real to read and write, so this module's tests can
// assert the recoloring engine actually preserves bytes end to end (§8
// invariant 5) instead of only asserting on mapping bookkeeping.
type PhysMemory struct {
	mu    sync.Mutex
	pages map[uint64]*[physPageSize]byte
}

// NewPhysMemory returns an empty PhysMemory; every page reads as zero
// until written.
func NewPhysMemory() *PhysMemory {
	return &PhysMemory{pages: make(map[uint64]*[physPageSize]byte)}
}

func (m *PhysMemory) page(frame uint64, create bool) *[physPageSize]byte {
	p, ok := m.pages[frame]
	if !ok {
		if !create {
			return nil
		}
		p = &[physPageSize]byte{}
		m.pages[frame] = p
	}
	return p
}

// ReadAt copies len(buf) bytes starting at physical address phys into buf.
func (m *PhysMemory) ReadAt(phys uint64, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(buf) > 0 {
		frame := phys &^ (physPageSize - 1)
		off := phys & (physPageSize - 1)
		n := uint64(physPageSize) - off
		if n > uint64(len(buf)) {
			n = uint64(len(buf))
		}
		if p := m.page(frame, false); p != nil {
			copy(buf[:n], p[off:off+n])
		} else {
			for i := uint64(0); i < n; i++ {
				buf[i] = 0
			}
		}
		buf = buf[n:]
		phys += n
	}
}

// WriteAt copies buf into physical memory starting at phys.
func (m *PhysMemory) WriteAt(phys uint64, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(buf) > 0 {
		frame := phys &^ (physPageSize - 1)
		off := phys & (physPageSize - 1)
		n := uint64(physPageSize) - off
		if n > uint64(len(buf)) {
			n = uint64(len(buf))
		}
		p := m.page(frame, true)
		copy(p[off:off+n], buf[:n])
		buf = buf[n:]
		phys += n
	}
}

// Fill writes a repeating byte pattern, used by tests to seed a region
// with recognizable content before a recolor and assert it survives.
func (m *PhysMemory) Fill(phys, size uint64, pattern byte) {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = pattern
	}
	m.WriteAt(phys, buf)
}

// Equal reports whether [aPhys,aPhys+size) and [bPhys,bPhys+size) hold
// identical bytes, used by recoloring fidelity tests.
func (m *PhysMemory) Equal(aPhys, bPhys, size uint64) (bool, error) {
	if size == 0 {
		return true, nil
	}
	a := make([]byte, size)
	b := make([]byte, size)
	m.ReadAt(aPhys, a)
	m.ReadAt(bPhys, b)
	for i := range a {
		if a[i] != b[i] {
			return false, fmt.Errorf("byte mismatch at offset %d: %#x != %#x", i, a[i], b[i])
		}
	}
	return true, nil
}
