package backend

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
	log "github.com/sirupsen/logrus"
)

// SMMUBackend mirrors Stage2Backend's map/unmap surface in a cell's SMMU
// translation root. It returns hverrors.NotSupported for every operation
// when no SMMU hook was installed at boot, matching §4.5/§7's contract
// ("Fails with not-supported if the SMMU hook was not installed at
// boot").
type SMMUBackend struct {
	mu        sync.Mutex
	installed bool
	mappings  map[uuid.UUID]map[uint64]region.Fragment
	log       *log.Entry
}

// NewSMMUBackend returns an SMMUBackend. installed should be true only
// when the platform's SMMUv2 initialization sequence (out of scope per
// §1) has registered a working hook.
func NewSMMUBackend(installed bool, logger *log.Entry) *SMMUBackend {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &SMMUBackend{
		installed: installed,
		mappings:  make(map[uuid.UUID]map[uint64]region.Fragment),
		log:       logger.WithField("backend", "smmu"),
	}
}

func (b *SMMUBackend) notSupported() error {
	return hverrors.New(hverrors.NotSupported, "SMMU hook was not installed at boot")
}

// SMMUMap mirrors Map in the cell's SMMU page-table root.
func (b *SMMUBackend) SMMUMap(_ context.Context, cell *region.Cell, frag region.Fragment) error {
	if !b.installed {
		return b.notSupported()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mappings[cell.ID]
	if !ok {
		m = make(map[uint64]region.Fragment)
		b.mappings[cell.ID] = m
	}
	m[frag.VirtStart] = frag
	b.log.WithFields(log.Fields{"cell": cell.ID, "virt": frag.VirtStart}).Debug("smmu map")
	return nil
}

// SMMUUnmap mirrors Unmap in the cell's SMMU page-table root.
func (b *SMMUBackend) SMMUUnmap(_ context.Context, cell *region.Cell, frag region.Fragment) error {
	if !b.installed {
		return b.notSupported()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.mappings[cell.ID]; ok {
		delete(m, frag.VirtStart)
	}
	return nil
}

// Installed reports whether an SMMU hook is registered.
func (b *SMMUBackend) Installed() bool { return b.installed }
