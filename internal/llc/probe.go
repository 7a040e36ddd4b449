package llc

import "fmt"

// maxCacheLevels bounds the CLIDR_EL1 walk, matching MAX_CACHE_LEVELS in
// original_source/hypervisor/arch/arm64/coloring.c.
const maxCacheLevels = 7

// cacheType mirrors enum clidr_ctype from coloring.c.
type cacheType uint8

const (
	typeNoCache cacheType = iota
	typeInstructionOnly
	typeDataOnly
	typeSplit
	typeUnified
)

// levelInfo is what SysRegReader reports for one present cache level.
type levelInfo struct {
	typ       cacheType
	lineSize  uint64
	assoc     uint64
	sets      uint64
}

// SysRegReader abstracts the EL2 system-register reads (CLIDR_EL1,
// CSSELR_EL1, CCSIDR_EL1) that coloring_cache_detect performs. Production
// code backs this with a handful of MRS/MSR instructions; tests back it
// with a synthetic hierarchy.
type SysRegReader interface {
	// CacheType returns the type of cache level (1-based) n, or
	// typeNoCache if the level is absent.
	CacheType(level int) cacheType
	// CacheGeometry selects level n (and, for split caches, the
	// instruction or data side per instructionSide) and returns its
	// line size, associativity and set count.
	CacheGeometry(level int, instructionSide bool) (lineSize, assoc, sets uint64)
}

// Probe walks the cache hierarchy from L1 upward through at most
// maxCacheLevels levels, selects the last unified level, and derives the
// Geometry from it. If no unified level exists, it returns Disabled and a
// nil error: declaring a colored region on such a platform is a
// configuration error to be raised by the validator, not by the probe
// itself (§4.2).
//
// Grounded on coloring_cache_detect in
// original_source/hypervisor/arch/arm64/coloring.c.
func Probe(reg SysRegReader, pageSize uint64) (Geometry, error) {
	selectedLevel := -1
	var li levelInfo

	for level := 1; level <= maxCacheLevels; level++ {
		typ := reg.CacheType(level)
		if typ == typeNoCache {
			continue
		}

		ls, assoc, sets := reg.CacheGeometry(level, false)

		if typ == typeSplit {
			// Instruction-side geometry is probed for
			// completeness/logging parity with the original but
			// never selected for coloring.
			reg.CacheGeometry(level, true)
		}

		if typ == typeUnified {
			selectedLevel = level
			li = levelInfo{typ: typ, lineSize: ls, assoc: assoc, sets: sets}
		}
	}

	if selectedLevel == -1 {
		return Disabled, nil
	}

	g, err := NewGeometry(pageSize, li.lineSize, li.assoc, li.sets, selectedLevel)
	if err != nil {
		return Disabled, fmt.Errorf("llc: probe selected level %d but geometry is invalid: %w", selectedLevel, err)
	}
	return g, nil
}
