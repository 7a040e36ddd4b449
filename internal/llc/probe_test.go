package llc

import "testing"

// fakeSysRegReader simulates a fixed cache hierarchy for Probe tests,
// standing in for the real CLIDR_EL1/CCSIDR_EL1 reads.
type fakeSysRegReader struct {
	types    map[int]cacheType
	geometry map[int]levelInfo
}

func (f fakeSysRegReader) CacheType(level int) cacheType {
	if t, ok := f.types[level]; ok {
		return t
	}
	return typeNoCache
}

func (f fakeSysRegReader) CacheGeometry(level int, _ bool) (uint64, uint64, uint64) {
	li := f.geometry[level]
	return li.lineSize, li.assoc, li.sets
}

func TestProbeSelectsLastUnifiedLevel(t *testing.T) {
	reg := fakeSysRegReader{
		types: map[int]cacheType{
			1: typeSplit,
			2: typeUnified,
			3: typeUnified,
		},
		geometry: map[int]levelInfo{
			2: {lineSize: 64, assoc: 4, sets: 256},
			3: {lineSize: 64, assoc: 16, sets: 1024},
		},
	}
	g, err := Probe(reg, 4096)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if g.Level != 3 {
		t.Fatalf("Probe selected level %d, want 3 (last unified)", g.Level)
	}
	if !g.Active() {
		t.Fatal("Probe geometry should be active")
	}
}

func TestProbeNoUnifiedLevel(t *testing.T) {
	reg := fakeSysRegReader{
		types: map[int]cacheType{
			1: typeSplit,
			2: typeDataOnly,
		},
	}
	g, err := Probe(reg, 4096)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if g.Active() {
		t.Fatal("Probe with no unified level should be disabled")
	}
	if g != Disabled {
		t.Fatalf("Probe with no unified level = %+v, want Disabled", g)
	}
}
