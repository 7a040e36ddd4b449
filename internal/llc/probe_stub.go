//go:build !arm64

package llc

// stubSysRegReader is used on any GOARCH other than arm64 (development,
// CI, and the driver-context binaries that never run at EL2). It reports
// no cache levels present at all, so Probe returns Disabled, matching
// §4.2's "no unified level" branch.
type stubSysRegReader struct{}

// NewHardwareReader on non-arm64 targets always yields a reader that
// reports no cache hierarchy; there is no EL2 system-register access to
// perform outside arm64.
func NewHardwareReader(_, _ func() uint64, _ func(uint64), _ func() uint64) SysRegReader {
	return stubSysRegReader{}
}

func (stubSysRegReader) CacheType(int) cacheType                             { return typeNoCache }
func (stubSysRegReader) CacheGeometry(int, bool) (lineSize, assoc, sets uint64) { return 0, 0, 0 }
