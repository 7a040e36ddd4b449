// Package hvcall implements the driver/hypervisor ioctl boundary used by
// cmd/jailctl: opening the simulated /dev/jailhouse device file and
// issuing the ENABLE/DISABLE/CELL_CREATE/CELL_LOAD/CELL_START/CELL_DESTROY
// requests the driver context hands to the hypervisor.
//
// Grounded on original_source/driver/jailhouse.h's ioctl definitions and
// wire structs, and on golang.org/x/sys/unix's use in
// pkg/sentry/platform/kvm (unix.Syscall(unix.SYS_IOCTL, ...) against an
// open device fd). The request codes below are computed the same way
// linux/ioctl.h's _IOW/_IO macros compute JAILHOUSE_ENABLE et al., rather
// than reproduced as opaque literals, so the relationship to the C
// driver header stays visible.
package hvcall

import (
	"os"
	"unsafe"
)

// ioctl direction/field layout, mirroring linux/ioctl.h.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1

	// jailhouseType is the ioctl "type" magic driver/jailhouse.h passes
	// as the first argument to every _IOW/_IO invocation: 0.
	jailhouseType = 0
)

func iocw(nr, size uintptr) uintptr {
	return (iocWrite << iocDirShift) | (jailhouseType << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func ioNone(nr uintptr) uintptr {
	return nr << iocNRShift
}

// cellIDNameLen matches JAILHOUSE_CELL_ID_NAMELEN (31) plus the
// terminating NUL driver/jailhouse.h reserves in char name[].
const cellIDNameLen = 32

// wireCellID mirrors struct jailhouse_cell_id.
type wireCellID struct {
	ID      int32
	_       uint32
	Name    [cellIDNameLen]byte
}

// wireCellCreate mirrors struct jailhouse_cell_create.
type wireCellCreate struct {
	ConfigAddress uint64
	ConfigSize    uint32
	_             uint32
}

// wireCellLoadHeader mirrors struct jailhouse_cell_load up to its
// flexible image[] array.
type wireCellLoadHeader struct {
	CellID          wireCellID
	NumPreloadImages uint32
	_                uint32
}

// wirePreloadImage mirrors struct jailhouse_preload_image.
type wirePreloadImage struct {
	SourceAddress uint64
	Size          uint64
	TargetAddress uint64
	_             uint64
}

// Request codes, computed exactly as driver/jailhouse.h's macros compute
// JAILHOUSE_ENABLE .. JAILHOUSE_CELL_DESTROY.
var (
	reqEnable      = iocw(0, unsafe.Sizeof(uintptr(0)))
	reqDisable     = ioNone(1)
	reqCellCreate  = iocw(2, unsafe.Sizeof(wireCellCreate{}))
	reqCellLoad    = iocw(3, unsafe.Sizeof(wireCellLoadHeader{}))
	reqCellStart   = iocw(4, unsafe.Sizeof(wireCellID{}))
	reqCellDestroy = iocw(5, unsafe.Sizeof(wireCellID{}))
)

// PreloadImage is one inmate image to copy into a loadable colored
// region at CellLoad time.
type PreloadImage struct {
	SourceAddress uint64
	Size          uint64
	TargetAddress uint64
}

func makeWireCellID(id int32, name string) wireCellID {
	var w wireCellID
	w.ID = id
	copy(w.Name[:cellIDNameLen-1], name)
	return w
}

// Device is an open handle to the /dev/jailhouse-style character device
// the driver uses to hand requests to the hypervisor.
type Device struct {
	f *os.File
}

// Open opens the device file at path for the ioctl requests below.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Device{f: f}, nil
}

// Close releases the device handle.
func (d *Device) Close() error {
	return d.f.Close()
}

func (d *Device) fd() uintptr {
	return d.f.Fd()
}
