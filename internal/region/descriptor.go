package region

import (
	"encoding/binary"
	"fmt"
)

// DescriptorSize is the wire size of one colored-region descriptor: six
// little-endian u64 fields (§6).
const DescriptorSize = 8 * 6

// Encode serializes r to the wire format §6 specifies:
//
//	u64 phys_start, u64 virt_start, u64 size, u64 flags, u64 colors, u64 rebase_offset
//
// Grounded on the packed struct jailhouse_memory_colored in
// original_source/include/jailhouse/cell-config.h.
func (r *ColoredRegion) Encode() []byte {
	buf := make([]byte, DescriptorSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.PhysStart)
	binary.LittleEndian.PutUint64(buf[8:16], r.VirtStart)
	binary.LittleEndian.PutUint64(buf[16:24], r.Size)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(r.Flags))
	binary.LittleEndian.PutUint64(buf[32:40], r.Colors)
	binary.LittleEndian.PutUint64(buf[40:48], r.RebaseOffset)
	return buf
}

// DecodeColoredRegion parses a wire-format descriptor produced by Encode.
func DecodeColoredRegion(buf []byte) (*ColoredRegion, error) {
	if len(buf) < DescriptorSize {
		return nil, fmt.Errorf("region: descriptor too short: got %d bytes, want %d", len(buf), DescriptorSize)
	}
	return &ColoredRegion{
		PhysStart:    binary.LittleEndian.Uint64(buf[0:8]),
		VirtStart:    binary.LittleEndian.Uint64(buf[8:16]),
		Size:         binary.LittleEndian.Uint64(buf[16:24]),
		Flags:        Flags(binary.LittleEndian.Uint64(buf[24:32])),
		Colors:       binary.LittleEndian.Uint64(buf[32:40]),
		RebaseOffset: binary.LittleEndian.Uint64(buf[40:48]),
	}, nil
}

// EncodeAll serializes a cell's colored regions back to back, matching how
// jailhouse_cell_mem_regions lays out an array of descriptors following a
// cell's ordinary memory regions.
func EncodeAll(regions []*ColoredRegion) []byte {
	buf := make([]byte, 0, DescriptorSize*len(regions))
	for _, r := range regions {
		buf = append(buf, r.Encode()...)
	}
	return buf
}

// DecodeAll parses a back-to-back sequence of descriptors produced by
// EncodeAll.
func DecodeAll(buf []byte) ([]*ColoredRegion, error) {
	if len(buf)%DescriptorSize != 0 {
		return nil, fmt.Errorf("region: descriptor buffer length %d is not a multiple of %d", len(buf), DescriptorSize)
	}
	n := len(buf) / DescriptorSize
	out := make([]*ColoredRegion, 0, n)
	for i := 0; i < n; i++ {
		r, err := DecodeColoredRegion(buf[i*DescriptorSize : (i+1)*DescriptorSize])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
