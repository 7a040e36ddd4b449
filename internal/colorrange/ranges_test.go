package colorrange

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRanges(t *testing.T) {
	tests := []struct {
		name   string
		colors uint64
		width  int
		want   []Range
	}{
		{"empty", 0x0000, 16, nil},
		{"single bit", 0x0001, 16, []Range{{0, 0}}},
		{"contiguous run", 0x0f00, 16, []Range{{8, 11}}},
		{"two runs", 0x00f0 | 0xf000, 16, []Range{{4, 7}, {12, 15}}},
		{"full", 0xffff, 16, []Range{{0, 15}}},
		{"alternating", 0x5555, 16, []Range{
			{0, 0}, {2, 2}, {4, 4}, {6, 6}, {8, 8}, {10, 10}, {12, 12}, {14, 14},
		}},
		{"high bit only", 0x8000, 16, []Range{{15, 15}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Ranges(tc.colors, tc.width)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Ranges(0x%x, %d) diff (-want +got):\n%s", tc.colors, tc.width, diff)
			}
		})
	}
}

func TestRangesAreDisjointAndSorted(t *testing.T) {
	got := Ranges(0x00f0|0xf000, 16)
	for i := 1; i < len(got); i++ {
		if got[i-1].High >= got[i].Low {
			t.Fatalf("ranges %v are not strictly increasing/disjoint", got)
		}
	}
}
