package hvcall

import "testing"

// TestRequestCodesMatchDriverHeader checks that the Go-computed ioctl
// request codes match what driver/jailhouse.h's _IOW/_IO macros produce
// for JAILHOUSE_ENABLE .. JAILHOUSE_CELL_DESTROY, computed by hand from
// linux/ioctl.h's encoding (dir<<30 | type<<8 | nr | size<<16).
func TestRequestCodesMatchDriverHeader(t *testing.T) {
	cases := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"JAILHOUSE_DISABLE", reqDisable, 1},
		{"JAILHOUSE_ENABLE", reqEnable, 0x40080000},
		{"JAILHOUSE_CELL_CREATE", reqCellCreate, 0x40100002},
		{"JAILHOUSE_CELL_LOAD", reqCellLoad, 0x40300003},
		{"JAILHOUSE_CELL_START", reqCellStart, 0x40280004},
		{"JAILHOUSE_CELL_DESTROY", reqCellDestroy, 0x40280005},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = 0x%x, want 0x%x", c.name, c.got, c.want)
		}
	}
}

func TestMakeWireCellIDTruncatesLongNames(t *testing.T) {
	long := "this-name-is-definitely-longer-than-thirty-one-bytes"
	w := makeWireCellID(7, long)
	if w.ID != 7 {
		t.Fatalf("ID = %d, want 7", w.ID)
	}
	if len(w.Name) != cellIDNameLen {
		t.Fatalf("Name array length = %d, want %d", len(w.Name), cellIDNameLen)
	}
	got := string(w.Name[:cellIDNameLen-1])
	if got != long[:cellIDNameLen-1] {
		t.Errorf("Name = %q, want truncated to %q", got, long[:cellIDNameLen-1])
	}
}

func TestMakeWireCellIDShortName(t *testing.T) {
	w := makeWireCellID(-1, "root")
	if w.ID != -1 {
		t.Fatalf("ID = %d, want -1", w.ID)
	}
	got := string(w.Name[:4])
	if got != "root" {
		t.Errorf("Name[:4] = %q, want %q", got, "root")
	}
	if w.Name[4] != 0 {
		t.Errorf("Name[4] = %d, want NUL terminator", w.Name[4])
	}
}
