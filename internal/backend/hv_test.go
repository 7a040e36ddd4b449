package backend

import (
	"context"
	"testing"

	"github.com/rntmancuso/jailhouse-rt/internal/capability"
	"github.com/rntmancuso/jailhouse-rt/internal/hverrors"
	"github.com/rntmancuso/jailhouse-rt/internal/region"
)

func TestHVBackendReadWriteThroughWindow(t *testing.T) {
	mem := NewPhysMemory()
	mem.Fill(0x40000, 0x1000, 0xAB)
	hv := NewHVBackend(mem, 4, nil)

	ctx := context.Background()
	if err := hv.PagingCreate(ctx, 0x40000, 0x1000, 0xD0000000, region.FlagRead|region.FlagWrite); err != nil {
		t.Fatalf("PagingCreate: %v", err)
	}

	buf := make([]byte, 16)
	if err := hv.ReadAt(ctx, 0xD0000000, buf); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for _, b := range buf {
		if b != 0xAB {
			t.Fatalf("got %#x, want 0xAB", b)
		}
	}

	write := make([]byte, 16)
	for i := range write {
		write[i] = 0xCD
	}
	if err := hv.WriteAt(ctx, 0xD0000010, write); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	check := make([]byte, 16)
	mem.ReadAt(0x40010, check)
	for _, b := range check {
		if b != 0xCD {
			t.Fatalf("got %#x, want 0xCD", b)
		}
	}

	if err := hv.PagingDestroy(ctx, 0xD0000000, 0x1000); err != nil {
		t.Fatalf("PagingDestroy: %v", err)
	}
	if err := hv.ReadAt(ctx, 0xD0000000, buf); err == nil {
		t.Fatal("expected translate failure after PagingDestroy")
	}
}

func TestHVBackendPoolExhaustion(t *testing.T) {
	hv := NewHVBackend(NewPhysMemory(), 2, nil)

	pages, err := hv.AllocPoolPages(2)
	if err != nil {
		t.Fatalf("AllocPoolPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}

	if _, err := hv.AllocPoolPages(1); err == nil {
		t.Fatal("expected OutOfMemory once pool is exhausted")
	} else if herr, ok := err.(*hverrors.Error); !ok || herr.Kind() != hverrors.OutOfMemory {
		t.Fatalf("got %v, want hverrors.OutOfMemory", err)
	}

	hv.FreePoolPages(pages[:1])
	if _, err := hv.AllocPoolPages(1); err != nil {
		t.Fatalf("AllocPoolPages after free: %v", err)
	}
}

func TestHVBackendFlushLogOrdering(t *testing.T) {
	hv := NewHVBackend(NewPhysMemory(), 1, nil)
	ctx := context.Background()

	_ = hv.DCacheFlushByVA(ctx, 0x1000, 0x1000, capability.Invalidate)
	_ = hv.DCacheFlushByVA(ctx, 0x1000, 0x1000, capability.CleanAndInvalidate)

	log := hv.FlushLog()
	if len(log) != 2 {
		t.Fatalf("got %d records, want 2", len(log))
	}
	if log[0].Kind != capability.Invalidate || log[1].Kind != capability.CleanAndInvalidate {
		t.Fatalf("flush order not preserved: %+v", log)
	}
}
