package backend

import (
	"context"
	"testing"
)

// TestScratchPoolRejectsDoubleClaimOfSameCPU sizes the pool wider than
// one CPU so the semaphore alone would admit a second claim; the claimed
// map is what must reject it, since the semaphore only bounds total
// concurrent holders, not which index each one holds.
func TestScratchPoolRejectsDoubleClaimOfSameCPU(t *testing.T) {
	p := NewScratchPool(4)
	ctx := context.Background()

	w, err := p.Claim(ctx, 1)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if _, err := p.Claim(ctx, 1); err == nil {
		t.Fatal("expected a second claim of cpu 1's window to fail while the first is held")
	}

	w.Release()
	w2, err := p.Claim(ctx, 1)
	if err != nil {
		t.Fatalf("Claim after release: %v", err)
	}
	w2.Release()
}

func TestScratchPoolAllowsDistinctCPUsConcurrently(t *testing.T) {
	p := NewScratchPool(2)
	ctx := context.Background()

	w0, err := p.Claim(ctx, 0)
	if err != nil {
		t.Fatalf("Claim cpu 0: %v", err)
	}
	w1, err := p.Claim(ctx, 1)
	if err != nil {
		t.Fatalf("Claim cpu 1: %v", err)
	}
	w0.Release()
	w1.Release()
}

func TestScratchPoolReleaseNilIsNoOp(t *testing.T) {
	var w *ScratchWindow
	w.Release()
}
