package heap

import "testing"

func TestPoolAllocGetFree(t *testing.T) {
	p := NewPool[int]()

	h1 := p.Alloc(42)
	v, ok := p.Get(h1)
	if !ok || *v != 42 {
		t.Fatalf("Get(h1) = %v, %v; want 42, true", v, ok)
	}

	p.Free(h1.Index)
	if _, ok := p.Get(h1); ok {
		t.Fatalf("Get returned ok=true for a freed handle")
	}
}

// TestPoolGenerationMismatch checks that a slot reused after Free gets
// a bumped generation, invalidating any handle still pointing at the
// old generation.
func TestPoolGenerationMismatch(t *testing.T) {
	p := NewPool[int]()

	h1 := p.Alloc(1)
	p.Free(h1.Index)
	h2 := p.Alloc(2)
	// the rotating cursor comes back to the freed slot only after
	// wrapping around the page
	for h2.Index != h1.Index && p.Used() < pageSize {
		h2 = p.Alloc(2)
	}

	if h2.Index != h1.Index {
		t.Skip("allocator did not reuse the freed slot; generation test not exercised")
	}
	if h2.Gen == h1.Gen {
		t.Fatalf("reused slot kept the same generation: %d", h2.Gen)
	}
	if _, ok := p.Get(h1); ok {
		t.Fatalf("stale handle from before Free still resolves")
	}
	v, ok := p.Get(h2)
	if !ok || *v != 2 {
		t.Fatalf("Get(h2) = %v, %v; want 2, true", v, ok)
	}
}

func TestPoolSweepFreesUnmarked(t *testing.T) {
	p := NewPool[int]()

	keep := p.Alloc(1)
	drop := p.Alloc(2)

	p.MarkSlot(keep.Index)
	var freed []int
	used := p.Sweep(func(v *int) { freed = append(freed, *v) })

	if used != 1 {
		t.Fatalf("Sweep returned used=%d, want 1", used)
	}
	if len(freed) != 1 || freed[0] != 2 {
		t.Fatalf("onFree called with %v, want [2]", freed)
	}
	if _, ok := p.Get(keep); !ok {
		t.Fatalf("marked slot was swept")
	}
	if _, ok := p.Get(drop); ok {
		t.Fatalf("unmarked slot survived sweep")
	}
}

func TestPoolGrowsAcrossPages(t *testing.T) {
	p := NewPool[int]()

	for i := 0; i < pageSize+5; i++ {
		h := p.Alloc(i)
		if v, ok := p.Get(h); !ok || *v != i {
			t.Fatalf("Get(h) after Alloc(%d) = %v, %v", i, v, ok)
		}
	}
	if p.Used() != pageSize+5 {
		t.Fatalf("Used() = %d, want %d", p.Used(), pageSize+5)
	}
}
