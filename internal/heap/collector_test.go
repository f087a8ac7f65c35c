package heap

import (
	"testing"

	"maru/internal/value"
)

func TestCollectorSweepFreesUnreachable(t *testing.T) {
	h := New()
	root := h.NewVector()
	rootVec, _ := h.Vector(root)
	rootVec.Items = append(rootVec.Items, h.NewVector())

	garbage := h.NewMap()
	_ = garbage

	col := NewCollector(h)
	col.Begin()
	col.Mark(root)
	vectors, maps, _ := col.Sweep()

	if vectors != 2 {
		t.Fatalf("vectors used after sweep = %d, want 2 (root + nested)", vectors)
	}
	if maps != 0 {
		t.Fatalf("maps used after sweep = %d, want 0 (unreachable map)", maps)
	}
}

func TestCollectorMarkFollowsVectorAndMapEdges(t *testing.T) {
	h := New()
	outer := h.NewVector()
	inner := h.NewMap()

	outerVec, _ := h.Vector(outer)
	outerVec.Items = append(outerVec.Items, inner)

	innerMap, _ := h.Map(inner)
	grandchild := h.NewVector()
	innerMap.Set(h.NewVector(), grandchild)

	col := NewCollector(h)
	col.Begin()
	col.Mark(outer)
	vectors, maps, _ := col.Sweep()

	if vectors != 3 {
		t.Fatalf("vectors used = %d, want 3 (outer, key vector, grandchild)", vectors)
	}
	if maps != 1 {
		t.Fatalf("maps used = %d, want 1", maps)
	}
}

func TestCollectorSweepDropsUnreachableInternedStrings(t *testing.T) {
	h := New()
	live := h.Interner.Intern("kept")
	h.Interner.Intern("dropped")

	root := h.NewVector()
	rootVec, _ := h.Vector(root)
	rootVec.Items = append(rootVec.Items, value.String(live))

	col := NewCollector(h)
	col.Begin()
	col.Mark(root)
	col.Sweep()

	for _, s := range h.Interner.Young() {
		if s.Bytes == "dropped" {
			t.Fatalf("unreachable string %q survived sweep", s.Bytes)
		}
	}
}
