package heap

import "maru/internal/value"

// Collector drives the mark-and-sweep pass over the three object
// pools. The VM is responsible for walking its own roots (core scope, global scope,
// module table, every coroutine in the chain, every bytecode literal)
// and calling Mark on each; internal/vm/gc.go does exactly that,
// because those roots are vm-level concepts the heap package does not
// know about. This file only knows how to mark the containers it
// owns (vectors, maps, userdata) and the interned strings they
// transitively hold.
type Collector struct {
	h *Heap
	strings map[*value.Str]bool
}

func NewCollector(h *Heap) *Collector {
	return &Collector{h: h, strings: make(map[*value.Str]bool)}
}

// Begin clears every mark bit and the live-string set: clear all mark
// bits, clear the young-string mark array.
func (c *Collector) Begin() {
	c.h.Vectors.ClearMarks()
	c.h.Maps.ClearMarks()
	c.h.Userdata.ClearMarks()
	c.strings = make(map[*value.Str]bool)
}

// Mark recursively marks v and everything it transitively references.
// Coroutine values are left untouched here — the VM marks its own
// coroutine pool and then calls Mark on every value reachable from
// each coroutine's stacks, frames, and pending-map slot.
func (c *Collector) Mark(v value.Value) {
	switch v.Kind {
	case value.KString:
		if v.Str != nil {
			c.strings[v.Str] = true
		}
	case value.KVector:
		if c.h.Vectors.IsMarked(v.Ref.Index) {
			return
		}
		c.h.Vectors.MarkSlot(v.Ref.Index)
		obj, ok := c.h.Vectors.Get(v.Ref)
		if !ok {
			return
		}
		for _, item := range obj.Items {
			c.Mark(item)
		}
		c.Mark(obj.Meta)
	case value.KMap:
		if c.h.Maps.IsMarked(v.Ref.Index) {
			return
		}
		c.h.Maps.MarkSlot(v.Ref.Index)
		obj, ok := c.h.Maps.Get(v.Ref)
		if !ok {
			return
		}
		for _, k := range obj.Keys {
			c.Mark(k)
		}
		for _, val := range obj.Vals {
			c.Mark(val)
		}
		c.Mark(obj.Meta)
	case value.KUserdata:
		if c.h.Userdata.IsMarked(v.Ref.Index) {
			return
		}
		c.h.Userdata.MarkSlot(v.Ref.Index)
		obj, ok := c.h.Userdata.Get(v.Ref)
		if !ok {
			return
		}
		c.Mark(obj.Meta)
	}
}

// Sweep frees every unmarked vector/map/userdata slot and compacts
// the young-string region to only strings observed live during Mark.
// Returns the number of slots still in use in each pool, for tests
// asserting that collecting an otherwise-idle VM reduces all
// object-pool used counts to zero.
func (c *Collector) Sweep() (vectors, maps, userdata int) {
	vectors = c.h.Vectors.Sweep(nil)
	maps = c.h.Maps.Sweep(nil)
	userdata = c.h.Userdata.Sweep(nil)
	c.h.Interner.SweepYoung(c.strings)
	return
}
