// Package heap implements the pool allocator, string interner, ordered
// containers, and mark-and-sweep collector. Objects are never
// referenced by raw pointer: a value.Handle carries an (index,
// generation) pair, and a stale handle is detected by generation
// mismatch rather than by aliasing a reused slot.
package heap

import "maru/internal/value"

const pageSize = 64

// slot is the per-object bookkeeping: a used bit and a mark bit, one
// pair per pool slot, mirroring the arena's pages.
type slot[T any] struct {
	used bool
	mark bool
	gen uint32
	obj T
}

// Pool is an arena of fixed-size pages with a rotating allocation
// cursor: it scans from the cursor for the first free slot, growing
// by a page when full. It is exported so internal/vm can instantiate
// one for coroutines, whose Frame payload lives in the vm package and
// would otherwise create an import cycle with heap.
type Pool[T any] struct {
	slots []slot[T]
	cursor int
}

func NewPool[T any]() *Pool[T] {
	return &Pool[T]{}
}

func (p *Pool[T]) grow() {
	start := len(p.slots)
	p.slots = append(p.slots, make([]slot[T], pageSize)...)
	p.cursor = start
}

// Alloc finds the first free slot starting at the cursor, wrapping
// around, growing the arena by one page if none is free.
func (p *Pool[T]) Alloc(zero T) value.Handle {
	if len(p.slots) == 0 {
		p.grow()
	}
	n := len(p.slots)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if !p.slots[idx].used {
			p.cursor = (idx + 1) % n
			s := &p.slots[idx]
			s.used = true
			s.mark = false
			s.obj = zero
			return value.Handle{Index: uint32(idx), Gen: s.gen}
		}
	}
	p.grow()
	idx := n // first slot of the freshly grown page
	p.cursor = (idx + 1) % len(p.slots)
	s := &p.slots[idx]
	s.used = true
	s.mark = false
	s.obj = zero
	return value.Handle{Index: uint32(idx), Gen: s.gen}
}

// Get resolves a handle to its object, returning ok=false for a freed
// or stale (generation-mismatched) handle.
func (p *Pool[T]) Get(h value.Handle) (*T, bool) {
	if int(h.Index) >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[h.Index]
	if !s.used || s.gen != h.Gen {
		return nil, false
	}
	return &s.obj, true
}

func (p *Pool[T]) Free(idx uint32) {
	s := &p.slots[idx]
	s.used = false
	s.mark = false
	s.gen++
	var zero T
	s.obj = zero
}

func (p *Pool[T]) MarkSlot(idx uint32) {
	if int(idx) < len(p.slots) {
		p.slots[idx].mark = true
	}
}

func (p *Pool[T]) ClearMarks() {
	for i := range p.slots {
		p.slots[i].mark = false
	}
}

// Sweep frees every used-but-unmarked slot and returns how many slots
// remain in use.
func (p *Pool[T]) Sweep(onFree func(*T)) int {
	used := 0
	for i := range p.slots {
		s := &p.slots[i]
		if !s.used {
			continue
		}
		if !s.mark {
			if onFree != nil {
				onFree(&s.obj)
			}
			p.Free(uint32(i))
			continue
		}
		used++
	}
	return used
}

// IsMarked reports whether the slot at idx is currently marked; used
// by collectors to avoid re-walking already-visited objects.
func (p *Pool[T]) IsMarked(idx uint32) bool {
	if int(idx) >= len(p.slots) {
		return false
	}
	return p.slots[idx].mark
}

// Used returns the number of occupied slots, ignoring generation.
func (p *Pool[T]) Used() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].used {
			n++
		}
	}
	return n
}
