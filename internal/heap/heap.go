package heap

import "maru/internal/value"

// Heap owns the vector, map, and userdata pools plus the string
// interner, minus the coroutine pool, which internal/vm owns directly
// (a Coroutine's frame stack is a vm-level type; Pool's doc comment in
// pool.go says why it is not folded in here).
type Heap struct {
	Vectors *Pool[VectorObj]
	Maps *Pool[MapObj]
	Userdata *Pool[UserdataObj]
	Interner *Interner
}

func New() *Heap {
	return NewWithInterner(NewInterner())
}

// NewWithInterner builds a Heap around an interner that already holds
// the compile-time ("old") string region — the VM must share the
// exact interner internal/compiler used, never a fresh one, or
// compiled literal strings and runtime-interned strings would stop
// satisfying "equality reduces to pointer identity" against each
// other.
func NewWithInterner(in *Interner) *Heap {
	return &Heap{
		Vectors: NewPool[VectorObj](),
		Maps: NewPool[MapObj](),
		Userdata: NewPool[UserdataObj](),
		Interner: in,
	}
}

func (h *Heap) NewVector() value.Value {
	return value.Vector(h.Vectors.Alloc(VectorObj{}))
}

func (h *Heap) NewMap() value.Value {
	return value.Map(h.Maps.Alloc(MapObj{}))
}

func (h *Heap) NewUserdata(ptr any) value.Value {
	return value.Userdata(h.Userdata.Alloc(UserdataObj{Ptr: ptr}))
}

func (h *Heap) Vector(v value.Value) (*VectorObj, bool) {
	if v.Kind != value.KVector {
		return nil, false
	}
	return h.Vectors.Get(v.Ref)
}

func (h *Heap) Map(v value.Value) (*MapObj, bool) {
	if v.Kind != value.KMap {
		return nil, false
	}
	return h.Maps.Get(v.Ref)
}

func (h *Heap) UserdataOf(v value.Value) (*UserdataObj, bool) {
	if v.Kind != value.KUserdata {
		return nil, false
	}
	return h.Userdata.Get(v.Ref)
}

// Compare implements the total order across every Value kind,
// extending value.CompareScalar with container comparisons by size.
func (h *Heap) Compare(a, b value.Value) int {
	return Compare2(h, a, b)
}

// Compare is a package-level helper used inside MapObj.find, where a
// *Heap is not in scope; it degrades container comparisons to handle
// identity since ordered maps never key on mutable containers in
// practice but must still total-order them safely.
func Compare(a, b value.Value) int {
	if a.Kind != b.Kind {
		return value.CompareScalar(a, b)
	}
	switch a.Kind {
	case value.KVector, value.KMap, value.KUserdata, value.KCoroutine:
		switch {
		case a.Ref.Index < b.Ref.Index:
			return -1
		case a.Ref.Index > b.Ref.Index:
			return 1
		default:
			return 0
		}
	default:
		return value.CompareScalar(a, b)
	}
}

// Compare2 is the heap-aware comparison used by the VM's `<`/`<=`
// operators, which compares vectors and maps by length before falling
// back to identity.
func Compare2(h *Heap, a, b value.Value) int {
	if a.Kind != b.Kind {
		return value.CompareScalar(a, b)
	}
	switch a.Kind {
	case value.KVector:
		av, _ := h.Vector(a)
		bv, _ := h.Vector(b)
		return compareLen(av.lenOrZero(), bv.lenOrZero())
	case value.KMap:
		am, _ := h.Map(a)
		bm, _ := h.Map(b)
		return compareLen(am.lenOrZero(), bm.lenOrZero())
	default:
		return Compare(a, b)
	}
}

func compareLen(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v *VectorObj) lenOrZero() int {
	if v == nil {
		return 0
	}
	return len(v.Items)
}

func (m *MapObj) lenOrZero() int {
	if m == nil {
		return 0
	}
	return m.Len()
}
