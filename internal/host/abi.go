package host

import (
	"maru/internal/value"
)

// Top reads the value on top of abi's stack without removing it —
// value.Stack doesn't expose "top" directly, since pick(0) already
// covers it for any caller holding an abi handle.
func Top(abi value.Stack) value.Value { return abi.Pick(0) }

// The Is*/To* family below are thin re-exports of value.Value's own
// predicates/accessors under embedding-surface names, kept here
// rather than requiring host code to import internal/value's
// lower-level Kind constants directly.
func IsNil(v value.Value) bool { return v.IsNil() }
func IsInt(v value.Value) bool { return v.IsInt() }
func IsFloat(v value.Value) bool { return v.IsFloat() }
func IsNumber(v value.Value) bool { return v.IsNumber() }
func IsBool(v value.Value) bool { return v.IsBool() }
func IsString(v value.Value) bool { return v.IsString() }
func IsVector(v value.Value) bool { return v.IsVector() }
func IsMap(v value.Value) bool { return v.IsMap() }
func IsCallable(v value.Value) bool { return v.IsCallable() }
func IsCoroutine(v value.Value) bool { return v.IsCoroutine() }
func IsUserdata(v value.Value) bool { return v.Kind == value.KUserdata }

func ToInt(v value.Value) int64 { return v.Int() }
func ToFloat(v value.Value) float64 { return v.Float() }
func ToBool(v value.Value) bool { return v.Bool() }
func ToString(v value.Value) string { return v.String() }

func MakeNil() value.Value { return value.Nil() }
func MakeInt(n int64) value.Value { return value.Int(n) }
func MakeFloat(f float64) value.Value { return value.Float(f) }
func MakeBool(b bool) value.Value { return value.Bool(b) }

// MakeString interns s against the VM's own string table — required
// so a host-constructed string compares equal (by pointer) to any
// script string with the same bytes.
func (h *VM) MakeString(s string) value.Value {
	return value.String(h.machine.Heap.Interner.Intern(s))
}

func (h *VM) MakeVector() value.Value { return h.machine.Heap.NewVector() }
func (h *VM) MakeMap() value.Value { return h.machine.Heap.NewMap() }
func (h *VM) MakeUserdata(ptr any) value.Value {
	return h.machine.Heap.NewUserdata(ptr)
}

// VectorLen/VectorGet/VectorSet/VectorPush are vector accessors
// operating directly on a heap vector by Value handle, rather than
// through the operand stack.
func (h *VM) VectorLen(v value.Value) int {
	vec, ok := h.machine.Heap.Vector(v)
	if !ok {
		return 0
	}
	return len(vec.Items)
}

func (h *VM) VectorGet(v value.Value, i int) value.Value {
	vec, ok := h.machine.Heap.Vector(v)
	if !ok || i < 0 || i >= len(vec.Items) {
		return value.Nil()
	}
	return vec.Items[i]
}

func (h *VM) VectorSet(v value.Value, i int, item value.Value) {
	vec, ok := h.machine.Heap.Vector(v)
	if !ok || i < 0 || i >= len(vec.Items) {
		return
	}
	vec.Items[i] = item
}

func (h *VM) VectorPush(v value.Value, item value.Value) {
	vec, ok := h.machine.Heap.Vector(v)
	if !ok {
		return
	}
	vec.Items = append(vec.Items, item)
}

// MapLen/MapGet/MapSet are ordered-map accessors; the underlying
// heap.MapObj keeps Keys sorted, so Key/Value at index i walks the
// map in key order.
func (h *VM) MapLen(v value.Value) int {
	m, ok := h.machine.Heap.Map(v)
	if !ok {
		return 0
	}
	return m.Len()
}

func (h *VM) MapGet(v, key value.Value) (value.Value, bool) {
	m, ok := h.machine.Heap.Map(v)
	if !ok {
		return value.Nil(), false
	}
	return m.Get(key)
}

func (h *VM) MapSet(v, key, val value.Value) {
	m, ok := h.machine.Heap.Map(v)
	if !ok {
		return
	}
	m.Set(key, val)
}

func (h *VM) MapKeyAt(v value.Value, i int) value.Value {
	m, ok := h.machine.Heap.Map(v)
	if !ok || i < 0 || i >= len(m.Keys) {
		return value.Nil()
	}
	return m.Keys[i]
}

func (h *VM) MapValueAt(v value.Value, i int) value.Value {
	m, ok := h.machine.Heap.Map(v)
	if !ok || i < 0 || i >= len(m.Vals) {
		return value.Nil()
	}
	return m.Vals[i]
}
