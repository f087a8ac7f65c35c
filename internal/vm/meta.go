// Meta dispatch implements operator polymorphism: vectors,
// maps, and userdata may carry an optional meta map, consulted by
// value.Kind, whose entries are keyed by operator symbol ("+", "==",
// "#", "tostring") or by a plain method name (for `:name` calls, which
// go through opGet/opGetLit in scope.go rather than through here).
// Declining (no meta, or no matching entry) falls back to the VM's
// built-in behavior for that operator.
package vm

import (
	"maru/internal/bytecode"
	"maru/internal/value"
)

var opSymbol = map[bytecode.OpCode]string{
	bytecode.ADD: "+", bytecode.SUB: "-", bytecode.MUL: "*",
	bytecode.DIV: "/", bytecode.MOD: "%", bytecode.EQ: "==",
}

func (vm *VM) metaOf(v value.Value) (value.Value, bool) {
	switch v.Kind {
	case value.KVector:
		vec, ok := vm.Heap.Vector(v)
		if !ok {
			return value.Nil(), false
		}
		return vec.Meta, vec.Meta.IsMap()
	case value.KMap:
		m, ok := vm.Heap.Map(v)
		if !ok {
			return value.Nil(), false
		}
		return m.Meta, m.Meta.IsMap()
	case value.KUserdata:
		ud, ok := vm.Heap.UserdataOf(v)
		if !ok {
			return value.Nil(), false
		}
		return ud.Meta, ud.Meta.IsMap()
	default:
		return value.Nil(), false
	}
}

func (vm *VM) metaLookup(v value.Value, name string) (value.Value, bool) {
	meta, ok := vm.metaOf(v)
	if !ok {
		return value.Nil(), false
	}
	m, _ := vm.Heap.Map(meta)
	return m.Get(value.String(vm.Heap.Interner.Intern(name)))
}

// metaIndex backs a map/vector/userdata GET miss: the meta table is
// consulted for the same key before falling back to nil.
func (vm *VM) metaIndex(meta, obj, key value.Value) (value.Value, error, bool) {
	if !meta.IsMap() {
		return value.Nil(), nil, false
	}
	m, _ := vm.Heap.Map(meta)
	v, ok := m.Get(key)
	if !ok {
		return value.Nil(), nil, false
	}
	return v, nil, true
}

func (vm *VM) metaArith(a, b value.Value, op bytecode.OpCode) (bool, value.Value, error) {
	sym, ok := opSymbol[op]
	if !ok {
		return false, value.Nil(), nil
	}
	fn, ok := vm.metaLookup(a, sym)
	if !ok {
		fn, ok = vm.metaLookup(b, sym)
	}
	if !ok {
		return false, value.Nil(), nil
	}
	co := vm.top()
	results, err := vm.callSync(co, fn, []value.Value{a, b})
	if err != nil {
		return true, value.Nil(), err
	}
	if len(results) == 0 {
		return true, value.Nil(), nil
	}
	return true, results[0], nil
}

func (vm *VM) metaCompareEq(a, b value.Value) (bool, value.Value, error) {
	fn, ok := vm.metaLookup(a, "==")
	if !ok {
		return false, value.Bool(false), nil
	}
	co := vm.top()
	results, err := vm.callSync(co, fn, []value.Value{a, b})
	if err != nil {
		return true, value.Bool(false), err
	}
	if len(results) == 0 {
		return true, value.Bool(false), nil
	}
	return true, results[0], nil
}

func (vm *VM) metaToString(v value.Value) (string, bool) {
	fn, ok := vm.metaLookup(v, "tostring")
	if !ok {
		return "", false
	}
	co := vm.top()
	results, err := vm.callSync(co, fn, []value.Value{v})
	if err != nil || len(results) == 0 {
		return "", false
	}
	return vm.display(results[0]), true
}

func (vm *VM) metaCount(v value.Value) (bool, value.Value, error) {
	fn, ok := vm.metaLookup(v, "#")
	if !ok {
		return false, value.Nil(), nil
	}
	co := vm.top()
	results, err := vm.callSync(co, fn, []value.Value{v})
	if err != nil {
		return true, value.Nil(), err
	}
	if len(results) == 0 {
		return true, value.Nil(), nil
	}
	return true, results[0], nil
}
