package vm

import (
	"fmt"

	"maru/internal/value"
)

// resolve implements the four-step lookup order: current
// frame locals, lexical-ancestor frames (closures are a scope-path
// chain rather than captured upvalues — see SPEC_FULL.md), the global
// map, then core scope.
func (vm *VM) resolve(co *Coroutine, name *value.Str) (value.Value, bool) {
	cur := co.frame()
	if v, ok := cur.get(name); ok {
		return v, true
	}
	for i := len(co.Frames) - 2; i >= 0; i-- {
		f := &co.Frames[i]
		if !cur.hasAncestor(f.funcID) {
			continue
		}
		if v, ok := f.get(name); ok {
			return v, true
		}
	}
	if m, ok := vm.Heap.Map(vm.global); ok {
		if v, ok := m.Get(value.String(name)); ok {
			return v, true
		}
	}
	if v, ok := vm.core[name.Bytes]; ok {
		return v, true
	}
	return value.Nil(), false
}

func (vm *VM) opFind(co *Coroutine) error {
	nameVal := co.pop()
	v, _ := vm.resolve(co, nameVal.Str)
	co.push(v)
	return nil
}

func (vm *VM) opFindLit(co *Coroutine, nameVal value.Value) error {
	v, _ := vm.resolve(co, nameVal.Str)
	co.push(v)
	return nil
}

// opGet implements the `.field` / `[index]` read :
// maps look up by key, vectors index by integer, anything else (and
// any map miss against a meta table) falls back to the operator-meta
// dispatch of meta.go.
func (vm *VM) opGet(co *Coroutine) error {
	key := co.pop()
	obj := co.pop()
	v, err := vm.index(obj, key)
	if err != nil {
		return err
	}
	co.push(v)
	return nil
}

func (vm *VM) opGetLit(co *Coroutine, key value.Value) error {
	obj := co.pop()
	v, err := vm.index(obj, key)
	if err != nil {
		return err
	}
	co.push(v)
	return nil
}

func (vm *VM) index(obj, key value.Value) (value.Value, error) {
	switch obj.Kind {
	case value.KMap:
		m, _ := vm.Heap.Map(obj)
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		if v, err, handled := vm.metaIndex(m.Meta, obj, key); handled {
			return v, err
		}
		return value.Nil(), nil
	case value.KVector:
		vec, _ := vm.Heap.Vector(obj)
		if key.IsInt() {
			i := key.Int()
			if i >= 0 && i < int64(len(vec.Items)) {
				return vec.Items[i], nil
			}
			return value.Nil(), nil
		}
		if v, err, handled := vm.metaIndex(vec.Meta, obj, key); handled {
			return v, err
		}
		return value.Nil(), nil
	case value.KUserdata:
		ud, _ := vm.Heap.UserdataOf(obj)
		if v, err, handled := vm.metaIndex(ud.Meta, obj, key); handled {
			return v, err
		}
		return value.Nil(), nil
	default:
		return value.Nil(), nil
	}
}

// opSet implements `.field = v` / `[index] = v` on a stack of
// container, key, value (value on top): it pops value and key and
// leaves the container on the stack, so a map literal under
// construction can take its next key/value pair; assignment
// (compileAssignTo) drops the container afterwards.
func (vm *VM) opSet(co *Coroutine) error {
	val := co.pop()
	key := co.pop()
	obj := co.peek()
	switch obj.Kind {
	case value.KMap:
		m, _ := vm.Heap.Map(obj)
		m.Set(key, val)
	case value.KVector:
		vec, _ := vm.Heap.Vector(obj)
		if !key.IsInt() {
			return fmt.Errorf("vm: vector index must be an integer")
		}
		i := key.Int()
		switch {
		case i < 0:
			return fmt.Errorf("vm: negative vector index %d", i)
		case i < int64(len(vec.Items)):
			vec.Items[i] = val
		case i == int64(len(vec.Items)):
			vec.Items = append(vec.Items, val)
		default:
			for int64(len(vec.Items)) < i {
				vec.Items = append(vec.Items, value.Nil())
			}
			vec.Items = append(vec.Items, val)
		}
	default:
		return fmt.Errorf("vm: cannot index-assign into a %s", obj.Kind)
	}
	return nil
}
