package vm

import (
	"fmt"
	"strings"

	"maru/internal/value"
)

// registerBuiltins installs the permanent core-scope surface:
// `print` bare, and `lib` holding assert/coroutine/setmeta/
// getmeta/min/max/type/tostring/len/collect. Domain-specific libraries
// (internal/stdlib's math and sql modules) register themselves
// separately through the same vm.Register hook once the host wires
// them in (internal/host).
func registerBuiltins(vm *VM) {
	vm.RegisterBare("print", value.FromCallback(func(abi value.Stack, argc int) (int, error) {
		parts := make([]string, argc)
		for i := 0; i < argc; i++ {
			parts[argc-1-i] = vm.display(abi.Pick(i))
		}
		for i := 0; i < argc; i++ {
			abi.Pop()
		}
		fmt.Println(strings.Join(parts, " "))
		return 0, nil
	}))

	vm.Register("assert", func(abi value.Stack, argc int) (int, error) {
		if argc < 1 {
			return 0, fmt.Errorf("assert requires a condition")
		}
		vals := make([]value.Value, argc)
		for i := argc - 1; i >= 0; i-- {
			vals[i] = abi.Pop()
		}
		if !vals[0].Truthy() {
			msg := "assertion failed"
			if len(vals) > 1 && vals[1].IsString() {
				msg = vals[1].Str.Bytes
			}
			return 0, fmt.Errorf("%s", msg)
		}
		for _, v := range vals {
			abi.Push(v)
		}
		return len(vals), nil
	})

	vm.Register("setmeta", func(abi value.Stack, argc int) (int, error) {
		if argc != 2 {
			return 0, fmt.Errorf("setmeta requires (value, meta)")
		}
		meta := abi.Pop()
		obj := abi.Pop()
		switch obj.Kind {
		case value.KVector:
			v, _ := vm.Heap.Vector(obj)
			v.Meta = meta
		case value.KMap:
			m, _ := vm.Heap.Map(obj)
			m.Meta = meta
		case value.KUserdata:
			u, _ := vm.Heap.UserdataOf(obj)
			u.Meta = meta
		default:
			return 0, fmt.Errorf("setmeta cannot attach meta to a %s", obj.Kind)
		}
		abi.Push(obj)
		return 1, nil
	})

	vm.Register("getmeta", func(abi value.Stack, argc int) (int, error) {
		if argc != 1 {
			return 0, fmt.Errorf("getmeta requires one argument")
		}
		obj := abi.Pop()
		meta, _ := vm.metaOf(obj)
		abi.Push(meta)
		return 1, nil
	})

	vm.Register("min", func(abi value.Stack, argc int) (int, error) {
		return reduceNumeric(vm, abi, argc, func(c int) bool { return c < 0 })
	})
	vm.Register("max", func(abi value.Stack, argc int) (int, error) {
		return reduceNumeric(vm, abi, argc, func(c int) bool { return c > 0 })
	})

	vm.Register("type", func(abi value.Stack, argc int) (int, error) {
		if argc != 1 {
			return 0, fmt.Errorf("type requires one argument")
		}
		v := abi.Pop()
		abi.Push(value.String(vm.Heap.Interner.Intern(v.Kind.String())))
		return 1, nil
	})

	vm.Register("tostring", func(abi value.Stack, argc int) (int, error) {
		if argc != 1 {
			return 0, fmt.Errorf("tostring requires one argument")
		}
		v := abi.Pop()
		abi.Push(value.String(vm.Heap.Interner.Intern(vm.display(v))))
		return 1, nil
	})

	vm.Register("len", func(abi value.Stack, argc int) (int, error) {
		if argc != 1 {
			return 0, fmt.Errorf("len requires one argument")
		}
		v := abi.Pop()
		switch v.Kind {
		case value.KString:
			abi.Push(value.Int(int64(len(v.Str.Bytes))))
		case value.KVector:
			vec, _ := vm.Heap.Vector(v)
			abi.Push(value.Int(int64(len(vec.Items))))
		case value.KMap:
			m, _ := vm.Heap.Map(v)
			abi.Push(value.Int(int64(m.Len())))
		default:
			return 0, fmt.Errorf("len cannot measure a %s", v.Kind)
		}
		return 1, nil
	})

	vm.Register("collect", func(abi value.Stack, argc int) (int, error) {
		for i := 0; i < argc; i++ {
			abi.Pop()
		}
		vectors, maps, userdata := vm.Collect()
		abi.Push(value.Int(int64(vectors + maps + userdata)))
		return 1, nil
	})

	registerCoroutineLib(vm)
	registerRegexLib(vm)
}

func reduceNumeric(vm *VM, abi value.Stack, argc int, want func(int) bool) (int, error) {
	if argc < 1 {
		return 0, fmt.Errorf("requires at least one argument")
	}
	vals := make([]value.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		vals[i] = abi.Pop()
	}
	best := vals[0]
	for _, v := range vals[1:] {
		if want(vm.Heap.Compare(v, best)) {
			best = v
		}
	}
	abi.Push(best)
	return 1, nil
}
