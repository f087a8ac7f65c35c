package vm

import (
	"fmt"

	"maru/internal/value"
)

// registerCoroutineLib installs lib.coroutine/resume/yield: cooperative
// scheduling exposed as three native callbacks rather than dedicated
// COROUTINE/RESUME/YIELD bytecode, since no surface grammar form
// compiles to them directly.
func registerCoroutineLib(vm *VM) {
	vm.Register("coroutine", func(abi value.Stack, argc int) (int, error) {
		if argc < 1 {
			return 0, fmt.Errorf("coroutine requires a function argument")
		}
		fn := abi.Pick(0)
		for i := 0; i < argc; i++ {
			abi.Pop()
		}
		if !fn.IsCallable() || fn.Kind != value.KSubroutine {
			return 0, fmt.Errorf("coroutine requires a maru function, not a %s", fn.Kind)
		}
		h := vm.Coros.Alloc(*newCoroutine(fn.Entry()))
		abi.Push(value.Coroutine(h))
		return 1, nil
	})

	vm.Register("resume", func(abi value.Stack, argc int) (int, error) {
		if argc < 1 {
			return 0, fmt.Errorf("resume requires a coroutine argument")
		}
		vals := make([]value.Value, argc)
		for i := argc - 1; i >= 0; i-- {
			vals[i] = abi.Pop()
		}
		target := vals[0]
		extra := vals[1:]
		if !target.IsCoroutine() {
			return 0, fmt.Errorf("resume requires a coroutine, not a %s", target.Kind)
		}
		tco, ok := vm.Coros.Get(target.Ref)
		if !ok || tco.State == Dead {
			abi.Push(value.Bool(false))
			return 1, nil
		}
		tco.State = Running
		for _, a := range extra {
			tco.push(a)
		}
		before := abi.Depth()
		if err := vm.drain(target); err != nil {
			return 0, err
		}
		produced := abi.Depth() - before
		abi.Push(value.Bool(true))
		return produced + 1, nil
	})

	vm.Register("yield", func(abi value.Stack, argc int) (int, error) {
		vals := make([]value.Value, argc)
		for i := argc - 1; i >= 0; i-- {
			vals[i] = abi.Pop()
		}
		if len(vm.routines) < 2 {
			return 0, fmt.Errorf("vm: cannot yield from the main coroutine")
		}
		cur := vm.top()
		cur.State = Suspended
		vm.routines = vm.routines[:len(vm.routines)-1]
		caller := vm.top()
		for _, v := range vals {
			caller.push(v)
		}
		return 0, nil
	})
}

// drain pushes target onto the routines chain and runs the shared
// dispatch step until control returns to the depth it started at —
// target yielded (popped itself) or ran to completion
// (finishCoroutine popped it), either way transferring its values
// directly onto whatever is now on top, by the same mechanism YIELD
// and RETURN already use for any resumer.
func (vm *VM) drain(target value.Value) error {
	depth := len(vm.routines)
	vm.routines = append(vm.routines, target)
	for len(vm.routines) > depth {
		cur := vm.top()
		if cur.IP >= len(vm.Program.Chunk.Code) {
			return fmt.Errorf("vm: ip %d out of range", cur.IP)
		}
		instr := vm.Program.Chunk.Code[cur.IP]
		cur.IP++
		if err := vm.step(cur, instr); err != nil {
			return err
		}
	}
	return nil
}

// resumeForLoop implements the `for x in cor` sugar: resume
// cor with no arguments, take only its first yielded value, and
// terminate the loop on Dead state or an empty/nil yield.
func (vm *VM) resumeForLoop(co *Coroutine, cor value.Value) (value.Value, bool, error) {
	tco, ok := vm.Coros.Get(cor.Ref)
	if !ok || tco.State == Dead {
		return value.Nil(), false, nil
	}
	tco.State = Running
	before := len(co.Stack)
	if err := vm.drain(cor); err != nil {
		return value.Nil(), false, err
	}
	produced := co.Stack[before:]
	co.truncate(before)
	if tco.State == Dead || len(produced) == 0 || produced[0].IsNil() {
		return value.Nil(), false, nil
	}
	return produced[0], true, nil
}
