package vm

import (
	"fmt"

	"maru/internal/bytecode"
	"maru/internal/value"
)

// opCall implements both CALL and its zero-argument peephole fusion
// CFUNC. For a plain CALL the callee sits one slot
// below the innermost mark (compileCallArgs's MARK is emitted after
// the callee is already pushed) — it is removed from the stack here
// rather than left as permanent debris, and the mark is adjusted down
// by one to match, so the caller's trailing LIMIT(want) still
// reconciles against the right depth. A CFUNC fires only when a
// zero-arg call follows its name resolution with nothing in between,
// so its callee was never pushed at all: resolve it by name directly.
func (vm *VM) opCall(co *Coroutine, instr bytecode.Instr) error {
	if instr.Op == bytecode.CFUNC {
		callee, _ := vm.resolve(co, instr.Lit.Str)
		base := len(co.Stack)
		return vm.invoke(co, callee, base, 0)
	}
	mark := co.Marks[len(co.Marks)-1]
	calleeIdx := mark - 1
	if calleeIdx < 0 {
		return fmt.Errorf("vm: call stack underflow")
	}
	callee := co.Stack[calleeIdx]
	copy(co.Stack[calleeIdx:], co.Stack[calleeIdx+1:])
	co.Stack = co.Stack[:len(co.Stack)-1]
	co.Marks[len(co.Marks)-1] = calleeIdx
	base := calleeIdx
	argc := len(co.Stack) - base
	return vm.invoke(co, callee, base, argc)
}

// invoke dispatches a resolved callee against argc values already
// sitting at co.Stack[base:base+argc]. A Callback runs to completion
// immediately, consuming its arguments and leaving results in their
// place (native-function ABI). A Subroutine instead binds
// named parameters into a fresh Frame from the side table compiled
// into program.Funcs, discards the raw argument region (parameters
// live in the frame's local array, not on the operand stack), and
// transfers control by setting the coroutine's ip — the surrounding
// dispatch loop does the rest, and RETURN (opReturn, below) unwinds it.
func (vm *VM) invoke(co *Coroutine, callee value.Value, base, argc int) error {
	switch callee.Kind {
	case value.KCallback:
		n, err := callee.Fn(coStack{co}, argc)
		if err != nil {
			return err
		}
		_ = n
		return nil
	case value.KSubroutine:
		entry := callee.Entry()
		info := vm.Program.Funcs[entry]
		locals := make([]binding, 0, len(info.Params)+1)
		for i, p := range info.Params {
			v := value.Nil()
			if i < argc {
				v = co.Stack[base+i]
			}
			locals = append(locals, binding{name: vm.Heap.Interner.Intern(p), val: v})
		}
		if info.Variadic {
			start := len(info.Params)
			var extra []value.Value
			if argc > start {
				extra = append([]value.Value(nil), co.Stack[base+start:base+argc]...)
			}
			vecVal := vm.Heap.NewVector()
			vec, _ := vm.Heap.Vector(vecVal)
			vec.Items = extra
			locals = append(locals, binding{name: vm.Heap.Interner.Intern("args"), val: vecVal})
		}
		co.Stack = co.Stack[:base]
		co.Frames = append(co.Frames, Frame{base: base, returnIP: co.IP, locals: locals})
		co.IP = entry
		return nil
	default:
		return fmt.Errorf("vm: value of kind %s is not callable", callee.Kind)
	}
}

// opReturn unwinds the current frame. Because every statement's
// MARK…LIMIT envelope nets back to the depth it started at, the
// operand stack is already exactly base+retcount by the time RETURN
// runs — no truncate-then-append is needed, just popping the frame
// and resuming at its caller's ip.
func (vm *VM) opReturn(co *Coroutine) error {
	fr := co.frame()
	returnIP := fr.returnIP
	co.Frames = co.Frames[:len(co.Frames)-1]
	if len(co.Frames) == 0 {
		return vm.finishCoroutine(co)
	}
	co.IP = returnIP
	return nil
}

// finishCoroutine marks co Dead and either ends the run (it was the
// last coroutine in the chain, i.e. the main one) or transfers its
// operand stack — the "return values" of an outermost RETURN — to its
// resumer as an implicit final yield.
func (vm *VM) finishCoroutine(co *Coroutine) error {
	co.State = Dead
	results := append([]value.Value(nil), co.Stack...)
	vm.routines = vm.routines[:len(vm.routines)-1]
	if len(vm.routines) == 0 {
		return nil
	}
	caller := vm.top()
	for _, v := range results {
		caller.push(v)
	}
	return nil
}

// callSync invokes callee synchronously from within an opcode handler
// that is not itself CALL (operator-meta dispatch in meta.go): it
// runs a nested instance of the same dispatch loop restricted to this
// one coroutine until the frame it pushes unwinds.
func (vm *VM) callSync(co *Coroutine, callee value.Value, args []value.Value) ([]value.Value, error) {
	base := len(co.Stack)
	for _, a := range args {
		co.push(a)
	}
	if callee.Kind == value.KCallback {
		if err := vm.invoke(co, callee, base, len(args)); err != nil {
			return nil, err
		}
		results := append([]value.Value(nil), co.Stack[base:]...)
		co.Stack = co.Stack[:base]
		return results, nil
	}
	targetDepth := len(co.Frames)
	if err := vm.invoke(co, callee, base, len(args)); err != nil {
		return nil, err
	}
	for len(co.Frames) > targetDepth {
		if co.IP >= len(vm.Program.Chunk.Code) {
			return nil, fmt.Errorf("vm: ip %d out of range during synchronous call", co.IP)
		}
		instr := vm.Program.Chunk.Code[co.IP]
		co.IP++
		if err := vm.step(co, instr); err != nil {
			return nil, err
		}
	}
	results := append([]value.Value(nil), co.Stack[base:]...)
	co.Stack = co.Stack[:base]
	return results, nil
}

// coStack adapts a Coroutine to the value.Stack ABI a Callback expects
// ; it is the same operand stack the dispatch loop uses, so
// a callback can freely Push/Pop relative to the current top.
type coStack struct{ co *Coroutine }

func (s coStack) Push(v value.Value) { s.co.push(v) }
func (s coStack) Pop() value.Value { return s.co.pop() }
func (s coStack) Pick(fromTop int) value.Value { return s.co.pick(fromTop) }
func (s coStack) Depth() int { return len(s.co.Stack) }
