// Package vm implements the stack-based bytecode interpreter and its
// cooperative coroutine scheduler, built around a literal-cell
// bytecode.Instr stream and the handle-based heap of internal/heap.
package vm

import (
	"fmt"

	"maru/internal/bytecode"
	maruerrors "maru/internal/errors"
	"maru/internal/heap"
	"maru/internal/program"
	"maru/internal/value"
)

// VM is the whole interpreter: one Program, one Heap, and the chain
// of coroutines currently in flight. It is not goroutine-safe; all
// methods assume single-threaded cooperative use.
type VM struct {
	Program *program.Program
	Heap *heap.Heap
	Coros *heap.Pool[Coroutine]

	routines []value.Value // chain; routines[0] is the main coroutine, popped by STOP or its final RETURN to end the run
	core map[string]value.Value
	global value.Value
	lib value.Value
	curModule string // name of the module the active Run call is executing, for error reporting
}

// New builds a VM around a compiled program and the exact interner
// internal/compiler used to compile it (already Promoted by the
// caller) — sharing it, rather than starting a fresh one, is what
// keeps compiled string literals and runtime-interned strings
// pointer-comparable.
func New(prog *program.Program, interner *heap.Interner) *VM {
	h := heap.NewWithInterner(interner)
	vm := &VM{
		Program: prog,
		Heap: h,
		Coros: heap.NewPool[Coroutine](),
		core: make(map[string]value.Value),
	}
	vm.global = h.NewMap()
	vm.lib = h.NewMap()
	vm.core["lib"] = vm.lib
	vm.core["global"] = vm.global
	registerBuiltins(vm)
	return vm
}

// Register installs a host callback under lib.<name>.
func (vm *VM) Register(name string, fn value.Callback) {
	cb := value.FromCallback(fn)
	m, _ := vm.Heap.Map(vm.lib)
	m.Set(value.String(vm.Heap.Interner.Intern(name)), cb)
}

// RegisterBare installs a name directly in core scope, unprefixed
// (used for `print`, matching worked examples).
func (vm *VM) RegisterBare(name string, v value.Value) {
	vm.core[name] = v
}

// Run executes the modules at the given indices in order, each on a
// fresh main coroutine sharing one fresh global scope. Pools, the
// interner, and core scope persist across runs; only per-run state is
// reset.
func (vm *VM) Run(moduleIndices ...int) error {
	vm.global = vm.Heap.NewMap()
	vm.core["global"] = vm.global
	for _, idx := range moduleIndices {
		if idx < 0 || idx >= len(vm.Program.ModuleEntries) {
			return fmt.Errorf("vm: no such module index %d", idx)
		}
		entry := vm.Program.ModuleEntries[idx]
		vm.curModule = ""
		if idx < len(vm.Program.ModuleNames) {
			vm.curModule = vm.Program.ModuleNames[idx]
		}
		main := newCoroutine(entry)
		main.State = Running
		h := vm.Coros.Alloc(*main)
		vm.routines = []value.Value{value.Coroutine(h)}
		if err := vm.dispatch(); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) top() *Coroutine {
	h := vm.routines[len(vm.routines)-1]
	co, _ := vm.Coros.Get(h.Ref)
	return co
}

// dispatch is the single step loop shared by every coroutine: the
// active coroutine is always routines[len-1], so RESUME/YIELD need
// only push/pop that slice for control to transfer.
func (vm *VM) dispatch() error {
	for {
		if len(vm.routines) == 0 {
			return nil
		}
		co := vm.top()
		if co.IP >= len(vm.Program.Chunk.Code) {
			return fmt.Errorf("vm: ip %d out of range", co.IP)
		}
		ip := co.IP
		instr := vm.Program.Chunk.Code[ip]
		co.IP++
		if err := vm.step(co, instr); err != nil {
			return vm.wrapRuntimeError(ip, err)
		}
		if len(vm.routines) == 0 {
			return nil
		}
	}
}

// wrapRuntimeError attaches the failing instruction's source line
// (error taxonomy) to a bare Go error coming out of step,
// unless it's already a MaruError, which is passed through unchanged.
func (vm *VM) wrapRuntimeError(ip int, err error) error {
	if _, ok := err.(*maruerrors.MaruError); ok {
		return err
	}
	line := 0
	if ip < len(vm.Program.Chunk.Debug) {
		line = vm.Program.Chunk.Debug[ip].Line
	}
	return maruerrors.NewRuntimeError(err.Error(), vm.curModule, line, 0)
}

func (vm *VM) step(co *Coroutine, instr bytecode.Instr) error {
	switch instr.Op {
	case bytecode.STOP:
		vm.routines = vm.routines[:len(vm.routines)-1]
		return nil
	case bytecode.JMP:
		co.IP = int(instr.Lit.Int())
	case bytecode.JFALSE:
		if !co.pop().Truthy() {
			co.IP = int(instr.Lit.Int())
		}
	case bytecode.JTRUE:
		if co.pop().Truthy() {
			co.IP = int(instr.Lit.Int())
		}
	case bytecode.AND:
		if !co.peek().Truthy() {
			co.IP = int(instr.Lit.Int())
		} else {
			co.pop()
		}
	case bytecode.OR:
		if co.peek().Truthy() {
			co.IP = int(instr.Lit.Int())
		} else {
			co.pop()
		}

	case bytecode.MARK:
		co.Marks = append(co.Marks, len(co.Stack))
	case bytecode.LIMIT:
		return vm.opLimit(co, int(instr.Lit.Int()))
	case bytecode.CLEAN:
		if len(co.Marks) > 0 {
			co.truncate(co.Marks[len(co.Marks)-1])
		}
	case bytecode.COPY:
		co.push(co.peek())
	case bytecode.SHUNT:
		co.Other = append(co.Other, co.pop())
	case bytecode.SHIFT:
		v := co.Other[len(co.Other)-1]
		co.Other = co.Other[:len(co.Other)-1]
		at := co.Marks[len(co.Marks)-1]
		co.Stack = append(co.Stack, value.Nil())
		copy(co.Stack[at+1:], co.Stack[at:len(co.Stack)-1])
		co.Stack[at] = v
	case bytecode.DROP:
		co.pop()

	case bytecode.LIT:
		co.push(instr.Lit)
	case bytecode.FIND:
		return vm.opFind(co)
	case bytecode.GET:
		return vm.opGet(co)
	case bytecode.SET:
		return vm.opSet(co)
	case bytecode.ASSIGN, bytecode.ASSIGNL, bytecode.ASSIGNP, bytecode.UPDATE:
		val := co.pop()
		co.frame().set(instr.Lit.Str, val)
	case bytecode.PID:
		path := instr.Lit.Node.([]int)
		fr := co.frame()
		fr.scopePath = path
		if len(path) > 0 {
			fr.funcID = path[len(path)-1]
		}

	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.MOD:
		return vm.opArith(co, instr.Op)
	case bytecode.ADD_LIT:
		return vm.opArithLit(co, instr.Lit, false)
	case bytecode.MUL_LIT:
		return vm.opArithLit(co, instr.Lit, true)
	case bytecode.NEG:
		a := co.pop()
		if a.IsInt() {
			co.push(value.Int(-a.Int()))
		} else {
			co.push(value.Float(-a.Float()))
		}
	case bytecode.NOT:
		co.push(value.Bool(!co.pop().Truthy()))
	case bytecode.EQ, bytecode.NE, bytecode.LT, bytecode.LTE, bytecode.GT, bytecode.GTE:
		return vm.opCompare(co, instr.Op)
	case bytecode.CONCAT:
		return vm.opConcat(co)
	case bytecode.COUNT:
		return vm.opCount(co)
	case bytecode.MATCH:
		return vm.opMatch(co)
	case bytecode.UNPACK:
		return vm.opUnpack(co)

	case bytecode.VECTOR:
		co.push(vm.Heap.NewVector())
	case bytecode.VPUSH:
		v := co.pop()
		vec, ok := vm.Heap.Vector(co.peek())
		if !ok {
			return fmt.Errorf("vm: VPUSH onto a non-vector")
		}
		vec.Items = append(vec.Items, v)
	case bytecode.MAPNEW:
		co.push(vm.Heap.NewMap())
	case bytecode.UNMAP, bytecode.METASET, bytecode.METAGET:
		// Reserved by the opcode catalog but never emitted by
		// this compiler: meta-table access goes through lib.setmeta /
		// lib.getmeta (builtins.go) rather than a dedicated stack opcode,
		// since no surface syntax triggers it directly.
		return fmt.Errorf("vm: %s not reachable from this compiler", instr.Op)

	case bytecode.CALL, bytecode.CFUNC:
		return vm.opCall(co, instr)
	case bytecode.RETURN:
		return vm.opReturn(co)

	case bytecode.FOR:
		return vm.opFor(co, instr)
	case bytecode.LOOP:
		return vm.opLoop(co, instr)
	case bytecode.UNLOOP:
		co.Loops = co.Loops[:len(co.Loops)-1]
	case bytecode.BREAK:
		rec := co.Loops[len(co.Loops)-1]
		co.Loops = co.Loops[:len(co.Loops)-1]
		co.IP = rec.afterIP
	case bytecode.CONTINUE:
		rec := co.Loops[len(co.Loops)-1]
		co.IP = rec.loopIP

	case bytecode.COROUTINE, bytecode.RESUME, bytecode.YIELD:
		// Reserved by the opcode catalog but never emitted by this
		// compiler: coroutine creation/resume/yield go through
		// lib.coroutine/resume/yield (coroutine_ops.go) instead, since
		// no surface syntax lowers to a dedicated opcode for them.
		return fmt.Errorf("vm: %s not reachable from this compiler", instr.Op)

	case bytecode.FNAME:
		return vm.opFindLit(co, instr.Lit)
	case bytecode.GNAME:
		return vm.opGetLit(co, instr.Lit)

	default:
		return fmt.Errorf("vm: unimplemented opcode %s", instr.Op)
	}
	return nil
}

// opLimit truncates or nil-pads the values above the innermost mark
// to exactly n, or leaves them untouched when n < 0.
func (vm *VM) opLimit(co *Coroutine, n int) error {
	mark := co.Marks[len(co.Marks)-1]
	co.Marks = co.Marks[:len(co.Marks)-1]
	if n < 0 {
		return nil
	}
	have := len(co.Stack) - mark
	switch {
	case have > n:
		co.Stack = co.Stack[:mark+n]
	case have < n:
		for ; have < n; have++ {
			co.push(value.Nil())
		}
	}
	return nil
}
