package vm

import (
	"fmt"

	"maru/internal/bytecode"
	"maru/internal/value"
)

// opFor implements FOR: it always pushes a LoopRec (even
// when the iterable is immediately exhausted), then either produces
// the loop variables' first binding(s) or jumps to UNLOOP, which pops
// that LoopRec again. instr.Cache carries the declared loop-variable
// count (1 or 2), patched in by compiler.go's compileFor since the
// peephole pass's fixed-effect table has no way to infer it from the
// surrounding MARK/LIMIT shape.
func (vm *VM) opFor(co *Coroutine, instr bytecode.Instr) error {
	iterable := co.pop()
	nVars := int(instr.Cache)
	unloopIP := int(instr.Lit.Int())

	rec := LoopRec{loopIP: unloopIP - 1, afterIP: unloopIP + 1}
	switch iterable.Kind {
	case value.KInt:
		rec.kind = iterRange
		rec.limit = iterable.Int()
	case value.KVector:
		rec.kind = iterVector
		rec.vec = iterable
	case value.KMap:
		rec.kind = iterMap
		rec.mp = iterable
	case value.KSubroutine, value.KCallback:
		rec.kind = iterGen
		rec.gen = iterable
	case value.KCoroutine:
		rec.kind = iterCoroutine
		rec.cor = iterable
	default:
		return fmt.Errorf("vm: cannot iterate a %s", iterable.Kind)
	}
	co.Loops = append(co.Loops, rec)

	vals, ok, err := vm.iterNext(co, &co.Loops[len(co.Loops)-1], nVars)
	if err != nil {
		return err
	}
	if !ok {
		co.IP = unloopIP
		return nil
	}
	for _, v := range vals {
		co.push(v)
	}
	return nil
}

// opLoop peeks (never pops) the active LoopRec: on a further value it
// rebinds and jumps back to the body, on exhaustion it simply falls
// through to UNLOOP, which performs the single matching pop.
func (vm *VM) opLoop(co *Coroutine, instr bytecode.Instr) error {
	nVars := int(instr.Cache)
	bodyIP := int(instr.Lit.Int())
	rec := &co.Loops[len(co.Loops)-1]
	vals, ok, err := vm.iterNext(co, rec, nVars)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	for _, v := range vals {
		co.push(v)
	}
	co.IP = bodyIP
	return nil
}

// iterNext produces the next binding for rec, in [key/index, value]
// order (compileFor pops Vars[1] first, so value travels on top).
// ok=false means the iterable is exhausted; BREAK/CONTINUE/UNLOOP
// never consult this directly, only FOR/LOOP do.
func (vm *VM) iterNext(co *Coroutine, rec *LoopRec, nVars int) ([]value.Value, bool, error) {
	switch rec.kind {
	case iterRange:
		if rec.idx >= rec.limit {
			return nil, false, nil
		}
		v := value.Int(rec.idx)
		rec.idx++
		return bind(nVars, v, v), true, nil

	case iterVector:
		vec, _ := vm.Heap.Vector(rec.vec)
		if rec.idx >= int64(len(vec.Items)) {
			return nil, false, nil
		}
		v := vec.Items[rec.idx]
		idx := value.Int(rec.idx)
		rec.idx++
		return bind(nVars, idx, v), true, nil

	case iterMap:
		m, _ := vm.Heap.Map(rec.mp)
		if rec.idx >= int64(m.Len()) {
			return nil, false, nil
		}
		k := m.Keys[rec.idx]
		v := m.Vals[rec.idx]
		rec.idx++
		if nVars == 1 {
			return []value.Value{k}, true, nil
		}
		return bind(nVars, k, v), true, nil

	case iterGen:
		results, err := vm.callSync(co, rec.gen, []value.Value{value.Int(rec.step)})
		rec.step++
		if err != nil {
			return nil, false, err
		}
		if len(results) == 0 || results[0].IsNil() {
			return nil, false, nil
		}
		v := results[0]
		key := value.Int(rec.step - 1)
		if len(results) > 1 {
			key = results[1]
		}
		if nVars == 1 {
			return []value.Value{v}, true, nil
		}
		return bind(nVars, key, v), true, nil

	case iterCoroutine:
		v, ok, err := vm.resumeForLoop(co, rec.cor)
		if err != nil || !ok {
			return nil, false, err
		}
		if nVars == 1 {
			return []value.Value{v}, true, nil
		}
		idx := value.Int(rec.step)
		rec.step++
		return bind(nVars, idx, v), true, nil

	default:
		return nil, false, fmt.Errorf("vm: unknown iterable kind")
	}
}

// bind produces the push sequence for nVars (1 or 2) given a
// key/index binding and a value binding; with 2 vars, key/index comes
// first so value ends up on top for Vars[1]'s ASSIGNL.
func bind(nVars int, key, val value.Value) []value.Value {
	if nVars == 1 {
		return []value.Value{val}
	}
	return []value.Value{key, val}
}
