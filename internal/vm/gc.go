package vm

import (
	"maru/internal/heap"
	"maru/internal/value"
)

// Collect runs one full mark-and-sweep pass, walking every
// root the heap's own Collector cannot see on its own: core scope
// (which already holds global and lib), the program's literal pool,
// and every coroutine's operand stack/shunt area/locals/loop records.
// It is exposed to scripts as lib.collect (builtins.go).
func (vm *VM) Collect() (vectors, maps, userdata int) {
	col := heap.NewCollector(vm.Heap)
	col.Begin()

	for _, v := range vm.core {
		col.Mark(v)
	}
	for _, instr := range vm.Program.Chunk.Code {
		col.Mark(instr.Lit)
	}
	for _, r := range vm.routines {
		vm.markCoroutine(col, r)
	}

	return col.Sweep()
}

func (vm *VM) markCoroutine(col *heap.Collector, root value.Value) {
	co, ok := vm.Coros.Get(root.Ref)
	if !ok {
		return
	}
	for _, v := range co.Stack {
		col.Mark(v)
	}
	for _, v := range co.Other {
		col.Mark(v)
	}
	for _, fr := range co.Frames {
		for _, b := range fr.locals {
			col.Mark(b.val)
		}
	}
	for _, lr := range co.Loops {
		col.Mark(lr.vec)
		col.Mark(lr.mp)
		col.Mark(lr.gen)
		col.Mark(lr.cor)
	}
}
