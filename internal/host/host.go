// Package host is the embedding surface: compile an ordered list of
// named source modules once, register native callbacks and an opaque
// user pointer, then run any subset of the compiled modules any
// number of times against fresh per-run state. The compile pipeline
// (scanner → parser → compiler → VM) recovers parse/compile errors
// into a single reported message, collapsed into a reusable library
// instead of a one-shot CLI command.
package host

import (
	"fmt"

	"maru/internal/compiler"
	"maru/internal/heap"
	"maru/internal/lexer"
	"maru/internal/parser"
	"maru/internal/program"
	"maru/internal/value"
	"maru/internal/vm"
)

// Module is one named source unit; ModuleNames preserves the order
// modules are given in.
type Module struct {
	Name string
	Source string
}

// Callback is one named native-function registration, landing in
// lib.<Name>.
type Callback struct {
	Name string
	Fn value.Callback
}

// VM is the host-facing handle: a compiled Program plus the VM
// instance it drives, and the last run's error message if any.
type VM struct {
	machine *vm.VM
	prog *program.Program
	userdata any
	lastErr error
}

// New compiles every module into one shared Program, registers
// callbacks and userdata, promotes the compile-time interner, and
// runs one collection.
func New(modules []Module, callbacks []Callback, userdata any) (*VM, error) {
	names := make([]string, len(modules))
	nodes := make([][]parser.Node, len(modules))
	for i, m := range modules {
		names[i] = m.Name
		toks, err := lexer.New(m.Source).Scan()
		if err != nil {
			return nil, fmt.Errorf("host: %s: %w", m.Name, err)
		}
		stmts, err := parser.New(toks).Parse()
		if err != nil {
			return nil, fmt.Errorf("host: %s: %w", m.Name, err)
		}
		nodes[i] = stmts
	}

	interner := heap.NewInterner()
	comp := compiler.New(interner)
	prog, err := comp.CompileModules(names, nodes)
	if err != nil {
		return nil, fmt.Errorf("host: compile: %w", err)
	}
	interner.Promote()

	machine := vm.New(prog, interner)
	for _, cb := range callbacks {
		machine.Register(cb.Name, cb.Fn)
	}
	if userdata != nil {
		machine.RegisterBare("userdata", machine.Heap.NewUserdata(userdata))
	}
	machine.Collect()

	return &VM{machine: machine, prog: prog, userdata: userdata}, nil
}

// Run executes the named modules, in the order named, by index into
// the creation-time module list; each call gets fresh stacks, frames,
// and global scope.
func (h *VM) Run(moduleIndices ...int) error {
	if err := h.machine.Run(moduleIndices...); err != nil {
		h.lastErr = err
		return err
	}
	h.lastErr = nil
	return nil
}

// RunNamed is a convenience over Run that resolves module names to
// indices via the Program's ModuleNames table.
func (h *VM) RunNamed(names ...string) error {
	idx := make([]int, 0, len(names))
	for _, name := range names {
		found := -1
		for i, n := range h.prog.ModuleNames {
			if n == name {
				found = i
				break
			}
		}
		if found < 0 {
			return fmt.Errorf("host: no such module %q", name)
		}
		idx = append(idx, found)
	}
	return h.Run(idx...)
}

// Err returns the last run's failure message, or "" after a
// successful run.
func (h *VM) Err() string {
	if h.lastErr == nil {
		return ""
	}
	return h.lastErr.Error()
}

// Destroy releases the VM's pools and string tables. maru has no
// off-heap resources of its own to close (sql handles are host-owned
// userdata; a host that opens one is responsible for closing it
// before Destroy), so this simply drops every reference and lets the
// Go collector reclaim the arena pages.
func (h *VM) Destroy() {
	h.machine = nil
	h.prog = nil
}

// Register installs one more native callback under lib.<name> after
// creation. internal/stdlib's math/sql modules do not go through it:
// they register on the *vm.VM returned by Machine(), since they need
// the VM itself (for heap access).
func (h *VM) Register(name string, fn value.Callback) {
	h.machine.Register(name, fn)
}

// Machine exposes the underlying *vm.VM for stdlib modules that need
// heap access (internal/stdlib's math.go/sql.go).
func (h *VM) Machine() *vm.VM { return h.machine }
