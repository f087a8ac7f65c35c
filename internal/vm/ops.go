package vm

import (
	"fmt"
	"strings"

	"maru/internal/bytecode"
	"maru/internal/value"
)

func (vm *VM) opArith(co *Coroutine, op bytecode.OpCode) error {
	b := co.pop()
	a := co.pop()
	res, err := vm.arith(a, b, op)
	if err != nil {
		return err
	}
	co.push(res)
	return nil
}

// opArithLit runs the ADD_LIT/MUL_LIT peephole-fused opcodes: the left
// operand is already on the stack, the right operand travels in the
// instruction's literal cell instead of a separate LIT push.
func (vm *VM) opArithLit(co *Coroutine, lit value.Value, mul bool) error {
	a := co.pop()
	op := bytecode.ADD
	if mul {
		op = bytecode.MUL
	}
	res, err := vm.arith(a, lit, op)
	if err != nil {
		return err
	}
	co.push(res)
	return nil
}

func (vm *VM) arith(a, b value.Value, op bytecode.OpCode) (value.Value, error) {
	if a.IsNumber() && b.IsNumber() {
		if a.IsInt() && b.IsInt() {
			x, y := a.Int(), b.Int()
			switch op {
			case bytecode.ADD:
				return value.Int(x + y), nil
			case bytecode.SUB:
				return value.Int(x - y), nil
			case bytecode.MUL:
				return value.Int(x * y), nil
			case bytecode.DIV:
				if y == 0 {
					return value.Nil(), fmt.Errorf("vm: division by zero")
				}
				return value.Float(float64(x) / float64(y)), nil
			case bytecode.MOD:
				if y == 0 {
					return value.Nil(), fmt.Errorf("vm: modulo by zero")
				}
				return value.Int(x % y), nil
			}
		}
		x, y := a.Float(), b.Float()
		switch op {
		case bytecode.ADD:
			return value.Float(x + y), nil
		case bytecode.SUB:
			return value.Float(x - y), nil
		case bytecode.MUL:
			return value.Float(x * y), nil
		case bytecode.DIV:
			return value.Float(x / y), nil
		case bytecode.MOD:
			return value.Nil(), fmt.Errorf("vm: '%%' requires integer operands")
		}
	}
	if handled, v, err := vm.metaArith(a, b, op); handled {
		return v, err
	}
	return value.Nil(), fmt.Errorf("vm: cannot apply %s to %s and %s", op, a.Kind, b.Kind)
}

func (vm *VM) opCompare(co *Coroutine, op bytecode.OpCode) error {
	b := co.pop()
	a := co.pop()
	switch op {
	case bytecode.EQ:
		co.push(value.Bool(vm.equal(a, b)))
		return nil
	case bytecode.NE:
		co.push(value.Bool(!vm.equal(a, b)))
		return nil
	}
	c := vm.Heap.Compare(a, b)
	var res bool
	switch op {
	case bytecode.LT:
		res = c < 0
	case bytecode.LTE:
		res = c <= 0
	case bytecode.GT:
		res = c > 0
	case bytecode.GTE:
		res = c >= 0
	}
	co.push(value.Bool(res))
	return nil
}

// equal consults a meta "==" handler before falling back to raw
// identity/scalar equality.
func (vm *VM) equal(a, b value.Value) bool {
	if handled, v, err := vm.metaCompareEq(a, b); handled && err == nil {
		return v.Truthy()
	}
	return a.Equal(b)
}

// opConcat implements `..`: both operands are always stringified, so
// it also backs the `$expr` to-string operator and string
// interpolation (compiler.go's produceOpcode/produceInterp).
func (vm *VM) opConcat(co *Coroutine) error {
	b := co.pop()
	a := co.pop()
	co.push(value.String(vm.Heap.Interner.Intern(vm.display(a) + vm.display(b))))
	return nil
}

func (vm *VM) display(v value.Value) string {
	if v.Kind == value.KVector || v.Kind == value.KMap || v.Kind == value.KUserdata {
		if s, handled := vm.metaToString(v); handled {
			return s
		}
	}
	switch v.Kind {
	case value.KVector:
		vec, ok := vm.Heap.Vector(v)
		if !ok {
			return v.String()
		}
		parts := make([]string, len(vec.Items))
		for i, it := range vec.Items {
			parts[i] = vm.displayQuoted(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case value.KMap:
		m, ok := vm.Heap.Map(v)
		if !ok {
			return v.String()
		}
		parts := make([]string, m.Len())
		for i := range m.Keys {
			parts[i] = vm.displayQuoted(m.Keys[i]) + ": " + vm.displayQuoted(m.Vals[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return v.String()
	}
}

// displayQuoted wraps a string element in double quotes when it
// appears nested inside a vector/map display, so `["a", 1]` reads
// unambiguously rather than `[a, 1]`.
func (vm *VM) displayQuoted(v value.Value) string {
	if v.Kind == value.KString {
		return "\"" + v.Str.Bytes + "\""
	}
	return vm.display(v)
}

// opCount implements `#v`: string byte length, vector element count,
// map key count; anything else falls back to a meta "#" handler.
func (vm *VM) opCount(co *Coroutine) error {
	a := co.pop()
	switch a.Kind {
	case value.KString:
		co.push(value.Int(int64(len(a.Str.Bytes))))
		return nil
	case value.KVector:
		vec, _ := vm.Heap.Vector(a)
		co.push(value.Int(int64(len(vec.Items))))
		return nil
	case value.KMap:
		m, _ := vm.Heap.Map(a)
		co.push(value.Int(int64(m.Len())))
		return nil
	}
	if handled, v, err := vm.metaCount(a); handled {
		if err != nil {
			return err
		}
		co.push(v)
		return nil
	}
	return fmt.Errorf("vm: cannot take '#' of a %s", a.Kind)
}

// opUnpack gives UNPACK its one runtime behavior: pop a vector and
// splice its elements in. When the value now exposed on top is itself
// a vector (the vector literal under construction in produceVec),
// the popped vector's elements are appended directly into it instead
// of being pushed loose, so `[...xs, y]` merges rather than nesting.
// Standalone spread (`f(...xs)`, `return ...xs`) has no vector beneath
// it, so the elements are simply pushed loose in that case.
func (vm *VM) opUnpack(co *Coroutine) error {
	src := co.pop()
	if !src.IsVector() {
		return fmt.Errorf("vm: cannot spread a %s", src.Kind)
	}
	srcVec, _ := vm.Heap.Vector(src)
	items := append([]value.Value(nil), srcVec.Items...)
	if len(co.Stack) > 0 && co.peek().IsVector() {
		dst, _ := vm.Heap.Vector(co.peek())
		dst.Items = append(dst.Items, items...)
		return nil
	}
	for _, it := range items {
		co.push(it)
	}
	return nil
}
